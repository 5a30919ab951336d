package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/babel/internal/domain"
)

// Pebble stores entries under room:<len(id)>:<id>:utt:<unixnano>-<seq> so a
// room's history is one ordered key range. The length keeps one room's range
// from covering ids that merely start with it.
type Pebble struct {
	db     *pebble.DB
	seq    atomic.Uint64
	closed atomic.Bool
}

func OpenPebble(path string) (*Pebble, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal at %s: %w", path, err)
	}
	log.Info().Str("module", "journal").Str("path", path).Msg("pebble journal opened")
	return &Pebble{db: db}, nil
}

func roomPrefix(roomID domain.RoomID) []byte {
	return fmt.Appendf(nil, "room:%d:%s:utt:", len(roomID), roomID)
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (p *Pebble) entryKey(e Entry) []byte {
	return fmt.Appendf(roomPrefix(e.RoomID), "%020d-%06d", e.CreatedAt.UnixNano(), p.seq.Add(1)%1_000_000)
}

func (p *Pebble) Append(_ context.Context, e Entry) error {
	if p.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.db.Set(p.entryKey(e), data, pebble.Sync)
}

func (p *Pebble) Recent(ctx context.Context, roomID domain.RoomID, limit int) ([]Entry, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	prefix := roomPrefix(roomID)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var newestFirst []Entry
	for ok := iter.Last(); ok && len(newestFirst) < limit; ok = iter.Prev() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			log.Warn().Str("module", "journal").Err(err).Str("key", string(iter.Key())).Msg("skipping corrupt entry")
			continue
		}
		newestFirst = append(newestFirst, e)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	out := make([]Entry, len(newestFirst))
	for i, e := range newestFirst {
		out[len(out)-1-i] = e
	}
	return out, nil
}

func (p *Pebble) DeleteRoom(_ context.Context, roomID domain.RoomID) error {
	if p.closed.Load() {
		return ErrClosed
	}
	prefix := roomPrefix(roomID)
	return p.db.DeleteRange(prefix, prefixEnd(prefix), pebble.Sync)
}

func (p *Pebble) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.db.Close()
}
