package journal

import (
	"context"
	"sync"

	"github.com/dkeye/babel/internal/domain"
)

const DefaultMaxPerRoom = 200

// Memory is a bounded in-process journal. The oldest entries of a room are
// discarded once it holds maxPerRoom.
type Memory struct {
	mu         sync.RWMutex
	maxPerRoom int
	rooms      map[domain.RoomID][]Entry
	closed     bool
}

func NewMemory(maxPerRoom int) *Memory {
	if maxPerRoom <= 0 {
		maxPerRoom = DefaultMaxPerRoom
	}
	return &Memory{maxPerRoom: maxPerRoom, rooms: make(map[domain.RoomID][]Entry)}
}

func (m *Memory) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	list := append(m.rooms[e.RoomID], e)
	if over := len(list) - m.maxPerRoom; over > 0 {
		list = append(list[:0:0], list[over:]...)
	}
	m.rooms[e.RoomID] = list
	return nil
}

func (m *Memory) Recent(_ context.Context, roomID domain.RoomID, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	list := m.rooms[roomID]
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]Entry, len(list))
	copy(out, list)
	return out, nil
}

func (m *Memory) DeleteRoom(_ context.Context, roomID domain.RoomID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.rooms = nil
	return nil
}
