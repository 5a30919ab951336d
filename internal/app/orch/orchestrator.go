// Package orch glues sessions, rooms, the utterance pipeline and the live
// audio relay together. Adapters call into it; it never touches a socket.
package orch

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/babel/internal/app"
	"github.com/dkeye/babel/internal/app/pipeline"
	"github.com/dkeye/babel/internal/app/sfu"
	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/domain"
	"github.com/dkeye/babel/internal/gateway"
	"github.com/dkeye/babel/internal/journal"
	"github.com/dkeye/babel/internal/metrics"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Router   *app.Router
	Pipeline *pipeline.Pipeline
	Gateway  *gateway.Gateway
	Catalog  *domain.Catalog
	Journal  journal.Journal
	Metrics  *metrics.Metrics
	// Relays is nil when live audio is disabled.
	Relays *sfu.RelayManager

	// DefaultLanguage is used when join_conference carries no language.
	DefaultLanguage domain.Language

	// Context bounds every pipeline run. It outlives single connections.
	Context context.Context

	inflight sync.WaitGroup
}

// Connect registers a fresh connection. cancel ends its pumps.
func (o *Orchestrator) Connect(sess *core.Session, cancel context.CancelFunc) {
	o.Registry.Bind(sess, cancel)
	o.Metrics.SessionOpened()
}

// Wait blocks until every running pipeline has finished.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// spawn runs fn in the background, tracked by Wait. A panic is logged and
// swallowed.
func (o *Orchestrator) spawn(sid core.SessionID, task string, fn func()) {
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("module", "app.orch").
					Str("sid", string(sid)).
					Str("task", task).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("background task panicked")
			}
		}()
		fn()
	}()
}

func (o *Orchestrator) baseContext() context.Context {
	if o.Context != nil {
		return o.Context
	}
	return context.Background()
}

// joined resolves a session to its room and participant.
func (o *Orchestrator) joined(sid core.SessionID) (*core.Session, core.RoomService, domain.Participant, error) {
	sess, ok := o.Registry.Get(sid)
	if !ok || !sess.State().Joined() {
		return nil, nil, domain.Participant{}, domain.ErrNotJoined
	}
	roomID, pid, ok := sess.Binding()
	if !ok {
		return nil, nil, domain.Participant{}, domain.ErrNotJoined
	}
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		return nil, nil, domain.Participant{}, domain.ErrNotJoined
	}
	if cur, ok := room.SessionOf(pid); !ok || cur != sess {
		return nil, nil, domain.Participant{}, domain.ErrNotJoined
	}
	p, ok := room.Participant(pid)
	if !ok || !p.Online {
		return nil, nil, domain.Participant{}, domain.ErrNotJoined
	}
	return sess, room, p, nil
}

// Send delivers a message to one connection, joined or not.
func (o *Orchestrator) Send(sid core.SessionID, payload any) {
	sess, ok := o.Registry.Get(sid)
	if !ok {
		return
	}
	if err := o.Router.Send(sess, payload); err != nil {
		log.Debug().Str("module", "app.orch").Str("sid", string(sid)).Err(err).Msg("send failed")
	}
}
