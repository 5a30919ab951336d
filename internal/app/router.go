package app

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/domain"
	"github.com/dkeye/babel/internal/metrics"
)

// Event is one server message addressed to a room.
type Event struct {
	Type    string
	Payload any
	// Target restricts delivery to a single participant.
	Target domain.ParticipantID
	// Origin with SkipOrigin excludes the participant that caused the event.
	Origin     domain.ParticipantID
	SkipOrigin bool
}

type PublishResult struct {
	SendTo  int
	Dropped []*core.Session
}

// Router fans events out to the sessions attached to a room. It never blocks
// on a slow connection.
type Router struct {
	policy  Policy
	metrics *metrics.Metrics
}

func NewRouter(policy Policy, m *metrics.Metrics) *Router {
	if policy == nil {
		policy = DropPolicy{}
	}
	return &Router{policy: policy, metrics: m}
}

func (r *Router) Publish(room core.RoomService, ev Event) PublishResult {
	var res PublishResult
	frame, err := json.Marshal(ev.Payload)
	if err != nil {
		log.Error().Str("module", "app.router").Err(err).Str("type", ev.Type).Msg("marshal event")
		return res
	}

	for _, a := range room.Sessions() {
		if ev.Target != "" && a.Participant != ev.Target {
			continue
		}
		if ev.SkipOrigin && a.Participant == ev.Origin {
			continue
		}
		switch err := a.Session.Signal().TrySend(frame); {
		case err == nil:
			res.SendTo++
		case errors.Is(err, core.ErrBackpressure):
			res.Dropped = append(res.Dropped, a.Session)
		default:
			// recipient is already gone
		}
	}

	for _, slow := range res.Dropped {
		r.metrics.FrameDropped()
		r.onSlow(room, slow, ev.Type)
	}
	return res
}

// Send delivers a message to one session regardless of room membership.
func (r *Router) Send(sess *core.Session, payload any) error {
	frame, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	err = sess.Signal().TrySend(frame)
	if errors.Is(err, core.ErrBackpressure) {
		r.metrics.FrameDropped()
	}
	return err
}

func (r *Router) onSlow(room core.RoomService, sess *core.Session, typ string) {
	logger := log.With().Str("module", "app.router").
		Str("room", string(room.Room().ID)).
		Str("sid", string(sess.ID())).
		Str("type", typ).
		Logger()

	switch r.policy.OnBackPressure(room, sess) {
	case KickMember:
		logger.Warn().Msg("send buffer full, closing connection")
		sess.Signal().Close()
	case DropFrame:
		logger.Debug().Msg("send buffer full, frame dropped")
	case NoAction:
	}
}
