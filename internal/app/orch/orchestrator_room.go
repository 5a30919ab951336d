package orch

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/babel/internal/app"
	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/domain"
	"github.com/dkeye/babel/internal/protocol"
)

// JoinConference validates and applies join_conference. A name already known
// in the room reactivates that participant.
func (o *Orchestrator) JoinConference(sid core.SessionID, roomID domain.RoomID, rawName, rawLang string) error {
	sess, ok := o.Registry.Get(sid)
	if !ok {
		return domain.ErrNotJoined
	}
	name, err := domain.ValidateName(rawName)
	if err != nil {
		return err
	}
	lang := o.DefaultLanguage
	if strings.TrimSpace(rawLang) != "" || lang == "" {
		if lang, err = o.Catalog.Parse(rawLang); err != nil {
			return err
		}
	}
	if sess.State() == core.StateSpeaking {
		return domain.ErrBusy
	}

	// A second join on the same connection releases the previous identity.
	if prevRoom, prevPID, ok := sess.Binding(); ok {
		o.release(sess, prevRoom, prevPID)
	}

	room := o.Rooms.GetOrCreate(roomID)
	res := room.Join(name, lang, sess)
	p := res.Participant
	if !sess.Attach(roomID, p.ID) {
		room.Leave(p.ID, sess)
		return domain.ErrNotJoined
	}
	if res.Replaced != nil {
		o.evictReplaced(res.Replaced, p)
	}

	logger := log.With().Str("module", "app.orch").
		Str("sid", string(sid)).
		Str("room", string(roomID)).
		Str("participant", string(p.ID)).
		Logger()
	logger.Info().Str("name", p.Name).Str("language", string(p.Language)).Bool("rejoined", res.Rejoined).Msg("joined conference")

	info := room.Room()
	o.Send(sid, protocol.JoinedSuccessfully{
		Type:          protocol.TypeJoinedSuccessfully,
		ParticipantID: p.ID,
		RoomID:        info.ID,
		RoomName:      info.Name,
		Rejoined:      res.Rejoined,
	})
	o.Send(sid, protocol.ParticipantsList{
		Type:         protocol.TypeParticipantsList,
		Participants: protocol.ViewsOf(room.OnlineSnapshot()),
	})
	o.Router.Publish(room, app.Event{
		Type: protocol.TypeParticipantJoined,
		Payload: protocol.ParticipantJoined{
			Type:        protocol.TypeParticipantJoined,
			Participant: protocol.ViewOf(p),
		},
		Origin:     p.ID,
		SkipOrigin: true,
	})

	o.OnMediaReady(sid)
	return nil
}

// evictReplaced detaches the connection that spoke for p before a rejoin.
func (o *Orchestrator) evictReplaced(old *core.Session, p domain.Participant) {
	if o.Relays != nil {
		o.Relays.StopRelay(p.ID)
		o.Relays.Unsubscribe(p.ID)
	}
	old.Detach()
	if err := o.Router.Send(old, protocol.ErrorOf(domain.Errorf(domain.KindNotJoined, "%s joined from another connection", p.Name))); err != nil {
		log.Debug().Str("module", "app.orch").Str("sid", string(old.ID())).Err(err).Msg("notify replaced session")
	}
	log.Info().Str("module", "app.orch").Str("sid", string(old.ID())).Str("participant", string(p.ID)).Msg("session replaced by rejoin")
}

// release takes the session's participant offline and tells the room.
func (o *Orchestrator) release(sess *core.Session, roomID domain.RoomID, pid domain.ParticipantID) {
	if o.Relays != nil {
		o.Relays.StopRelay(pid)
		o.Relays.Unsubscribe(pid)
	}
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		return
	}
	p, ok := room.Leave(pid, sess)
	if !ok {
		return
	}
	o.Router.Publish(room, app.Event{
		Type: protocol.TypeParticipantLeft,
		Payload: protocol.ParticipantLeft{
			Type:            protocol.TypeParticipantLeft,
			ParticipantID:   p.ID,
			ParticipantName: p.Name,
		},
	})
}

func (o *Orchestrator) OnTyping(sid core.SessionID, typing bool) error {
	_, room, p, err := o.joined(sid)
	if err != nil {
		return err
	}
	room.Touch(p.ID)
	o.Router.Publish(room, app.Event{
		Type: protocol.TypeTypingIndicator,
		Payload: protocol.TypingIndicator{
			Type:          protocol.TypeTypingIndicator,
			ParticipantID: p.ID,
			Name:          p.Name,
			IsTyping:      typing,
		},
		Origin:     p.ID,
		SkipOrigin: true,
	})
	return nil
}

// ChangeLanguage switches the participant's preferred language. Utterances
// already past their snapshot keep the old language.
func (o *Orchestrator) ChangeLanguage(sid core.SessionID, rawLang string) error {
	_, room, p, err := o.joined(sid)
	if err != nil {
		return err
	}
	lang, err := o.Catalog.Parse(rawLang)
	if err != nil {
		return err
	}
	if _, ok := room.SetLanguage(p.ID, lang); !ok {
		return domain.ErrNotJoined
	}
	o.Router.Publish(room, app.Event{
		Type: protocol.TypeLanguageChanged,
		Payload: protocol.LanguageChanged{
			Type:          protocol.TypeLanguageChanged,
			ParticipantID: p.ID,
			Language:      lang,
		},
	})
	return nil
}

func (o *Orchestrator) Ping(sid core.SessionID) {
	if _, room, p, err := o.joined(sid); err == nil {
		room.Touch(p.ID)
	}
	o.Send(sid, protocol.Pong{Type: protocol.TypePong})
}

// OnDisconnect runs once per connection when its read pump exits.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	sess, ok := o.Registry.Get(sid)
	if !ok {
		return
	}
	if !sess.BeginLeave() {
		return
	}
	o.cleanupMedia(sess)
	if roomID, pid, ok := sess.Binding(); ok {
		o.release(sess, roomID, pid)
	}
	sess.Finish()
	o.Registry.Unbind(sid)
	o.Metrics.SessionClosed()
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Msg("disconnected")
}

// EvictRoom stops a room and closes every connection in it.
func (o *Orchestrator) EvictRoom(ctx context.Context, roomID domain.RoomID) bool {
	room, ok := o.Rooms.StopRoom(roomID)
	if !ok {
		return false
	}
	for _, a := range room.Close() {
		if o.Relays != nil {
			o.Relays.StopRelay(a.Participant)
		}
		o.Registry.Cancel(a.Session.ID())
		a.Session.Signal().Close()
	}
	if o.Journal != nil {
		if err := o.Journal.DeleteRoom(ctx, roomID); err != nil {
			log.Warn().Str("module", "app.orch").Str("room", string(roomID)).Err(err).Msg("journal cleanup failed")
		}
	}
	log.Info().Str("module", "app.orch").Str("room", string(roomID)).Msg("room evicted")
	return true
}
