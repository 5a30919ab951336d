package orch

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/domain"
)

// MediaEnabled reports whether live audio relay is configured.
func (o *Orchestrator) MediaEnabled() bool { return o.Relays != nil }

// AttachMedia installs a negotiated media leg on a joined session.
func (o *Orchestrator) AttachMedia(sid core.SessionID, mc core.MediaConnection) error {
	sess, _, _, err := o.joined(sid)
	if err != nil {
		return err
	}
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		o.OnTrack(trackCtx, sid, track)
	})
	mc.OnClosed(func() { o.OnMediaDisconnect(sid, mc) })
	if old := sess.UpdateMedia(mc); old != nil && old != mc {
		old.Close()
	}
	return nil
}

func (o *Orchestrator) OnMediaDisconnect(sid core.SessionID, mc core.MediaConnection) {
	sess, ok := o.Registry.Get(sid)
	if !ok || sess.Media() != mc {
		return
	}
	o.cleanupMedia(sess)
}

func (o *Orchestrator) cleanupMedia(sess *core.Session) {
	if o.Relays != nil {
		if _, pid, ok := sess.Binding(); ok {
			o.Relays.StopRelay(pid)
			o.Relays.Unsubscribe(pid)
		}
	}
	if mc := sess.UpdateMedia(nil); mc != nil {
		mc.Close()
	}
}

// OnTrack starts relaying a speaker's track to every listener with media.
func (o *Orchestrator) OnTrack(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) {
	if o.Relays == nil {
		return
	}
	_, room, speaker, err := o.joined(sid)
	if err != nil {
		log.Info().Str("module", "app.orch").Str("sid", string(sid)).Msg("track from a session that is not joined")
		return
	}
	o.Relays.StartRelay(ctx, speaker.ID, track)

	for _, a := range room.Sessions() {
		if a.Participant == speaker.ID {
			continue
		}
		o.subscribe(speaker.ID, a.Participant, a.Session.Media(), track)
	}
}

// OnMediaReady subscribes the session to every relay already running in its room.
func (o *Orchestrator) OnMediaReady(sid core.SessionID) {
	if o.Relays == nil {
		return
	}
	sess, room, listener, err := o.joined(sid)
	if err != nil {
		return
	}
	mc := sess.Media()
	if mc == nil {
		return
	}
	for _, a := range room.Sessions() {
		if a.Participant == listener.ID {
			continue
		}
		if src, ok := o.Relays.SrcTrack(a.Participant); ok {
			o.subscribe(a.Participant, listener.ID, mc, src)
		}
	}
}

func (o *Orchestrator) subscribe(src, dst domain.ParticipantID, mc core.MediaConnection, track *webrtc.TrackRemote) {
	if mc == nil {
		return
	}
	if err := o.Relays.Subscribe(src, dst, mc, track); err != nil {
		log.Warn().Str("module", "app.orch").Str("speaker", string(src)).Str("listener", string(dst)).Err(err).Msg("subscribe failed")
	}
}
