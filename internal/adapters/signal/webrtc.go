package signal

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/babel/internal/adapters/rtc"
	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/domain"
)

type sdpMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidateMessage struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

var errMediaDisabled = domain.Errorf(domain.KindProtocol, "live audio is disabled")

func (ctl *SignalWSController) sendCandidate(sid core.SessionID, ci webrtc.ICECandidateInit) {
	ctl.Orch.Send(sid, candidateMessage{
		Type:          "candidate",
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	})
}

// handleOffer answers a client offer and attaches the media leg to the
// joined session.
func (ctl *SignalWSController) handleOffer(sid core.SessionID, data []byte) error {
	if !ctl.Orch.MediaEnabled() {
		return errMediaDisabled
	}
	var p sdpMessage
	if err := decode(data, &p); err != nil {
		return err
	}

	wc, err := rtc.NewWebRTCConnection(ctl.opts.RTC, sid)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("webrtc new pc")
		return err
	}
	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) { ctl.sendCandidate(sid, ci) })

	if err := ctl.Orch.AttachMedia(sid, wc); err != nil {
		wc.Close()
		return err
	}
	if err := wc.Start(context.Background()); err != nil {
		wc.Close()
		return err
	}

	answer, err := wc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("webrtc apply offer")
		wc.Close()
		return domain.Wrap(domain.KindProtocol, "invalid offer", err)
	}
	ctl.Orch.Send(sid, sdpMessage{Type: "answer", SDP: answer.SDP})

	// Tracks added for relays below need a server side offer.
	wc.OnNegotiationNeeded(func() { ctl.renegotiate(sid, wc) })
	ctl.Orch.OnMediaReady(sid)
	return nil
}

func (ctl *SignalWSController) renegotiate(sid core.SessionID, mc core.MediaConnection) {
	offer, err := mc.CreateAndSetOffer()
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("renegotiation offer")
		return
	}
	ctl.Orch.Send(sid, sdpMessage{Type: "offer", SDP: offer.SDP})
}

func (ctl *SignalWSController) handleAnswer(sid core.SessionID, data []byte) error {
	if !ctl.Orch.MediaEnabled() {
		return errMediaDisabled
	}
	var p sdpMessage
	if err := decode(data, &p); err != nil {
		return err
	}
	mc, err := ctl.media(sid)
	if err != nil {
		return err
	}
	if err := mc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}); err != nil {
		return domain.Wrap(domain.KindProtocol, "invalid answer", err)
	}
	return nil
}

func (ctl *SignalWSController) handleCandidate(sid core.SessionID, data []byte) error {
	if !ctl.Orch.MediaEnabled() {
		return errMediaDisabled
	}
	var p candidateMessage
	if err := decode(data, &p); err != nil {
		return err
	}
	mc, err := ctl.media(sid)
	if err != nil {
		return err
	}
	cand := webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}
	if err := mc.AddICECandidate(cand); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("add ice candidate")
	}
	return nil
}

func (ctl *SignalWSController) media(sid core.SessionID) (core.MediaConnection, error) {
	sess, ok := ctl.Orch.Registry.Get(sid)
	if !ok {
		return nil, domain.ErrNotJoined
	}
	mc := sess.Media()
	if mc == nil {
		return nil, domain.Errorf(domain.KindProtocol, "no media connection, send an offer first")
	}
	return mc, nil
}
