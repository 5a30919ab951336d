// Package sfu relays live speaker audio between participants of a room.
package sfu

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/domain"
)

type RelayManager struct {
	mu     sync.RWMutex
	relays map[domain.ParticipantID]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{relays: make(map[domain.ParticipantID]*Relay)}
}

// StartRelay starts forwarding the speaker's track. A previous relay for the
// same speaker is stopped.
func (m *RelayManager) StartRelay(ctx context.Context, src domain.ParticipantID, track *webrtc.TrackRemote) {
	logger := log.With().
		Str("module", "sfu").
		Str("participant", string(src)).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(track, cancel)

	m.mu.Lock()
	if old, ok := m.relays[src]; ok {
		logger.Info().Msg("replacing existing relay")
		old.markAllDelete()
		old.cancel()
	}
	m.relays[src] = relay
	m.mu.Unlock()

	logger.Info().Str("codec", track.Codec().MimeType).Msg("starting relay loop")
	go relay.loop(relayCtx, &logger)
}

// Subscribe adds a local copy of the speaker's track to the listener's
// connection. The caller renegotiates once the connection asks for it.
func (m *RelayManager) Subscribe(src, dst domain.ParticipantID, mc core.MediaConnection, track *webrtc.TrackRemote) error {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if ot, ok := relay.OutTrack(dst); ok && ot.State() != TrackStateDelete {
		return nil
	}

	local, err := webrtc.NewTrackLocalStaticRTP(track.Codec().RTPCodecCapability, track.ID(), track.StreamID())
	if err != nil {
		return err
	}
	sender, err := mc.AddLocalTrack(local)
	if err != nil {
		return err
	}
	go drainRTCP(sender)

	relay.AddOutTrack(dst, NewOutTrack(local))
	log.Debug().Str("module", "sfu").Str("speaker", string(src)).Str("listener", string(dst)).Msg("listener subscribed")
	return nil
}

// drainRTCP reads the sender's RTCP so interceptors keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (m *RelayManager) MarkSubscriberDelete(src, dst domain.ParticipantID) {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if ot, ok := relay.OutTrack(dst); ok {
		ot.MarkDelete()
	}
}

// Unsubscribe detaches a listener from every relay.
func (m *RelayManager) Unsubscribe(dst domain.ParticipantID) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, relay := range m.relays {
		if ot, ok := relay.OutTrack(dst); ok {
			ot.MarkDelete()
		}
	}
}

func (m *RelayManager) StopRelay(src domain.ParticipantID) {
	m.mu.Lock()
	relay, ok := m.relays[src]
	if ok {
		delete(m.relays, src)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	relay.cancel()
}

func (m *RelayManager) HasRelay(src domain.ParticipantID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[src]
	return ok
}

func (m *RelayManager) SrcTrack(src domain.ParticipantID) (*webrtc.TrackRemote, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	relay, ok := m.relays[src]
	if !ok {
		return nil, false
	}
	return relay.Src, true
}
