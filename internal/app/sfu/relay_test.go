package sfu

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalTrack(t *testing.T, id string) *webrtc.TrackLocalStaticRTP {
	t.Helper()
	tr, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, id, "babel")
	require.NoError(t, err)
	return tr
}

func TestRelayForwardSkipsMutedAndPrunesDeleted(t *testing.T) {
	canceled := false
	r := NewRelay(nil, func() { canceled = true })
	bob := NewOutTrack(newLocalTrack(t, "bob"))
	carol := NewOutTrack(newLocalTrack(t, "carol"))
	dave := NewOutTrack(newLocalTrack(t, "dave"))
	r.AddOutTrack("bob", bob)
	r.AddOutTrack("carol", carol)
	r.AddOutTrack("dave", dave)
	assert.Equal(t, 3, r.Listeners())

	carol.MarkMuted()
	dave.MarkDelete()

	logger := zerolog.Nop()
	r.forward(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1}}, &logger)

	assert.Equal(t, uint64(1), bob.Sent())
	assert.Equal(t, uint64(0), carol.Sent())
	_, ok := r.OutTrack("dave")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Listeners())
	assert.False(t, canceled)
}

func TestRelayReplacingListenerMarksOldTrack(t *testing.T) {
	r := NewRelay(nil, func() {})
	first := NewOutTrack(newLocalTrack(t, "a"))
	r.AddOutTrack("bob", first)
	r.AddOutTrack("bob", NewOutTrack(newLocalTrack(t, "b")))
	assert.Equal(t, TrackStateDelete, first.State())
	assert.Equal(t, 1, r.Listeners())
}

func TestRelayManagerStopAndUnsubscribe(t *testing.T) {
	m := NewRelayManager()
	canceled := false
	relay := NewRelay(nil, func() { canceled = true })
	ot := NewOutTrack(newLocalTrack(t, "bob"))
	relay.AddOutTrack("bob", ot)
	m.relays["alice"] = relay

	assert.True(t, m.HasRelay("alice"))
	m.Unsubscribe("bob")
	assert.Equal(t, TrackStateDelete, ot.State())

	m.MarkSubscriberDelete("nobody", "bob")
	m.StopRelay("alice")
	assert.True(t, canceled)
	assert.False(t, m.HasRelay("alice"))
	_, ok := m.SrcTrack("alice")
	assert.False(t, ok)

	m.StopRelay("alice")
}
