package sfu

import (
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// OutTrack is one listener's copy of a speaker's audio.
type OutTrack struct {
	Track *webrtc.TrackLocalStaticRTP
	state atomic.Int32
	sent  atomic.Uint64
}

func NewOutTrack(track *webrtc.TrackLocalStaticRTP) *OutTrack {
	return &OutTrack{Track: track}
}

func (ot *OutTrack) State() TrackState { return TrackState(ot.state.Load()) }
func (ot *OutTrack) Sent() uint64      { return ot.sent.Load() }

func (ot *OutTrack) MarkOk()     { ot.state.Store(int32(TrackStateOk)) }
func (ot *OutTrack) MarkMuted()  { ot.state.Store(int32(TrackStateMuted)) }
func (ot *OutTrack) MarkDelete() { ot.state.Store(int32(TrackStateDelete)) }

// write forwards pkt unless the track is muted. A write error marks the
// track for deletion.
func (ot *OutTrack) write(pkt *rtp.Packet) error {
	if ot.State() != TrackStateOk {
		return nil
	}
	if err := ot.Track.WriteRTP(pkt); err != nil {
		ot.MarkDelete()
		return err
	}
	ot.sent.Add(1)
	return nil
}
