package orch

import (
	"github.com/dkeye/babel/internal/app/pipeline"
	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/domain"
)

// OnVoice admits one utterance and runs it in the background. It returns
// without waiting so the caller's read loop keeps serving the connection.
func (o *Orchestrator) OnVoice(sid core.SessionID, audio []byte, claimed string) error {
	sess, room, speaker, err := o.joined(sid)
	if err != nil {
		return err
	}
	if len(audio) == 0 {
		return domain.ErrEmptyAudio
	}
	var claimedLang domain.Language
	if claimed != "" {
		if l, ok := o.Catalog.Detect(claimed); ok {
			claimedLang = l
		}
	}
	if !sess.BeginUtterance() {
		return domain.ErrBusy
	}
	if !room.TryBeginSpeaking(speaker.ID) {
		sess.EndUtterance()
		return domain.ErrBusy
	}

	req := pipeline.Request{
		Room:            room,
		Speaker:         speaker,
		Audio:           audio,
		ClaimedLanguage: claimedLang,
	}
	o.spawn(sid, "voice", func() {
		defer sess.EndUtterance()
		o.Pipeline.Run(o.baseContext(), req)
	})
	return nil
}
