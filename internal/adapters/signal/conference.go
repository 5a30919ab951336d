package signal

import (
	"encoding/base64"

	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/domain"
	"github.com/dkeye/babel/internal/protocol"
)

func (ctl *SignalWSController) handleJoin(sid core.SessionID, roomID domain.RoomID, data []byte) error {
	var p protocol.JoinConference
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.JoinConference(sid, roomID, p.ParticipantName, p.Language)
}

func (ctl *SignalWSController) handleVoice(sid core.SessionID, data []byte) error {
	var p protocol.VoiceMessage
	if err := decode(data, &p); err != nil {
		return err
	}
	audio, err := base64.StdEncoding.DecodeString(p.AudioData)
	if err != nil {
		return domain.Wrap(domain.KindProtocol, "audio_data is not valid base64", err)
	}
	return ctl.Orch.OnVoice(sid, audio, p.SpeakerLanguage)
}

func (ctl *SignalWSController) handleTyping(sid core.SessionID, data []byte) error {
	var p protocol.Typing
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.OnTyping(sid, p.IsTyping)
}

func (ctl *SignalWSController) handleChangeLanguage(sid core.SessionID, data []byte) error {
	var p protocol.ChangeLanguage
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.ChangeLanguage(sid, p.Language)
}

func (ctl *SignalWSController) handleText(sid core.SessionID, data []byte) error {
	var p protocol.TextMessage
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.OnText(sid, p.Message, p.SourceLanguage)
}

func (ctl *SignalWSController) handleTranslationRequest(sid core.SessionID, data []byte) error {
	var p protocol.TranslationRequest
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.OnTranslationRequest(sid, p.Text, p.SourceLanguage, p.TargetLanguage)
}
