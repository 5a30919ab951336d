// Package protocol holds the JSON documents exchanged on the conference channel.
// Every document is a flat object with a "type" discriminator.
package protocol

import "github.com/dkeye/babel/internal/domain"

// Client -> server.
const (
	TypeJoinConference = "join_conference"
	TypeVoiceMessage   = "voice_message"
	TypeTextMessage    = "text_message"
	TypeTranslationReq = "translation_request"
	TypePing           = "ping"
	TypeTyping         = "typing"
	TypeChangeLanguage = "change_language"
	TypeOffer          = "offer"
	TypeAnswer         = "answer"
	TypeCandidate      = "candidate"
)

// Server -> client.
const (
	TypeJoinedSuccessfully = "joined_successfully"
	TypeParticipantsList   = "participants_list"
	TypeParticipantJoined  = "participant_joined"
	TypeParticipantLeft    = "participant_left"
	TypeSpeakingStatus     = "speaking_status"
	TypeVoiceTranslation   = "voice_translation"
	TypeChatMessage        = "chat_message"
	TypeTranslationResult  = "translation_result"
	TypeTypingIndicator    = "typing_indicator"
	TypeLanguageChanged    = "language_changed"
	TypeError              = "error"
	TypePong               = "pong"
)

type Envelope struct {
	Type string `json:"type"`
}

type JoinConference struct {
	Type            string `json:"type"`
	ParticipantName string `json:"participant_name"`
	Language        string `json:"language"`
}

type VoiceMessage struct {
	Type            string `json:"type"`
	AudioData       string `json:"audio_data"`
	SpeakerLanguage string `json:"speaker_language,omitempty"`
}

type TextMessage struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	SourceLanguage string `json:"source_language,omitempty"`
}

type TranslationRequest struct {
	Type           string `json:"type,omitempty"`
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language"`
}

type Typing struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

type ChangeLanguage struct {
	Type     string `json:"type"`
	Language string `json:"language"`
}

type ParticipantView struct {
	ID         domain.ParticipantID `json:"id"`
	Name       string               `json:"name"`
	Language   domain.Language      `json:"language"`
	IsSpeaking bool                 `json:"is_speaking"`
}

func ViewOf(p domain.Participant) ParticipantView {
	return ParticipantView{ID: p.ID, Name: p.Name, Language: p.Language, IsSpeaking: p.Speaking}
}

func ViewsOf(ps []domain.Participant) []ParticipantView {
	out := make([]ParticipantView, 0, len(ps))
	for _, p := range ps {
		out = append(out, ViewOf(p))
	}
	return out
}

type JoinedSuccessfully struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	RoomID        domain.RoomID        `json:"room_id"`
	RoomName      string               `json:"room_name"`
	Rejoined      bool                 `json:"rejoined,omitempty"`
}

type ParticipantsList struct {
	Type         string            `json:"type"`
	Participants []ParticipantView `json:"participants"`
}

type ParticipantJoined struct {
	Type        string          `json:"type"`
	Participant ParticipantView `json:"participant"`
}

type ParticipantLeft struct {
	Type            string               `json:"type"`
	ParticipantID   domain.ParticipantID `json:"participant_id"`
	ParticipantName string               `json:"participant_name"`
}

type SpeakingStatus struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	IsSpeaking    bool                 `json:"is_speaking"`
}

type VoiceTranslation struct {
	Type                string               `json:"type"`
	TargetParticipantID domain.ParticipantID `json:"target_participant_id"`
	SpeakerName         string               `json:"speaker_name"`
	SpeakerID           domain.ParticipantID `json:"speaker_id"`
	OriginalText        string               `json:"original_text"`
	TranslatedText      string               `json:"translated_text"`
	OriginalLanguage    domain.Language      `json:"original_language"`
	TargetLanguage      domain.Language      `json:"target_language"`
	VoiceMessageID      domain.UtteranceID   `json:"voice_message_id"`
	Error               bool                 `json:"error,omitempty"`
}

// TranslationOf renders a delivery. Failed deliveries keep the original text
// and carry the error marker.
func TranslationOf(d domain.Delivery) VoiceTranslation {
	text, failed := translatedText(d)
	return VoiceTranslation{
		Type:                TypeVoiceTranslation,
		TargetParticipantID: d.TargetID,
		SpeakerName:         d.SpeakerName,
		SpeakerID:           d.SpeakerID,
		OriginalText:        d.OriginalText,
		TranslatedText:      text,
		OriginalLanguage:    d.SourceLanguage,
		TargetLanguage:      d.TargetLanguage,
		VoiceMessageID:      d.UtteranceID,
		Error:               failed,
	}
}

// ChatMessage is a typed text message as delivered to one recipient.
type ChatMessage struct {
	Type                string               `json:"type"`
	TargetParticipantID domain.ParticipantID `json:"target_participant_id"`
	SpeakerName         string               `json:"speaker_name"`
	SpeakerID           domain.ParticipantID `json:"speaker_id"`
	OriginalText        string               `json:"original_text"`
	TranslatedText      string               `json:"translated_text"`
	OriginalLanguage    domain.Language      `json:"original_language"`
	TargetLanguage      domain.Language      `json:"target_language"`
	MessageID           domain.UtteranceID   `json:"message_id"`
	Error               bool                 `json:"error,omitempty"`
}

func ChatMessageOf(d domain.Delivery) ChatMessage {
	text, failed := translatedText(d)
	return ChatMessage{
		Type:                TypeChatMessage,
		TargetParticipantID: d.TargetID,
		SpeakerName:         d.SpeakerName,
		SpeakerID:           d.SpeakerID,
		OriginalText:        d.OriginalText,
		TranslatedText:      text,
		OriginalLanguage:    d.SourceLanguage,
		TargetLanguage:      d.TargetLanguage,
		MessageID:           d.UtteranceID,
		Error:               failed,
	}
}

func translatedText(d domain.Delivery) (string, bool) {
	if !d.Failed() {
		return d.TranslatedText, false
	}
	_, msg := domain.Public(d.Err)
	return "[Translation Error: " + msg + "]", true
}

// TranslationResult answers a one-off translation_request.
type TranslationResult struct {
	Type           string          `json:"type"`
	OriginalText   string          `json:"original_text"`
	TranslatedText string          `json:"translated_text"`
	SourceLanguage domain.Language `json:"source_language"`
	TargetLanguage domain.Language `json:"target_language"`
}

type TypingIndicator struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	Name          string               `json:"participant_name"`
	IsTyping      bool                 `json:"is_typing"`
}

type LanguageChanged struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	Language      domain.Language      `json:"language"`
}

type Error struct {
	Type    string      `json:"type"`
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

func ErrorOf(err error) Error {
	kind, msg := domain.Public(err)
	return Error{Type: TypeError, Kind: kind, Message: msg}
}

type Pong struct {
	Type string `json:"type"`
}
