package domain

import (
	"time"

	"github.com/google/uuid"
)

type UtteranceID string

// UtteranceKind tells spoken turns from typed chat messages.
type UtteranceKind string

const (
	UtteranceVoice UtteranceKind = "voice"
	UtteranceText  UtteranceKind = "text"
)

// MaxTextLen bounds a typed chat message, in runes.
const MaxTextLen = 4000

func NewUtteranceID() UtteranceID {
	return UtteranceID(uuid.NewString())
}

// Utterance is one speaker turn, spoken or typed. It lives for the duration
// of a pipeline run.
type Utterance struct {
	ID               UtteranceID
	Kind             UtteranceKind
	RoomID           RoomID
	SpeakerID        ParticipantID
	SpeakerName      string
	Audio            []byte
	ClaimedLanguage  Language
	DetectedLanguage Language
	Text             string
	CreatedAt        time.Time
}

// Delivery is the result of an utterance for one recipient.
// Err is set when translation failed for that recipient only.
type Delivery struct {
	UtteranceID    UtteranceID
	TargetID       ParticipantID
	TargetName     string
	TargetLanguage Language
	SpeakerID      ParticipantID
	SpeakerName    string
	OriginalText   string
	SourceLanguage Language
	TranslatedText string
	Err            error
}

func (d Delivery) Failed() bool { return d.Err != nil }
