package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxNameLen = 64

type ParticipantID string

func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

// Participant is one joined identity within a room.
// Rooms hand out copies; the stored record is mutated only under the room lock.
type Participant struct {
	ID           ParticipantID `json:"id"`
	Name         string        `json:"name"`
	Language     Language      `json:"language"`
	Speaking     bool          `json:"is_speaking"`
	Online       bool          `json:"is_online"`
	JoinedAt     time.Time     `json:"joined_at"`
	LastActivity time.Time     `json:"last_activity"`
}

func NewParticipant(name string, lang Language) Participant {
	now := time.Now().UTC()
	return Participant{
		ID:           NewParticipantID(),
		Name:         name,
		Language:     lang,
		Online:       true,
		JoinedAt:     now,
		LastActivity: now,
	}
}

// ValidateName trims the display name and checks its length.
func ValidateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", Errorf(KindInvalidName, "participant name is empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return "", Errorf(KindInvalidName, "participant name is longer than %d characters", MaxNameLen)
	}
	return name, nil
}
