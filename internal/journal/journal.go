// Package journal keeps a per-room record of finished utterances and their
// delivery outcomes. Audio is never stored.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/babel/internal/domain"
)

const DefaultLimit = 50

var ErrClosed = errors.New("journal: closed")

type DeliveryRecord struct {
	TargetID       domain.ParticipantID `json:"target_id"`
	TargetName     string               `json:"target_name"`
	TargetLanguage domain.Language      `json:"target_language"`
	TranslatedText string               `json:"translated_text,omitempty"`
	Error          string               `json:"error,omitempty"`
}

type Entry struct {
	UtteranceID    domain.UtteranceID   `json:"message_id"`
	Kind           domain.UtteranceKind `json:"message_type"`
	RoomID         domain.RoomID        `json:"room_id"`
	SpeakerID      domain.ParticipantID `json:"speaker_id"`
	SpeakerName    string               `json:"speaker_name"`
	SourceLanguage domain.Language      `json:"source_language"`
	Text           string               `json:"original_text"`
	CreatedAt      time.Time            `json:"created_at"`
	Deliveries     []DeliveryRecord     `json:"deliveries"`
}

// EntryOf builds a journal entry from a finished utterance.
func EntryOf(u domain.Utterance, deliveries []domain.Delivery) Entry {
	e := Entry{
		UtteranceID:    u.ID,
		Kind:           u.Kind,
		RoomID:         u.RoomID,
		SpeakerID:      u.SpeakerID,
		SpeakerName:    u.SpeakerName,
		SourceLanguage: u.DetectedLanguage,
		Text:           u.Text,
		CreatedAt:      u.CreatedAt,
		Deliveries:     make([]DeliveryRecord, 0, len(deliveries)),
	}
	for _, d := range deliveries {
		r := DeliveryRecord{
			TargetID:       d.TargetID,
			TargetName:     d.TargetName,
			TargetLanguage: d.TargetLanguage,
			TranslatedText: d.TranslatedText,
		}
		if d.Failed() {
			_, r.Error = domain.Public(d.Err)
		}
		e.Deliveries = append(e.Deliveries, r)
	}
	return e
}

type Journal interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns up to limit newest entries of a room, oldest first.
	Recent(ctx context.Context, roomID domain.RoomID, limit int) ([]Entry, error)
	DeleteRoom(ctx context.Context, roomID domain.RoomID) error
	Close() error
}
