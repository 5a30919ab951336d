package core

import (
	"time"

	"github.com/dkeye/babel/internal/domain"
)

// Attached is a participant with the live session currently speaking for it.
type Attached struct {
	Participant domain.ParticipantID
	Session     *Session
}

// JoinResult is returned by RoomService.Join.
type JoinResult struct {
	Participant domain.Participant
	// Rejoined is true when an existing record with the same name was reactivated.
	Rejoined bool
	// Replaced is the session that spoke for this participant before, if any.
	Replaced *Session
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() domain.Room

	Join(name string, lang domain.Language, sess *Session) JoinResult
	// Leave takes the participant offline if sess is still attached to it.
	Leave(pid domain.ParticipantID, sess *Session) (domain.Participant, bool)
	SetSpeaking(pid domain.ParticipantID, speaking bool) bool
	// TryBeginSpeaking admits one utterance per participant, across every
	// connection that speaks for it. False means one is already in flight.
	TryBeginSpeaking(pid domain.ParticipantID) bool
	// EndSpeaking releases the admission and clears the speaking flag.
	EndSpeaking(pid domain.ParticipantID)
	SetLanguage(pid domain.ParticipantID, lang domain.Language) (domain.Participant, bool)
	Touch(pid domain.ParticipantID)

	Participant(pid domain.ParticipantID) (domain.Participant, bool)
	// OnlineSnapshot returns copies of online participants in join order.
	OnlineSnapshot() []domain.Participant
	// Participants returns every participant ever joined, online or not.
	Participants() []domain.Participant
	OnlineCount() int
	MemberCount() int

	SessionOf(pid domain.ParticipantID) (*Session, bool)
	Sessions() []Attached

	// Close deactivates the room and detaches every session.
	Close() []Attached
}

type RoomInfo struct {
	ID               domain.RoomID `json:"room_id"`
	Name             string        `json:"room_name"`
	ParticipantCount int           `json:"participant_count"`
	CreatedAt        time.Time     `json:"created_at"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Create(name string) RoomService
	GetRoom(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID) (RoomService, bool)
}
