package core

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/babel/internal/domain"
)

type SessionID string

// SessionState follows Connecting -> Idle <-> Speaking -> Leaving -> Gone.
// Idle and Speaking together are the "joined" states.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateIdle
	StateSpeaking
	StateLeaving
	StateGone
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	case StateLeaving:
		return "leaving"
	case StateGone:
		return "gone"
	}
	return "invalid"
}

func (s SessionState) Joined() bool {
	return s == StateIdle || s == StateSpeaking
}

// Session is one live connection. It is the authoritative owner of its
// participant's online status: only the session attached to a participant
// may take it offline.
type Session struct {
	id     SessionID
	signal SignalConnection
	state  atomic.Int32

	mu          sync.RWMutex
	roomID      domain.RoomID
	participant domain.ParticipantID
	media       MediaConnection
}

func NewSession(id SessionID, signal SignalConnection) *Session {
	return &Session{id: id, signal: signal}
}

func (s *Session) ID() SessionID            { return s.id }
func (s *Session) Signal() SignalConnection { return s.signal }
func (s *Session) State() SessionState      { return SessionState(s.state.Load()) }

// Attach binds the session to a participant. Allowed from Connecting or Idle
// (a second join_conference on the same connection re-binds it).
func (s *Session) Attach(roomID domain.RoomID, pid domain.ParticipantID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateIdle)) &&
		s.State() != StateIdle {
		return false
	}
	s.roomID = roomID
	s.participant = pid
	return true
}

// Binding reports the room and participant this session speaks for.
func (s *Session) Binding() (domain.RoomID, domain.ParticipantID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.participant == "" {
		return "", "", false
	}
	return s.roomID, s.participant, true
}

// Detach drops the binding after another connection took the participant
// over. An idle session goes back to Connecting and may join again; a
// speaking one stays Speaking until its utterance ends.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = ""
	s.participant = ""
	s.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting))
}

// BeginUtterance moves Idle -> Speaking. False means another utterance from
// this session is in flight, or the session is not joined.
func (s *Session) BeginUtterance() bool {
	return s.state.CompareAndSwap(int32(StateIdle), int32(StateSpeaking))
}

// EndUtterance moves Speaking -> Idle, or back to Connecting when the session
// was detached meanwhile. It is a no-op once the session is leaving.
func (s *Session) EndUtterance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CompareAndSwap(int32(StateSpeaking), int32(StateIdle)) {
		return
	}
	if s.participant == "" {
		s.state.Store(int32(StateConnecting))
	}
}

// BeginLeave moves any live state to Leaving. Only the first caller gets true.
func (s *Session) BeginLeave() bool {
	for {
		cur := s.state.Load()
		if cur == int32(StateLeaving) || cur == int32(StateGone) {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(StateLeaving)) {
			return true
		}
	}
}

// Finish marks the session terminal.
func (s *Session) Finish() {
	s.state.Store(int32(StateGone))
}

func (s *Session) Media() MediaConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.media
}

// UpdateMedia swaps the media leg and returns the previous one, if any.
func (s *Session) UpdateMedia(mc MediaConnection) MediaConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.media
	s.media = mc
	return old
}
