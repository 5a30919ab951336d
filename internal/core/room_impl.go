package core

import (
	"sync"
	"time"

	"github.com/dkeye/babel/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room *domain.Room

	mu       sync.RWMutex
	order    []domain.ParticipantID
	byID     map[domain.ParticipantID]*domain.Participant
	byName   map[string]domain.ParticipantID
	sessions map[domain.ParticipantID]*Session
	// inflight marks participants with a running utterance. It survives
	// leave and rejoin, unlike the visible speaking flag.
	inflight map[domain.ParticipantID]struct{}
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:     room,
		byID:     make(map[domain.ParticipantID]*domain.Participant),
		byName:   make(map[string]domain.ParticipantID),
		sessions: make(map[domain.ParticipantID]*Session),
		inflight: make(map[domain.ParticipantID]struct{}),
	}
}

func (r *roomImpl) Room() domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.room
}

func (r *roomImpl) Join(name string, lang domain.Language, sess *Session) JoinResult {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		p := r.byID[id]
		_, busy := r.inflight[id]
		p.Online = true
		p.Speaking = busy
		p.Language = lang
		p.LastActivity = now
		replaced := r.sessions[id]
		if replaced == sess {
			replaced = nil
		}
		r.sessions[id] = sess
		log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("participant", string(id)).Str("name", name).Msg("participant rejoined")
		return JoinResult{Participant: *p, Rejoined: true, Replaced: replaced}
	}

	p := domain.NewParticipant(name, lang)
	r.byID[p.ID] = &p
	r.byName[name] = p.ID
	r.order = append(r.order, p.ID)
	r.sessions[p.ID] = sess
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("participant", string(p.ID)).Str("name", name).Msg("participant joined")
	return JoinResult{Participant: p}
}

func (r *roomImpl) Leave(pid domain.ParticipantID, sess *Session) (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[pid]
	if !ok || r.sessions[pid] != sess {
		return domain.Participant{}, false
	}
	delete(r.sessions, pid)
	p.Online = false
	p.Speaking = false
	p.LastActivity = time.Now().UTC()
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("participant", string(pid)).Msg("participant offline")
	return *p, true
}

func (r *roomImpl) SetSpeaking(pid domain.ParticipantID, speaking bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[pid]
	if !ok {
		return false
	}
	p.Speaking = speaking
	p.LastActivity = time.Now().UTC()
	return true
}

func (r *roomImpl) TryBeginSpeaking(pid domain.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[pid]
	if !ok {
		return false
	}
	if _, busy := r.inflight[pid]; busy {
		return false
	}
	r.inflight[pid] = struct{}{}
	p.Speaking = true
	p.LastActivity = time.Now().UTC()
	return true
}

func (r *roomImpl) EndSpeaking(pid domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, pid)
	if p, ok := r.byID[pid]; ok {
		p.Speaking = false
	}
}

func (r *roomImpl) SetLanguage(pid domain.ParticipantID, lang domain.Language) (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[pid]
	if !ok {
		return domain.Participant{}, false
	}
	p.Language = lang
	p.LastActivity = time.Now().UTC()
	return *p, true
}

func (r *roomImpl) Touch(pid domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[pid]; ok {
		p.LastActivity = time.Now().UTC()
	}
}

func (r *roomImpl) Participant(pid domain.ParticipantID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[pid]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

func (r *roomImpl) OnlineSnapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.sessions))
	for _, id := range r.order {
		if p := r.byID[id]; p.Online {
			out = append(out, *p)
		}
	}
	return out
}

func (r *roomImpl) Participants() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

func (r *roomImpl) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.byID {
		if p.Online {
			n++
		}
	}
	return n
}

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *roomImpl) SessionOf(pid domain.ParticipantID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[pid]
	return s, ok
}

func (r *roomImpl) Sessions() []Attached {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Attached, 0, len(r.sessions))
	for _, id := range r.order {
		if s, ok := r.sessions[id]; ok {
			out = append(out, Attached{Participant: id, Session: s})
		}
	}
	return out
}

func (r *roomImpl) Close() []Attached {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Attached, 0, len(r.sessions))
	for _, id := range r.order {
		if s, ok := r.sessions[id]; ok {
			out = append(out, Attached{Participant: id, Session: s})
		}
		p := r.byID[id]
		p.Online = false
		p.Speaking = false
	}
	r.sessions = make(map[domain.ParticipantID]*Session)
	r.room.Active = false
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Int("detached", len(out)).Msg("room closed")
	return out
}
