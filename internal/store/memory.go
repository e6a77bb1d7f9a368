package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kr1s01/cfuv-chess/internal/domain"
)

// memory is a development and test implementation. It keeps the same
// atomicity contract as the SQL store: CommitMove mutates everything under
// one lock or nothing at all.
type memory struct {
	mu sync.RWMutex

	participants map[string]*domain.Participant
	byUsername   map[string]string // lower(username) -> id
	byEmail      map[string]string // lower(email) -> id

	sessions map[string]*domain.Session
	moves    map[string][]*domain.MoveRecord // session id -> append-ordered log
}

func NewMemory() Store {
	return &memory{
		participants: make(map[string]*domain.Participant),
		byUsername:   make(map[string]string),
		byEmail:      make(map[string]string),
		sessions:     make(map[string]*domain.Session),
		moves:        make(map[string][]*domain.MoveRecord),
	}
}

func (m *memory) CreateParticipant(_ context.Context, p *domain.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUsername[strings.ToLower(p.Username)]; ok {
		return ErrDuplicate
	}
	if _, ok := m.byEmail[strings.ToLower(p.Email)]; ok {
		return ErrDuplicate
	}
	cp := *p
	m.participants[p.ID] = &cp
	m.byUsername[strings.ToLower(p.Username)] = p.ID
	m.byEmail[strings.ToLower(p.Email)] = p.ID
	return nil
}

func (m *memory) GetParticipant(_ context.Context, id string) (*domain.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyParticipant(m.participants[id])
}

func (m *memory) GetParticipantByUsername(_ context.Context, username string) (*domain.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyParticipant(m.participants[m.byUsername[strings.ToLower(username)]])
}

func (m *memory) GetParticipantByEmail(_ context.Context, email string) (*domain.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyParticipant(m.participants[m.byEmail[strings.ToLower(email)]])
}

func (m *memory) SaveParticipant(_ context.Context, p *domain.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.participants[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	m.participants[p.ID] = &cp
	return nil
}

func (m *memory) ListByRating(_ context.Context, offset, limit int) ([]*domain.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*domain.Participant, 0, len(m.participants))
	for _, p := range m.participants {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Rating != all[j].Rating {
			return all[i].Rating > all[j].Rating
		}
		return all[i].Username < all[j].Username
	})
	return page(all, offset, limit), nil
}

func (m *memory) CreateSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return ErrDuplicate
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memory) GetSession(_ context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memory) SaveSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memory) ListOpenOrActive(_ context.Context, offset, limit int) ([]*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.Status == domain.StatusFinished {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, offset, limit), nil
}

func (m *memory) ListByParticipant(_ context.Context, participantID string) ([]*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.HasPlayer(participantID) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memory) ListMoves(_ context.Context, sessionID string) ([]*domain.MoveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := m.moves[sessionID]
	out := make([]*domain.MoveRecord, 0, len(log))
	for _, rec := range log {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memory) CommitMove(_ context.Context, s *domain.Session, rec *domain.MoveRecord, ratings ...*domain.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	for _, p := range ratings {
		if _, ok := m.participants[p.ID]; !ok {
			return ErrNotFound
		}
	}
	cs := *s
	m.sessions[s.ID] = &cs
	cr := *rec
	m.moves[s.ID] = append(m.moves[s.ID], &cr)
	for _, p := range ratings {
		cp := *p
		m.participants[p.ID] = &cp
	}
	return nil
}

func (m *memory) ForceFinishOpen(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.Status == domain.StatusFinished {
			continue
		}
		s.Status = domain.StatusFinished
		s.Outcome = domain.OutcomeDraw
		n++
	}
	return n, nil
}

func (m *memory) Close() error { return nil }

func copyParticipant(p *domain.Participant) (*domain.Participant, error) {
	if p == nil {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
