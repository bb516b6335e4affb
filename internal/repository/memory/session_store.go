// Package memory is a single-process SessionStore used for development and
// tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/repository/notify"
)

type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	broker   *notify.Broker
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
		broker:   notify.NewBroker(),
	}
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	stored := session.Clone()
	stored.Normalize()
	stored.Version = 1
	s.sessions[stored.ID] = stored
	session.Version = stored.Version

	s.broker.Publish(domain.SessionEvent{SessionID: stored.ID, Session: stored.Clone()})
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return stored.Clone(), nil
}

// Update holds the store lock for the whole read-modify-write, so there is
// never a version conflict to retry.
func (s *SessionStore) Update(ctx context.Context, id string, mutate func(*domain.Session) error) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.applyLocked(stored, mutate)
}

func (s *SessionStore) applyLocked(stored *domain.Session, mutate func(*domain.Session) error) (*domain.Session, error) {
	next := stored.Clone()
	if err := mutate(next); err != nil {
		if errors.Is(err, domain.ErrUnchanged) {
			return stored.Clone(), nil
		}
		return nil, err
	}
	next.ID = stored.ID
	next.Version = stored.Version + 1
	s.sessions[next.ID] = next

	s.broker.Publish(domain.SessionEvent{SessionID: next.ID, Session: next.Clone()})
	return next.Clone(), nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.DeleteIf(ctx, id, func(*domain.Session) bool { return true })
	return err
}

func (s *SessionStore) DeleteIf(ctx context.Context, id string, cond func(*domain.Session) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[id]
	if !ok {
		return false, nil
	}
	if !cond(stored.Clone()) {
		return false, nil
	}
	delete(s.sessions, id)
	s.broker.Publish(domain.SessionEvent{SessionID: id})
	return true, nil
}

func (s *SessionStore) FindByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Session
	for _, stored := range s.sessions {
		if stored.Status == status {
			out = append(out, stored.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SessionStore) CreateSuccessor(ctx context.Context, originalID string, successor *domain.Session) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.sessions[originalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if original.SuccessorID != "" {
		return original.Clone(), domain.ErrRaceLost
	}
	if _, taken := s.sessions[successor.ID]; taken {
		return nil, fmt.Errorf("session %s already exists", successor.ID)
	}

	linked, err := s.applyLocked(original, func(sess *domain.Session) error {
		return sess.LinkSuccessor(successor.ID)
	})
	if err != nil {
		return nil, err
	}

	stored := successor.Clone()
	stored.Normalize()
	stored.Version = 1
	s.sessions[stored.ID] = stored
	successor.Version = stored.Version
	s.broker.Publish(domain.SessionEvent{SessionID: stored.ID, Session: stored.Clone()})

	return linked, nil
}

func (s *SessionStore) Subscribe(ctx context.Context, id string) (<-chan domain.SessionEvent, error) {
	src, stop := s.broker.Subscribe(id)

	initial := domain.SessionEvent{SessionID: id}
	if current, err := s.Get(ctx, id); err == nil {
		initial.Session = current
	}
	return notify.Stream(ctx, initial, src, stop), nil
}
