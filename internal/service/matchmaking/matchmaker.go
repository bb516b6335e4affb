package matchmaking

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/logging"
	"github.com/iamasit07/wordle-duel/backend/internal/service/words"
	"github.com/iamasit07/wordle-duel/backend/pkg/uid"
)

// waitingScan bounds how many open Sessions one attempt tries to join.
const waitingScan = 16

// Scheduler arms and disarms the expiry check of a waiting Session.
type Scheduler interface {
	Schedule(id string, createdAt time.Time)
	Cancel(id string)
}

type Matchmaker struct {
	store    domain.SessionStore
	words    words.Source
	reaper   Scheduler
	attempts uint
	now      func() time.Time
	newID    func() string
	log      zerolog.Logger
}

func NewMatchmaker(store domain.SessionStore, src words.Source, reaper Scheduler) *Matchmaker {
	return &Matchmaker{
		store:    store,
		words:    src,
		reaper:   reaper,
		attempts: 25,
		now:      time.Now,
		newID:    uid.NewSessionID,
		log:      logging.Component("matchmaking"),
	}
}

// FindOrCreateSession puts identity into the oldest open Session, or opens a
// new one when none is waiting. A join that loses to a concurrent caller
// starts over from the lookup; once the attempts run out identity gets a
// Session of its own.
func (m *Matchmaker) FindOrCreateSession(ctx context.Context, identity string) (*domain.Session, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond

	s, err := backoff.Retry(ctx, func() (*domain.Session, error) {
		s, err := m.matchOnce(ctx, identity)
		switch {
		case err == nil:
			return s, nil
		case errors.Is(err, domain.ErrRaceLost):
			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	}, backoff.WithBackOff(b), backoff.WithMaxTries(m.attempts))
	if errors.Is(err, domain.ErrRaceLost) && ctx.Err() == nil {
		m.log.Warn().Str("player_id", identity).Uint("attempts", m.attempts).Msg("joins kept losing, opening a new session")
		return m.CreateSession(ctx, identity)
	}
	return s, err
}

func (m *Matchmaker) matchOnce(ctx context.Context, identity string) (*domain.Session, error) {
	waiting, err := m.store.FindByStatus(ctx, domain.StatusWaiting, waitingScan)
	if err != nil {
		return nil, err
	}

	for _, s := range waiting {
		if s.IsParticipant(identity) {
			return s, nil
		}
	}

	raced := false
	for _, s := range waiting {
		joined, err := m.join(ctx, s.ID, identity)
		switch {
		case err == nil:
			m.log.Info().Str("session_id", joined.ID).Str("coordinator", joined.Coordinator()).Str("player_id", identity).Msg("match found")
			return joined, nil
		case errors.Is(err, domain.ErrRaceLost), errors.Is(err, domain.ErrNotFound):
			raced = true
		default:
			return nil, err
		}
	}
	if raced {
		return nil, domain.ErrRaceLost
	}

	return m.CreateSession(ctx, identity)
}

// join claims the free slot only while the Session is still waiting.
func (m *Matchmaker) join(ctx context.Context, id, identity string) (*domain.Session, error) {
	joined, err := m.store.Update(ctx, id, func(s *domain.Session) error {
		if s.Status != domain.StatusWaiting || s.IsFull() {
			return domain.ErrRaceLost
		}
		return s.AddParticipant(identity)
	})
	if err != nil {
		return nil, err
	}
	if joined.IsFull() {
		m.reaper.Cancel(id)
	}
	return joined, nil
}

// CreateSession opens a waiting Session for identity and arms its expiry.
func (m *Matchmaker) CreateSession(ctx context.Context, identity string) (*domain.Session, error) {
	word, err := m.words.SecretWord(ctx)
	if err != nil {
		return nil, err
	}

	s := domain.NewSession(m.newID(), word, identity, m.now())
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	m.reaper.Schedule(s.ID, s.CreatedAt)

	m.log.Info().Str("session_id", s.ID).Str("player_id", identity).Msg("session created")
	return s, nil
}

// JoinSession joins a Session by id. Joining a Session one already belongs to
// is a no-op; a Session that is full or already started fails with
// ErrSessionFull.
func (m *Matchmaker) JoinSession(ctx context.Context, id, identity string) (*domain.Session, error) {
	joined, err := m.store.Update(ctx, id, func(s *domain.Session) error {
		return s.AddParticipant(identity)
	})
	if err != nil {
		return nil, err
	}
	if joined.IsFull() {
		m.reaper.Cancel(id)
	}
	return joined, nil
}
