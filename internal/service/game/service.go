package game

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/logging"
)

type NameResolver interface {
	DisplayName(ctx context.Context, playerID string) string
}

// GameRepository archives finished games. It is optional.
type GameRepository interface {
	SaveGame(ctx context.Context, rec domain.GameRecord) error
	GetPlayerHistory(ctx context.Context, playerID string, limit int) ([]domain.GameRecord, error)
}

// Service applies guesses and renders Sessions for their viewers.
type Service struct {
	store      domain.SessionStore
	names      NameResolver
	repo       GameRepository
	maxGuesses int
	now        func() time.Time
	log        zerolog.Logger

	saves sync.WaitGroup
}

func NewService(store domain.SessionStore, names NameResolver, repo GameRepository, maxGuesses int) *Service {
	return &Service{
		store:      store,
		names:      names,
		repo:       repo,
		maxGuesses: maxGuesses,
		now:        time.Now,
		log:        logging.Component("game"),
	}
}

// Outcome is the result of one accepted guess.
type Outcome struct {
	Guess string        `json:"guess"`
	Tiles []domain.Tile `json:"tiles"`
	Won   bool          `json:"won"`
	Ended bool          `json:"ended"`
	View  *View         `json:"view"`
}

// SubmitGuess validates raw before touching the store, then appends it and,
// on a hit, ends the Session with identity as winner in the same write.
func (svc *Service) SubmitGuess(ctx context.Context, sessionID, identity, raw string) (*Outcome, error) {
	guess, err := domain.NormalizeGuess(raw)
	if err != nil {
		return nil, err
	}

	updated, err := svc.store.Update(ctx, sessionID, func(s *domain.Session) error {
		return s.ApplyGuess(identity, guess, svc.maxGuesses, svc.now())
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Guess: guess,
		Tiles: domain.Feedback(guess, updated.SecretWord),
		Won:   updated.Winner == identity,
		Ended: updated.Status == domain.StatusEnded,
		View:  svc.ViewOf(ctx, updated, identity),
	}
	if out.Ended {
		svc.log.Info().Str("session_id", updated.ID).Str("winner", updated.Winner).Msg("session ended")
		svc.saveGameAsync(updated)
	}
	return out, nil
}

func (svc *Service) saveGameAsync(s *domain.Session) {
	if svc.repo == nil {
		return
	}
	rec := domain.RecordOf(s)
	svc.saves.Add(1)
	go func() {
		defer svc.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svc.repo.SaveGame(ctx, rec); err != nil {
			svc.log.Error().Err(err).Str("session_id", rec.GameID).Msg("error saving game")
			return
		}
		svc.log.Debug().Str("session_id", rec.GameID).Msg("game saved")
	}()
}

// WaitForSaves blocks until pending archive writes finish.
func (svc *Service) WaitForSaves() {
	svc.saves.Wait()
}

// View returns the Session as viewer sees it. Non-participants may watch.
func (svc *Service) View(ctx context.Context, sessionID, viewer string) (*View, error) {
	s, err := svc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return svc.ViewOf(ctx, s, viewer), nil
}

// LeaveToMenu records that identity left an ended Session. The opponent can
// then no longer ask for a rematch.
func (svc *Service) LeaveToMenu(ctx context.Context, sessionID, identity string) (*View, error) {
	updated, err := svc.store.Update(ctx, sessionID, func(s *domain.Session) error {
		return s.LeaveToMenu(identity)
	})
	if err != nil {
		return nil, err
	}
	return svc.ViewOf(ctx, updated, identity), nil
}

// LiveGames lists in-progress Sessions, oldest first.
func (svc *Service) LiveGames(ctx context.Context, limit int) ([]Summary, error) {
	sessions, err := svc.store.FindByStatus(ctx, domain.StatusInProgress, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		sum := Summary{ID: s.ID, CreatedAt: s.CreatedAt}
		for _, id := range s.Participants {
			sum.Players = append(sum.Players, svc.names.DisplayName(ctx, id))
			sum.GuessCount += len(s.Guesses[id])
		}
		out = append(out, sum)
	}
	return out, nil
}

// History returns identity's archived games, newest first.
func (svc *Service) History(ctx context.Context, identity string, limit int) ([]domain.GameRecord, error) {
	if svc.repo == nil {
		return []domain.GameRecord{}, nil
	}
	return svc.repo.GetPlayerHistory(ctx, identity, limit)
}

// DisplayName resolves the name shown for playerID.
func (svc *Service) DisplayName(ctx context.Context, playerID string) string {
	if playerID == "" {
		return ""
	}
	return svc.names.DisplayName(ctx, playerID)
}
