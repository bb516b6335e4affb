// Package rematch negotiates the successor of an ended Session and the
// handoff of both participants to it.
package rematch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/logging"
	"github.com/iamasit07/wordle-duel/backend/internal/service/words"
	"github.com/iamasit07/wordle-duel/backend/pkg/uid"
)

type Service struct {
	store domain.SessionStore
	words words.Source
	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

func NewService(store domain.SessionStore, src words.Source) *Service {
	return &Service{
		store: store,
		words: src,
		now:   time.Now,
		newID: uid.NewSessionID,
		log:   logging.Component("rematch"),
	}
}

// RequestRematch records identity's consent. When this completes the pair,
// the successor is spawned on the coordinator's behalf right away. A word
// source failure is not returned: the consent stands and the next
// observation of the Session retries the spawn.
func (svc *Service) RequestRematch(ctx context.Context, sessionID, identity string) (*domain.Session, error) {
	updated, err := svc.store.Update(ctx, sessionID, func(s *domain.Session) error {
		return s.ConsentToRematch(identity)
	})
	if err != nil {
		return nil, err
	}

	if !updated.BothConsented() || updated.SuccessorID != "" {
		return updated, nil
	}
	linked, err := svc.MaybeSpawnSuccessor(ctx, updated, updated.Coordinator())
	if err != nil {
		svc.log.Warn().Err(err).Str("session_id", sessionID).Msg("successor not created yet")
		return updated, nil
	}
	return linked, nil
}

// MaybeSpawnSuccessor creates the successor of s when both participants
// consented, none exists yet and actor is the coordinator. The store links
// at most one successor; a losing writer gets the recorded one back.
func (svc *Service) MaybeSpawnSuccessor(ctx context.Context, s *domain.Session, actor string) (*domain.Session, error) {
	if s.SuccessorID != "" {
		return s, nil
	}
	if s.Status != domain.StatusEnded || !s.BothConsented() || actor != s.Coordinator() {
		return s, nil
	}

	word, err := svc.words.SecretWord(ctx)
	if err != nil {
		return s, err
	}

	successor := domain.NewSuccessor(svc.newID(), word, s, svc.now())
	linked, err := svc.store.CreateSuccessor(ctx, s.ID, successor)
	switch {
	case errors.Is(err, domain.ErrRaceLost):
		return linked, nil
	case err != nil:
		return s, err
	}

	svc.log.Info().Str("session_id", s.ID).Str("successor_id", successor.ID).Msg("rematch started")
	return linked, nil
}

// AcknowledgeHandoff marks identity as moved to the successor and returns
// its id. The acknowledgement that completes the set removes the superseded
// Session.
func (svc *Service) AcknowledgeHandoff(ctx context.Context, sessionID, identity string) (string, error) {
	updated, err := svc.store.Update(ctx, sessionID, func(s *domain.Session) error {
		return s.AcknowledgeHandoff(identity)
	})
	if err != nil {
		return "", err
	}
	if updated.AllAcknowledged() {
		svc.retire(ctx, sessionID)
	}
	return updated.SuccessorID, nil
}

// retire deletes a Session only once it has a successor and every
// participant acknowledged it.
func (svc *Service) retire(ctx context.Context, sessionID string) {
	deleted, err := svc.store.DeleteIf(ctx, sessionID, func(s *domain.Session) bool {
		return s.SuccessorID != "" && s.AllAcknowledged()
	})
	if err != nil {
		svc.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to remove superseded session")
		return
	}
	if deleted {
		svc.log.Info().Str("session_id", sessionID).Msg("superseded session removed")
	}
}
