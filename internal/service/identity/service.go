package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/logging"
	"github.com/iamasit07/wordle-duel/backend/pkg/auth"
)

const (
	displayNameKeyPrefix = "display_name:"
	displayNameTTL       = 24 * time.Hour

	// DefaultDisplayName is shown for identities nobody has named.
	DefaultDisplayName = "Player"
)

type PlayerRepository interface {
	GetDisplayName(ctx context.Context, playerID string) (string, error)
	UpsertPlayer(ctx context.Context, playerID, displayName string) error
}

type CacheRepository interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Service turns access tokens into identities and identities into display
// names. repo and cache are optional; without them names live in process
// memory only.
type Service struct {
	signer *auth.Signer
	repo   PlayerRepository
	cache  CacheRepository
	log    zerolog.Logger

	mu    sync.RWMutex
	local map[string]string
}

func NewService(signer *auth.Signer, repo PlayerRepository, cache CacheRepository) *Service {
	return &Service{
		signer: signer,
		repo:   repo,
		cache:  cache,
		log:    logging.Component("identity"),
		local:  make(map[string]string),
	}
}

// Authenticate validates token and records the display name it carries.
func (s *Service) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.signer.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	if claims.DisplayName != "" {
		s.Remember(ctx, claims.PlayerID, claims.DisplayName)
	}
	return claims, nil
}

// Remember stores name for playerID. Failures are logged, never returned:
// a missing name only degrades what opponents see.
func (s *Service) Remember(ctx context.Context, playerID, name string) {
	s.mu.Lock()
	prev := s.local[playerID]
	s.local[playerID] = name
	s.mu.Unlock()
	if prev == name {
		return
	}

	if s.repo != nil {
		if err := s.repo.UpsertPlayer(ctx, playerID, name); err != nil {
			s.log.Warn().Err(err).Str("player_id", playerID).Msg("failed to persist display name")
		}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, displayNameKeyPrefix+playerID, name, displayNameTTL); err != nil {
			s.log.Warn().Err(err).Str("player_id", playerID).Msg("failed to cache display name")
		}
	}
}

// DisplayName resolves playerID through memory, cache and database in that
// order, falling back to DefaultDisplayName.
func (s *Service) DisplayName(ctx context.Context, playerID string) string {
	s.mu.RLock()
	name, ok := s.local[playerID]
	s.mu.RUnlock()
	if ok && name != "" {
		return name
	}

	if s.cache != nil {
		if name, err := s.cache.Get(ctx, displayNameKeyPrefix+playerID); err == nil && name != "" {
			return name
		}
	}

	if s.repo != nil {
		name, err := s.repo.GetDisplayName(ctx, playerID)
		switch {
		case err == nil && name != "":
			if s.cache != nil {
				if err := s.cache.Set(ctx, displayNameKeyPrefix+playerID, name, displayNameTTL); err != nil {
					s.log.Warn().Err(err).Str("player_id", playerID).Msg("failed to populate cache")
				}
			}
			return name
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			s.log.Warn().Err(err).Str("player_id", playerID).Msg("display name lookup failed")
		}
	}

	return DefaultDisplayName
}
