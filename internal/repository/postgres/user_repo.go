package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
)

// PlayerRepo keeps display names and win counts per identity.
type PlayerRepo struct {
	DB *sql.DB
}

func NewPlayerRepo(db *sql.DB) *PlayerRepo {
	return &PlayerRepo{DB: db}
}

type PlayerStats struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	GamesPlayed int    `json:"gamesPlayed"`
	GamesWon    int    `json:"gamesWon"`
	GamesDrawn  int    `json:"gamesDrawn"`
}

// UpsertPlayer records the latest display name seen for playerID.
func (r *PlayerRepo) UpsertPlayer(ctx context.Context, playerID, displayName string) error {
	query := `
	INSERT INTO players (player_id, display_name)
	VALUES ($1, $2)
	ON CONFLICT (player_id) DO UPDATE SET
		display_name = EXCLUDED.display_name,
		updated_at = NOW()
	WHERE players.display_name IS DISTINCT FROM EXCLUDED.display_name;
	`
	if _, err := r.DB.ExecContext(ctx, query, playerID, displayName); err != nil {
		return fmt.Errorf("failed to upsert player: %v", err)
	}
	return nil
}

func (r *PlayerRepo) GetDisplayName(ctx context.Context, playerID string) (string, error) {
	var name string
	err := r.DB.QueryRowContext(ctx, `SELECT display_name FROM players WHERE player_id = $1`, playerID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get display name: %v", err)
	}
	return name, nil
}

func (r *PlayerRepo) GetPlayerStats(ctx context.Context, playerID string) (*PlayerStats, error) {
	query := `
	SELECT player_id, display_name, games_played, games_won, games_drawn
	FROM players
	WHERE player_id = $1;
	`
	var st PlayerStats
	err := r.DB.QueryRowContext(ctx, query, playerID).Scan(&st.PlayerID, &st.DisplayName, &st.GamesPlayed, &st.GamesWon, &st.GamesDrawn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player stats: %v", err)
	}
	return &st, nil
}
