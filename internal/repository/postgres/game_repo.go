package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
)

type GameRepo struct {
	DB *sql.DB
}

func NewGameRepo(db *sql.DB) *GameRepo {
	return &GameRepo{DB: db}
}

// SaveGame archives a finished game and updates player stats in one
// transaction. Archiving the same game twice is a no-op.
func (r *GameRepo) SaveGame(ctx context.Context, rec domain.GameRecord) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	guessesJSON, err := json.Marshal(rec.Guesses)
	if err != nil {
		return fmt.Errorf("failed to marshal guesses: %v", err)
	}

	query := `
	INSERT INTO game (game_id, player1_id, player2_id, winner_id, secret_word, guesses, total_guesses, duration_seconds, created_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (game_id) DO NOTHING;
	`
	res, err := tx.ExecContext(ctx, query,
		rec.GameID, rec.Player1ID, nullString(rec.Player2ID), nullString(rec.WinnerID),
		rec.SecretWord, guessesJSON, rec.TotalGuesses, rec.DurationSeconds, rec.CreatedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to insert game record: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	for _, id := range []string{rec.Player1ID, rec.Player2ID} {
		if id == "" {
			continue
		}
		if err := r.updatePlayerStatsTx(ctx, tx, id, rec.WinnerID == id, rec.WinnerID == ""); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

func (r *GameRepo) updatePlayerStatsTx(ctx context.Context, tx *sql.Tx, playerID string, won, drawn bool) error {
	query := `
	INSERT INTO players (player_id, games_played, games_won, games_drawn)
	VALUES ($1, 1, CASE WHEN $2 THEN 1 ELSE 0 END, CASE WHEN $3 THEN 1 ELSE 0 END)
	ON CONFLICT (player_id) DO UPDATE SET
		games_played = players.games_played + 1,
		games_won = players.games_won + CASE WHEN $2 THEN 1 ELSE 0 END,
		games_drawn = players.games_drawn + CASE WHEN $3 THEN 1 ELSE 0 END,
		updated_at = NOW();
	`
	if _, err := tx.ExecContext(ctx, query, playerID, won, drawn); err != nil {
		return fmt.Errorf("failed to update player stats in transaction: %v", err)
	}
	return nil
}

// GetPlayerHistory returns the most recent archived games of playerID.
func (r *GameRepo) GetPlayerHistory(ctx context.Context, playerID string, limit int) ([]domain.GameRecord, error) {
	query := `
	SELECT game_id, player1_id, player2_id, winner_id, secret_word, guesses,
	       total_guesses, duration_seconds, created_at, finished_at
	FROM game
	WHERE player1_id = $1 OR player2_id = $1
	ORDER BY finished_at DESC
	LIMIT $2;
	`
	rows, err := r.DB.QueryContext(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query game history: %v", err)
	}
	defer rows.Close()

	var games []domain.GameRecord
	for rows.Next() {
		var (
			rec                 domain.GameRecord
			player2ID, winnerID sql.NullString
			guessesJSON         []byte
		)
		err := rows.Scan(
			&rec.GameID,
			&rec.Player1ID,
			&player2ID,
			&winnerID,
			&rec.SecretWord,
			&guessesJSON,
			&rec.TotalGuesses,
			&rec.DurationSeconds,
			&rec.CreatedAt,
			&rec.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game row: %v", err)
		}
		rec.Player2ID = player2ID.String
		rec.WinnerID = winnerID.String
		if err := json.Unmarshal(guessesJSON, &rec.Guesses); err != nil {
			return nil, fmt.Errorf("failed to decode guesses: %v", err)
		}
		games = append(games, rec)
	}
	return games, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
