package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/repository/postgres"
	"github.com/iamasit07/wordle-duel/backend/internal/service/game"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// StatsRepository is optional; without it the counts are derived from the
// returned page.
type StatsRepository interface {
	GetPlayerStats(ctx context.Context, playerID string) (*postgres.PlayerStats, error)
}

type HistoryHandler struct {
	Games *game.Service
	Stats StatsRepository
}

func NewHistoryHandler(games *game.Service, stats StatsRepository) *HistoryHandler {
	return &HistoryHandler{Games: games, Stats: stats}
}

type historyItem struct {
	ID               string    `json:"id"`
	OpponentID       string    `json:"opponentId"`
	OpponentUsername string    `json:"opponentUsername"`
	Result           string    `json:"result"` // "win", "loss", "draw"
	SecretWord       string    `json:"secretWord"`
	GuessCount       int       `json:"guessCount"`
	DurationSeconds  int       `json:"durationSeconds"`
	FinishedAt       time.Time `json:"finishedAt"`
}

type historyResponse struct {
	Games  []historyItem `json:"games"`
	Played int           `json:"played"`
	Won    int           `json:"won"`
	Drawn  int           `json:"drawn"`
}

func (h *HistoryHandler) GetHistory(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	ctx := c.Request.Context()
	records, err := h.Games.History(ctx, playerID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := historyResponse{Games: make([]historyItem, 0, len(records))}
	for _, rec := range records {
		item := historyItem{
			ID:              rec.GameID,
			SecretWord:      rec.SecretWord,
			GuessCount:      len(rec.Guesses[playerID]),
			DurationSeconds: rec.DurationSeconds,
			FinishedAt:      rec.FinishedAt,
		}
		if rec.Player1ID == playerID {
			item.OpponentID = rec.Player2ID
		} else {
			item.OpponentID = rec.Player1ID
		}
		item.OpponentUsername = h.Games.DisplayName(ctx, item.OpponentID)

		switch rec.WinnerID {
		case "":
			item.Result = "draw"
			resp.Drawn++
		case playerID:
			item.Result = "win"
			resp.Won++
		default:
			item.Result = "loss"
		}
		resp.Games = append(resp.Games, item)
	}
	resp.Played = len(resp.Games)

	if h.Stats != nil {
		stats, err := h.Stats.GetPlayerStats(ctx, playerID)
		switch {
		case err == nil:
			resp.Played, resp.Won, resp.Drawn = stats.GamesPlayed, stats.GamesWon, stats.GamesDrawn
		case !errors.Is(err, domain.ErrNotFound):
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}
