package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/iamasit07/wordle-duel/backend/internal/service/game"
)

const defaultLiveLimit = 50

type WatchHandler struct {
	Games *game.Service
}

func NewWatchHandler(games *game.Service) *WatchHandler {
	return &WatchHandler{Games: games}
}

// GetLiveGames returns in-progress games available for spectating.
func (h *WatchHandler) GetLiveGames(c *gin.Context) {
	limit := defaultLiveLimit
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 {
		limit = n
	}

	games, err := h.Games.LiveGames(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, games)
}
