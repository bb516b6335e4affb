package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iamasit07/wordle-duel/backend/internal/service/game"
	"github.com/iamasit07/wordle-duel/backend/internal/service/matchmaking"
	"github.com/iamasit07/wordle-duel/backend/internal/service/rematch"
	"github.com/iamasit07/wordle-duel/backend/internal/transport/http/middleware"
)

type GameHandler struct {
	Games      *game.Service
	Matchmaker *matchmaking.Matchmaker
	Rematch    *rematch.Service
}

func NewGameHandler(games *game.Service, mm *matchmaking.Matchmaker, rm *rematch.Service) *GameHandler {
	return &GameHandler{Games: games, Matchmaker: mm, Rematch: rm}
}

type gameIDResponse struct {
	GameID string `json:"gameId"`
}

type guessRequest struct {
	Guess string `json:"guess"`
}

func currentPlayer(c *gin.Context) (string, bool) {
	id, ok := middleware.PlayerID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
	return id, ok
}

// Match pairs the caller with a waiting player or opens a new game.
func (h *GameHandler) Match(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}
	s, err := h.Matchmaker.FindOrCreateSession(c.Request.Context(), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gameIDResponse{GameID: s.ID})
}

// Create opens a private game others can join by id.
func (h *GameHandler) Create(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}
	s, err := h.Matchmaker.CreateSession(c.Request.Context(), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gameIDResponse{GameID: s.ID})
}

func (h *GameHandler) Join(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}
	s, err := h.Matchmaker.JoinSession(c.Request.Context(), c.Param("id"), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Games.ViewOf(c.Request.Context(), s, playerID))
}

func (h *GameHandler) Get(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}
	view, err := h.Games.View(c.Request.Context(), c.Param("id"), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *GameHandler) Guess(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}
	var req guessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	out, err := h.Games.SubmitGuess(c.Request.Context(), c.Param("id"), playerID, req.Guess)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *GameHandler) RequestRematch(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}
	s, err := h.Rematch.RequestRematch(c.Request.Context(), c.Param("id"), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Games.ViewOf(c.Request.Context(), s, playerID))
}

// Handoff acknowledges the move to the successor game and returns its id.
func (h *GameHandler) Handoff(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}
	successorID, err := h.Rematch.AcknowledgeHandoff(c.Request.Context(), c.Param("id"), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gameIDResponse{GameID: successorID})
}

func (h *GameHandler) Leave(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}
	view, err := h.Games.LeaveToMenu(c.Request.Context(), c.Param("id"), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
