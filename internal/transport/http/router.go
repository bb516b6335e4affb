package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iamasit07/wordle-duel/backend/internal/transport/http/middleware"
)

type Handlers struct {
	Games     *GameHandler
	History   *HistoryHandler
	Watch     *WatchHandler
	WebSocket gin.HandlerFunc
}

// NewRouter wires the REST routes. The websocket route authenticates inside
// its own init message.
func NewRouter(h Handlers, authn middleware.Authenticator, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(allowedOrigins))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api := router.Group("/api")
	api.GET("/games/live", h.Watch.GetLiveGames)

	protected := api.Group("/")
	protected.Use(middleware.Auth(authn))
	{
		protected.POST("/games/match", h.Games.Match)
		protected.POST("/games", h.Games.Create)
		protected.GET("/games/:id", h.Games.Get)
		protected.POST("/games/:id/join", h.Games.Join)
		protected.POST("/games/:id/guesses", h.Games.Guess)
		protected.POST("/games/:id/rematch", h.Games.RequestRematch)
		protected.POST("/games/:id/handoff", h.Games.Handoff)
		protected.POST("/games/:id/leave", h.Games.Leave)

		protected.GET("/history", h.History.GetHistory)
	}

	if h.WebSocket != nil {
		router.GET("/ws", h.WebSocket)
	}

	return router
}
