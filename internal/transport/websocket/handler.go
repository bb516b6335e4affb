package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/logging"
	"github.com/iamasit07/wordle-duel/backend/internal/service/game"
	"github.com/iamasit07/wordle-duel/backend/internal/service/rematch"
	"github.com/iamasit07/wordle-duel/backend/pkg/auth"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var errClientGone = errors.New("client disconnected")

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// Handler streams one game to each socket and follows it into rematches.
type Handler struct {
	ConnManager *ConnectionManager
	Store       domain.SessionStore
	Games       *game.Service
	Rematch     *rematch.Service
	Auth        Authenticator
	Upgrader    websocket.Upgrader

	log zerolog.Logger
}

func NewHandler(cm *ConnectionManager, store domain.SessionStore, games *game.Service, rm *rematch.Service, authn Authenticator, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		ConnManager: cm,
		Store:       store,
		Games:       games,
		Rematch:     rm,
		Auth:        authn,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logging.Component("ws"),
	}
}

// currentGame is the game a socket is following. It moves on handoff.
type currentGame struct {
	mu sync.RWMutex
	id string
}

func (g *currentGame) get() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.id
}

func (g *currentGame) set(id string) {
	g.mu.Lock()
	g.id = id
	g.mu.Unlock()
}

// HandleWebSocket upgrades the request. The first frame must be
// {"type":"init","jwt":...,"gameId":...}.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	h.handleConnection(conn)
}

func (h *Handler) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	_, data, err := conn.ReadMessage()
	if err != nil {
		h.log.Debug().Err(err).Msg("read error during init")
		return
	}

	var hello ClientMessage
	if err := json.Unmarshal(data, &hello); err != nil || hello.Type != TypeInit || hello.JWT == "" || hello.GameID == "" {
		conn.WriteJSON(ServerMessage{Type: TypeError, Message: "Expected init message with jwt and gameId"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	claims, err := h.Auth.Authenticate(ctx, hello.JWT)
	if err != nil {
		conn.WriteJSON(ServerMessage{Type: TypeError, Message: "Invalid token"})
		return
	}

	client := NewClient(claims.PlayerID, conn)
	h.ConnManager.Add(client)
	defer h.ConnManager.RemoveIfMatching(client)

	log := h.log.With().Str("player_id", client.PlayerID).Logger()
	log.Info().Str("session_id", hello.GameID).Msg("connection initialized")

	cur := &currentGame{id: hello.GameID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer conn.Close()
		return h.follow(gctx, client, cur)
	})
	g.Go(func() error {
		return h.readLoop(gctx, conn, client, cur)
	})
	g.Go(func() error {
		return keepAlive(gctx, conn)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errClientGone) && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("connection ended with error")
	}
	log.Info().Msg("connection closed")
}

func keepAlive(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return errClientGone
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, client *Client, cur *currentGame) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("player_id", client.PlayerID).Msg("unexpected close")
			}
			return errClientGone
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.Send(ServerMessage{Type: TypeError, Message: "Invalid message format"})
			continue
		}
		h.processMessage(ctx, client, cur.get(), msg)
	}
}

// processMessage applies one client action. The resulting state reaches the
// client through the subscription, not from here.
func (h *Handler) processMessage(ctx context.Context, client *Client, gameID string, msg ClientMessage) {
	var err error
	switch msg.Type {
	case TypeGuess:
		var out *game.Outcome
		out, err = h.Games.SubmitGuess(ctx, gameID, client.PlayerID, msg.Guess)
		if err == nil {
			client.Send(ServerMessage{Type: TypeGuessResult, GameID: gameID, Outcome: out})
		}
	case TypeRematch:
		_, err = h.Rematch.RequestRematch(ctx, gameID, client.PlayerID)
	case TypeLeave:
		_, err = h.Games.LeaveToMenu(ctx, gameID, client.PlayerID)
	default:
		client.Send(ServerMessage{Type: TypeError, Message: "Unknown message type"})
		return
	}
	if err != nil {
		client.Send(ServerMessage{Type: TypeError, GameID: gameID, Message: err.Error()})
	}
}

// follow streams the current game and moves to each successor until the
// game disappears or ctx ends.
func (h *Handler) follow(ctx context.Context, client *Client, cur *currentGame) error {
	gameID := cur.get()
	for {
		next, err := h.stream(ctx, client, gameID)
		if err != nil || next == "" {
			return err
		}
		gameID = next
		cur.set(gameID)
	}
}

// stream pushes snapshots of gameID and returns the successor id once the
// client has been handed off to it.
func (h *Handler) stream(ctx context.Context, client *Client, gameID string) (string, error) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := h.Store.Subscribe(subCtx, gameID)
	if err != nil {
		return "", err
	}

	playerID := client.PlayerID
	participant := h.Rematch.NewParticipant(playerID, gameID)
	prompted := false

	for ev := range events {
		if ev.Deleted() {
			client.Send(ServerMessage{Type: TypeNotFound, GameID: gameID, Message: "Game not found"})
			return "", nil
		}
		s := ev.Session

		if err := client.Send(ServerMessage{Type: TypeSnapshot, GameID: gameID, Game: h.Games.ViewOf(ctx, s, playerID)}); err != nil {
			return "", errClientGone
		}

		if !prompted && rematchRequested(s, playerID) {
			prompted = true
			client.Send(ServerMessage{Type: TypeRematchRequested, GameID: gameID})
		}

		if !s.IsParticipant(playerID) {
			// spectators follow the rematch without acknowledging it
			if s.SuccessorID != "" {
				client.Send(ServerMessage{Type: TypeHandoff, GameID: gameID, SuccessorID: s.SuccessorID})
				return s.SuccessorID, nil
			}
			continue
		}

		successorID, err := participant.Observe(ctx, s)
		if err != nil {
			h.log.Warn().Err(err).Str("session_id", gameID).Str("player_id", playerID).Msg("rematch handoff failed")
			client.Send(ServerMessage{Type: TypeError, GameID: gameID, Message: err.Error()})
			continue
		}
		if successorID != "" {
			client.Send(ServerMessage{Type: TypeHandoff, GameID: gameID, SuccessorID: successorID})
			return successorID, nil
		}
	}
	return "", ctx.Err()
}

// rematchRequested reports whether the opponent asked for a rematch that
// playerID has not answered yet.
func rematchRequested(s *domain.Session, playerID string) bool {
	if s.Status != domain.StatusEnded || s.SuccessorID != "" || !s.IsParticipant(playerID) {
		return false
	}
	if s.RematchConsent[playerID] || s.LeftToMenu[playerID] {
		return false
	}
	return s.RematchConsent[s.Opponent(playerID)]
}
