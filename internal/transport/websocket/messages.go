package websocket

import (
	"github.com/iamasit07/wordle-duel/backend/internal/service/game"
)

// Client → server message types.
const (
	TypeInit    = "init"
	TypeGuess   = "guess"
	TypeRematch = "rematch"
	TypeLeave   = "leave"
)

// Server → client message types.
const (
	TypeSnapshot         = "snapshot"
	TypeGuessResult      = "guess_result"
	TypeRematchRequested = "rematch_requested"
	TypeHandoff          = "handoff"
	TypeNotFound         = "not_found"
	TypeError            = "error"
)

type ClientMessage struct {
	Type   string `json:"type"`
	JWT    string `json:"jwt,omitempty"`
	GameID string `json:"gameId,omitempty"`
	Guess  string `json:"guess,omitempty"`
}

type ServerMessage struct {
	Type        string        `json:"type"`
	GameID      string        `json:"gameId,omitempty"`
	Game        *game.View    `json:"game,omitempty"`
	Outcome     *game.Outcome `json:"outcome,omitempty"`
	SuccessorID string        `json:"successorId,omitempty"`
	Message     string        `json:"message,omitempty"`
}
