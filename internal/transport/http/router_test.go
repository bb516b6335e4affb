package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/repository/memory"
	"github.com/iamasit07/wordle-duel/backend/internal/service/cleanup"
	"github.com/iamasit07/wordle-duel/backend/internal/service/game"
	"github.com/iamasit07/wordle-duel/backend/internal/service/matchmaking"
	"github.com/iamasit07/wordle-duel/backend/internal/service/rematch"
	"github.com/iamasit07/wordle-duel/backend/internal/service/words"
	"github.com/iamasit07/wordle-duel/backend/pkg/auth"
)

type tokenMap map[string]string

func (m tokenMap) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	id, ok := m[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{PlayerID: id}, nil
}

type names struct{}

func (names) DisplayName(ctx context.Context, id string) string { return "name-" + id }

type archive struct {
	mu    sync.Mutex
	games []domain.GameRecord
}

func (a *archive) SaveGame(ctx context.Context, rec domain.GameRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.games = append(a.games, rec)
	return nil
}

func (a *archive) GetPlayerHistory(ctx context.Context, id string, limit int) ([]domain.GameRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.GameRecord
	for _, g := range a.games {
		if g.Player1ID == id || g.Player2ID == id {
			out = append(out, g)
		}
	}
	return out, nil
}

type testAPI struct {
	router *gin.Engine
	games  *game.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewSessionStore()
	src, err := words.NewListSource([]string{"apple"})
	if err != nil {
		t.Fatalf("words: %v", err)
	}
	reaper := cleanup.NewReaper(store, time.Minute, time.Hour, time.Hour)
	games := game.NewService(store, names{}, &archive{}, 0)
	mm := matchmaking.NewMatchmaker(store, src, reaper)
	rm := rematch.NewService(store, src)

	router := NewRouter(Handlers{
		Games:   NewGameHandler(games, mm, rm),
		History: NewHistoryHandler(games, nil),
		Watch:   NewWatchHandler(games),
	}, tokenMap{"ta": "alice", "tb": "bob", "tc": "carol"}, nil)

	return &testAPI{router: router, games: games}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return w.Code
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidGuess, http.StatusBadRequest},
		{domain.ErrNotParticipant, http.StatusForbidden},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInvalidState, http.StatusConflict},
		{domain.ErrSessionFull, http.StatusConflict},
		{domain.ErrGuessLimit, http.StatusConflict},
		{domain.ErrSourceUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestMatchPlayAndRematch(t *testing.T) {
	api := newTestAPI(t)

	if code := api.do(t, http.MethodPost, "/api/games/match", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}

	var a, b gameIDResponse
	if code := api.do(t, http.MethodPost, "/api/games/match", "ta", nil, &a); code != http.StatusOK {
		t.Fatalf("alice match: %d", code)
	}
	if code := api.do(t, http.MethodPost, "/api/games/match", "tb", nil, &b); code != http.StatusOK {
		t.Fatalf("bob match: %d", code)
	}
	if a.GameID == "" || a.GameID != b.GameID {
		t.Fatalf("expected both in one game, got %q and %q", a.GameID, b.GameID)
	}
	id := a.GameID

	var live []game.Summary
	api.do(t, http.MethodGet, "/api/games/live", "", nil, &live)
	if len(live) != 1 || live[0].ID != id {
		t.Fatalf("expected game listed live, got %+v", live)
	}

	if code := api.do(t, http.MethodPost, "/api/games/"+id+"/guesses", "ta", guessRequest{Guess: "ab"}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short guess, got %d", code)
	}
	if code := api.do(t, http.MethodPost, "/api/games/"+id+"/guesses", "tc", guessRequest{Guess: "crane"}, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider, got %d", code)
	}
	if code := api.do(t, http.MethodPost, "/api/games/"+id+"/join", "tc", nil, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 joining a full game, got %d", code)
	}

	var out game.Outcome
	if code := api.do(t, http.MethodPost, "/api/games/"+id+"/guesses", "tb", guessRequest{Guess: "apple"}, &out); code != http.StatusOK {
		t.Fatalf("bob guess: %d", code)
	}
	if !out.Won || !out.Ended {
		t.Fatalf("expected winning outcome, got %+v", out)
	}
	if code := api.do(t, http.MethodPost, "/api/games/"+id+"/guesses", "ta", guessRequest{Guess: "apple"}, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 after end, got %d", code)
	}

	api.do(t, http.MethodPost, "/api/games/"+id+"/rematch", "ta", nil, nil)
	var view game.View
	if code := api.do(t, http.MethodPost, "/api/games/"+id+"/rematch", "tb", nil, &view); code != http.StatusOK {
		t.Fatalf("bob rematch: %d", code)
	}
	if view.SuccessorID == "" {
		t.Fatal("expected successor after both consented")
	}

	var next gameIDResponse
	if code := api.do(t, http.MethodPost, "/api/games/"+id+"/handoff", "ta", nil, &next); code != http.StatusOK || next.GameID != view.SuccessorID {
		t.Fatalf("alice handoff: %d %q", code, next.GameID)
	}
	if code := api.do(t, http.MethodPost, "/api/games/"+id+"/handoff", "tb", nil, &next); code != http.StatusOK {
		t.Fatalf("bob handoff: %d", code)
	}
	if code := api.do(t, http.MethodGet, "/api/games/"+id, "ta", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected superseded game removed, got %d", code)
	}
	if code := api.do(t, http.MethodGet, "/api/games/"+view.SuccessorID, "ta", nil, &view); code != http.StatusOK || view.Status != domain.StatusInProgress {
		t.Fatalf("successor: %d %s", code, view.Status)
	}

	api.games.WaitForSaves()
	var hist historyResponse
	if code := api.do(t, http.MethodGet, "/api/history", "tb", nil, &hist); code != http.StatusOK {
		t.Fatalf("history: %d", code)
	}
	if len(hist.Games) != 1 || hist.Games[0].Result != "win" || hist.Won != 1 || hist.Games[0].OpponentUsername != "name-alice" {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestLeaveBlocksRematch(t *testing.T) {
	api := newTestAPI(t)

	var created gameIDResponse
	if code := api.do(t, http.MethodPost, "/api/games", "ta", nil, &created); code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}
	id := created.GameID
	if code := api.do(t, http.MethodPost, "/api/games/"+id+"/join", "tb", nil, nil); code != http.StatusOK {
		t.Fatalf("join: %d", code)
	}
	if code := api.do(t, http.MethodPost, "/api/games/"+id+"/leave", "tb", nil, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 leaving a running game, got %d", code)
	}
	api.do(t, http.MethodPost, "/api/games/"+id+"/guesses", "ta", guessRequest{Guess: "apple"}, nil)

	if code := api.do(t, http.MethodPost, "/api/games/"+id+"/leave", "tb", nil, nil); code != http.StatusOK {
		t.Fatalf("leave: %d", code)
	}
	if code := api.do(t, http.MethodPost, "/api/games/"+id+"/rematch", "ta", nil, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 rematch after opponent left, got %d", code)
	}
	if code := api.do(t, http.MethodPost, "/api/games/"+id+"/handoff", "ta", nil, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 handoff without successor, got %d", code)
	}
}

func TestHistoryLimitValidation(t *testing.T) {
	api := newTestAPI(t)
	if code := api.do(t, http.MethodGet, "/api/history?limit=abc", "ta", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	var hist historyResponse
	if code := api.do(t, http.MethodGet, "/api/history", "ta", nil, &hist); code != http.StatusOK || len(hist.Games) != 0 {
		t.Fatalf("expected empty history, got %d %+v", code, hist)
	}
}
