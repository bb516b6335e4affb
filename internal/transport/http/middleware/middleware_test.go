package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

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

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/x", func(c *gin.Context) {
		id, _ := PlayerID(c)
		c.String(http.StatusOK, id)
	})
	return r
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth(tokenMap{"good": "alice"}))

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"invalid", "Bearer bad", http.StatusUnauthorized, ""},
		{"valid", "Bearer good", http.StatusOK, "alice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("expected body %q, got %q", tc.body, w.Body.String())
			}
		})
	}
}

func TestCORS(t *testing.T) {
	r := newEngine(CORS([]string{"http://localhost:5173"}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("expected allowed origin echoed, got %d %q", w.Code, w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRequestLoggerSetsID(t *testing.T) {
	r := newEngine(RequestLogger())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc" {
		t.Fatalf("expected incoming id kept, got %q", got)
	}
}
