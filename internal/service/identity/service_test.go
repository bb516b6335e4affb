package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/repository/redis"
	"github.com/iamasit07/wordle-duel/backend/pkg/auth"
)

type fakeRepo struct {
	names   map[string]string
	lookups int
	err     error
}

func (f *fakeRepo) GetDisplayName(ctx context.Context, id string) (string, error) {
	f.lookups++
	if f.err != nil {
		return "", f.err
	}
	name, ok := f.names[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return name, nil
}

func (f *fakeRepo) UpsertPlayer(ctx context.Context, id, name string) error {
	f.names[id] = name
	return nil
}

func TestAuthenticateRemembersName(t *testing.T) {
	signer := auth.NewSigner("secret", time.Minute)
	repo := &fakeRepo{names: map[string]string{}}
	svc := NewService(signer, repo, nil)

	token, _ := signer.GenerateAccessToken("p1", "Alice")
	claims, err := svc.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if claims.PlayerID != "p1" {
		t.Fatalf("expected p1, got %s", claims.PlayerID)
	}
	if repo.names["p1"] != "Alice" {
		t.Fatalf("expected name persisted, got %v", repo.names)
	}
	if got := svc.DisplayName(context.Background(), "p1"); got != "Alice" {
		t.Fatalf("expected Alice, got %q", got)
	}

	if _, err := svc.Authenticate(context.Background(), "garbage"); err == nil {
		t.Fatal("expected invalid token to fail")
	}
}

func TestDisplayNameLookupOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := redis.NewCache(client)

	repo := &fakeRepo{names: map[string]string{"p2": "Bob"}}
	svc := NewService(auth.NewSigner("secret", time.Minute), repo, cache)
	ctx := context.Background()

	if got := svc.DisplayName(ctx, "p2"); got != "Bob" {
		t.Fatalf("expected Bob from repo, got %q", got)
	}
	if v, _ := cache.Get(ctx, "display_name:p2"); v != "Bob" {
		t.Fatalf("expected cache populated, got %q", v)
	}
	if got := svc.DisplayName(ctx, "p2"); got != "Bob" || repo.lookups != 1 {
		t.Fatalf("expected cache hit, got %q after %d lookups", got, repo.lookups)
	}

	if got := svc.DisplayName(ctx, "ghost"); got != DefaultDisplayName {
		t.Fatalf("expected default name, got %q", got)
	}

	repo.err = errors.New("db down")
	if got := svc.DisplayName(ctx, "p3"); got != DefaultDisplayName {
		t.Fatalf("expected default name on failure, got %q", got)
	}
}
