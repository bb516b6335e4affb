package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/repository/storetest"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSessionStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.SessionStore {
		return NewSessionStore(newTestClient(t))
	})
}

func TestFindByStatusDropsStaleIndexEntries(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	store := NewSessionStore(client)

	if err := store.Create(ctx, domain.NewSession("s1", "apple", "alice", time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}
	client.Del(ctx, sessionKey("s1"))

	got, err := store.FindByStatus(ctx, domain.StatusWaiting, 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no sessions, got %d", len(got))
	}
	if n := client.ZCard(ctx, statusKey(domain.StatusWaiting)).Val(); n != 0 {
		t.Fatalf("expected stale member removed, %d left", n)
	}
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := Connect(ctx, mr.Addr(), "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	cache := NewCache(client)
	if err := cache.Set(ctx, "display_name:p1", "Alice", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := cache.Get(ctx, "display_name:p1"); v != "Alice" {
		t.Fatalf("expected Alice, got %q", v)
	}

	urlClient, err := Connect(ctx, "redis://"+mr.Addr()+"/0", "")
	if err != nil {
		t.Fatalf("connect via url: %v", err)
	}
	urlClient.Close()

	addr := mr.Addr()
	mr.Close()
	if _, err := Connect(ctx, addr, ""); err == nil {
		t.Fatal("expected ping failure against closed server")
	}
}
