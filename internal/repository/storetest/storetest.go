// Package storetest holds the behaviour every domain.SessionStore backend
// must share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
)

// Run exercises newStore against the shared contract. newStore must return an
// empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) domain.SessionStore) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, newStore(t)) })
	t.Run("UpdateSerializes", func(t *testing.T) { testUpdateSerializes(t, newStore(t)) })
	t.Run("UpdateAbort", func(t *testing.T) { testUpdateAbort(t, newStore(t)) })
	t.Run("DeleteIf", func(t *testing.T) { testDeleteIf(t, newStore(t)) })
	t.Run("FindByStatus", func(t *testing.T) { testFindByStatus(t, newStore(t)) })
	t.Run("CreateSuccessorOnce", func(t *testing.T) { testCreateSuccessorOnce(t, newStore(t)) })
	t.Run("Subscribe", func(t *testing.T) { testSubscribe(t, newStore(t)) })
}

func endedSession(t *testing.T, store domain.SessionStore, id string) *domain.Session {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	s := domain.NewSession(id, "apple", "alice", now)
	_ = s.AddParticipant("bob")
	_ = s.ApplyGuess("alice", "apple", 0, now)
	s.RematchConsent["alice"] = true
	s.RematchConsent["bob"] = true
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	return s
}

func testCreateGet(t *testing.T, store domain.SessionStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}

	s := domain.NewSession("s1", "apple", "alice", now)
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SecretWord != "apple" || got.Status != domain.StatusWaiting || got.Coordinator() != "alice" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("createdAt changed: %v vs %v", got.CreatedAt, now)
	}
	if got.Guesses == nil || got.RematchConsent == nil {
		t.Fatal("expected maps to be initialised")
	}
}

func testUpdateSerializes(t *testing.T, store domain.SessionStore) {
	ctx := context.Background()
	now := time.Now().UTC()

	s := domain.NewSession("s1", "apple", "alice", now)
	_ = s.AddParticipant("bob")
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	const perPlayer = 5
	var wg sync.WaitGroup
	for _, p := range []string{"alice", "bob"} {
		for i := 0; i < perPlayer; i++ {
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				_, err := store.Update(ctx, "s1", func(sess *domain.Session) error {
					return sess.ApplyGuess(p, "grape", 0, now)
				})
				if err != nil {
					t.Errorf("update: %v", err)
				}
			}(p)
		}
	}
	wg.Wait()

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Guesses["alice"]) != perPlayer || len(got.Guesses["bob"]) != perPlayer {
		t.Fatalf("lost updates: %v", got.Guesses)
	}
}

func testUpdateAbort(t *testing.T, store domain.SessionStore) {
	ctx := context.Background()
	s := domain.NewSession("s1", "apple", "alice", time.Now().UTC())
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	before, _ := store.Get(ctx, "s1")

	boom := errors.New("boom")
	if _, err := store.Update(ctx, "s1", func(sess *domain.Session) error {
		sess.SecretWord = "xxxxx"
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected mutate error, got %v", err)
	}

	got, err := store.Update(ctx, "s1", func(sess *domain.Session) error {
		return sess.AddParticipant("alice")
	})
	if err != nil {
		t.Fatalf("expected unchanged update to succeed, got %v", err)
	}
	if got.Version != before.Version || got.SecretWord != "apple" {
		t.Fatalf("expected no write, got version %d word %s", got.Version, got.SecretWord)
	}

	if _, err := store.Update(ctx, "missing", func(*domain.Session) error { return nil }); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func testDeleteIf(t *testing.T, store domain.SessionStore) {
	ctx := context.Background()
	s := domain.NewSession("s1", "apple", "alice", time.Now().UTC())
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := store.DeleteIf(ctx, "s1", func(sess *domain.Session) bool { return sess.Status == domain.StatusEnded })
	if err != nil || ok {
		t.Fatalf("expected no delete, got ok=%v err=%v", ok, err)
	}
	ok, err = store.DeleteIf(ctx, "s1", func(sess *domain.Session) bool { return sess.Status == domain.StatusWaiting })
	if err != nil || !ok {
		t.Fatalf("expected delete, got ok=%v err=%v", ok, err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
	ok, err = store.DeleteIf(ctx, "s1", func(*domain.Session) bool { return true })
	if err != nil || ok {
		t.Fatalf("expected delete of missing record to report false, got ok=%v err=%v", ok, err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete of missing record: %v", err)
	}
}

func testFindByStatus(t *testing.T, store domain.SessionStore) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, id := range []string{"c", "a", "b"} {
		s := domain.NewSession(id, "apple", "p"+id, base.Add(time.Duration(2-i)*time.Second))
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	full := domain.NewSession("d", "apple", "pd", base.Add(-time.Minute))
	_ = full.AddParticipant("pe")
	if err := store.Create(ctx, full); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.FindByStatus(ctx, domain.StatusWaiting, 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	var ids []string
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	if fmt.Sprint(ids) != "[b a c]" {
		t.Fatalf("expected oldest first [b a c], got %v", ids)
	}

	got, _ = store.FindByStatus(ctx, domain.StatusWaiting, 1)
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("expected limit to keep the oldest, got %v", got)
	}

	// joining moves a record out of the waiting set
	if _, err := store.Update(ctx, "b", func(sess *domain.Session) error { return sess.AddParticipant("zed") }); err != nil {
		t.Fatalf("join: %v", err)
	}
	got, _ = store.FindByStatus(ctx, domain.StatusWaiting, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 waiting after join, got %d", len(got))
	}
}

func testCreateSuccessorOnce(t *testing.T, store domain.SessionStore) {
	ctx := context.Background()
	orig := endedSession(t, store, "g1")

	const racers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   []string
		linked = make(map[string]int)
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			succ := domain.NewSuccessor(fmt.Sprintf("next-%d", i), "grape", orig, time.Now().UTC())
			got, err := store.CreateSuccessor(ctx, "g1", succ)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins = append(wins, succ.ID)
			case errors.Is(err, domain.ErrRaceLost):
			default:
				t.Errorf("create successor: %v", err)
				return
			}
			linked[got.SuccessorID]++
		}(i)
	}
	wg.Wait()

	if len(wins) != 1 {
		t.Fatalf("expected exactly one successor, got %v", wins)
	}
	if len(linked) != 1 || linked[wins[0]] != racers {
		t.Fatalf("every racer should see the winner linked, got %v", linked)
	}
	for i := 0; i < racers; i++ {
		id := fmt.Sprintf("next-%d", i)
		_, err := store.Get(ctx, id)
		if id == wins[0] {
			if err != nil {
				t.Fatalf("winning successor missing: %v", err)
			}
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("losing successor %s was stored: %v", id, err)
		}
	}

	succ, _ := store.Get(ctx, wins[0])
	if succ.Status != domain.StatusInProgress || succ.Coordinator() != "alice" || len(succ.Participants) != 2 {
		t.Fatalf("unexpected successor: %+v", succ)
	}
}

func testSubscribe(t *testing.T, store domain.SessionStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := domain.NewSession("s1", "apple", "alice", time.Now().UTC())
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	events, err := store.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	first := next(t, ctx, events)
	if first.Deleted() || first.Session.Status != domain.StatusWaiting {
		t.Fatalf("expected current state first, got %+v", first)
	}

	if _, err := store.Update(ctx, "s1", func(sess *domain.Session) error { return sess.AddParticipant("bob") }); err != nil {
		t.Fatalf("join: %v", err)
	}
	for {
		ev := next(t, ctx, events)
		if ev.Deleted() {
			t.Fatal("unexpected deletion")
		}
		if ev.Session.Status == domain.StatusInProgress {
			break
		}
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for {
		ev := next(t, ctx, events)
		if ev.Deleted() {
			break
		}
	}
	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected stream to close after deletion")
		}
	case <-ctx.Done():
		t.Fatal("stream did not close")
	}

	gone, err := store.Subscribe(ctx, "never-existed")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if ev := next(t, ctx, gone); !ev.Deleted() {
		t.Fatalf("expected deleted event for unknown id, got %+v", ev)
	}
}

func next(t *testing.T, ctx context.Context, events <-chan domain.SessionEvent) domain.SessionEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event stream closed")
		}
		return ev
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
	return domain.SessionEvent{}
}
