package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/repository/memory"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func gone(store domain.SessionStore, id string) func() bool {
	return func() bool {
		_, err := store.Get(context.Background(), id)
		return errors.Is(err, domain.ErrNotFound)
	}
}

func TestUnjoinedSessionExpires(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	r := NewReaper(store, 30*time.Millisecond, time.Hour, time.Hour)

	s := domain.NewSession("lonely", "apple", "alice", time.Now())
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	r.Schedule(s.ID, s.CreatedAt)

	waitFor(t, gone(store, "lonely"))
	waitFor(t, func() bool { return r.Pending() == 0 })
}

func TestJoinedSessionSurvivesExpiry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()

	s := domain.NewSession("s1", "apple", "alice", time.Now())
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Update(ctx, "s1", func(sess *domain.Session) error { return sess.AddParticipant("bob") }); err != nil {
		t.Fatalf("join: %v", err)
	}

	r := NewReaper(store, time.Hour, time.Hour, time.Hour)
	deleted, err := r.Reap(ctx, "s1")
	if err != nil || deleted {
		t.Fatalf("expected full session to survive, deleted=%v err=%v", deleted, err)
	}
	if deleted, err := r.Reap(ctx, "missing"); err != nil || deleted {
		t.Fatalf("expected missing session to be a no-op, deleted=%v err=%v", deleted, err)
	}
}

func TestCancelPreventsExpiry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	r := NewReaper(store, 20*time.Millisecond, time.Hour, time.Hour)

	s := domain.NewSession("s1", "apple", "alice", time.Now())
	_ = store.Create(ctx, s)
	r.Schedule(s.ID, s.CreatedAt)
	r.Cancel(s.ID)

	time.Sleep(60 * time.Millisecond)
	if _, err := store.Get(ctx, "s1"); err != nil {
		t.Fatalf("expected session to survive a cancelled expiry: %v", err)
	}
	if r.Pending() != 0 {
		t.Fatalf("expected no pending checks, got %d", r.Pending())
	}
}

func TestRecoverSchedulesOverdueSessions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	r := NewReaper(store, time.Minute, time.Hour, time.Hour)

	old := domain.NewSession("old", "apple", "alice", time.Now().Add(-10*time.Minute))
	fresh := domain.NewSession("fresh", "apple", "bob", time.Now())
	_ = store.Create(ctx, old)
	_ = store.Create(ctx, fresh)

	if err := r.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	waitFor(t, gone(store, "old"))
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh session reaped early: %v", err)
	}
	if r.Pending() != 1 {
		t.Fatalf("expected fresh session still armed, got %d", r.Pending())
	}
	r.Cancel("fresh")
}

func TestSweepEnded(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	r := NewReaper(store, time.Minute, time.Hour, time.Hour)

	finish := func(id string, at time.Time) {
		s := domain.NewSession(id, "apple", "alice", at)
		_ = s.AddParticipant("bob")
		_ = s.ApplyGuess("alice", "apple", 0, at)
		_ = store.Create(ctx, s)
	}
	finish("stale", time.Now().Add(-2*time.Hour))
	finish("recent", time.Now().Add(-time.Minute))
	_ = store.Create(ctx, domain.NewSession("waiting", "apple", "carol", time.Now().Add(-2*time.Hour)))

	n, err := r.SweepEnded(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removal, got %d", n)
	}
	if !gone(store, "stale")() {
		t.Fatal("stale session kept")
	}
	for _, id := range []string{"recent", "waiting"} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Fatalf("%s removed: %v", id, err)
		}
	}
}

func TestStartStopsTimers(t *testing.T) {
	store := memory.NewSessionStore()
	r := NewReaper(store, time.Hour, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	_ = store.Create(ctx, domain.NewSession("s1", "apple", "alice", time.Now()))
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	waitFor(t, func() bool { return r.Pending() == 1 })
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
	if r.Pending() != 0 {
		t.Fatalf("expected timers cleared, got %d", r.Pending())
	}
}

// supersede ends a Session at `at`, links successor "<id>-next" and marks
// the given identities as handed off.
func supersede(t *testing.T, store domain.SessionStore, id string, at time.Time, acked ...string) {
	t.Helper()
	s := domain.NewSession(id, "apple", "alice", at)
	_ = s.AddParticipant("bob")
	_ = s.ApplyGuess("alice", "apple", 0, at)
	_ = s.ConsentToRematch("alice")
	_ = s.ConsentToRematch("bob")
	if err := s.LinkSuccessor(id + "-next"); err != nil {
		t.Fatalf("link %s: %v", id, err)
	}
	for _, identity := range acked {
		_ = s.AcknowledgeHandoff(identity)
	}
	if err := store.Create(context.Background(), s); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
}

func TestSweepKeepsPendingHandoff(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	r := NewReaper(store, time.Minute, time.Hour, time.Hour)

	old := time.Now().Add(-2 * time.Hour)
	supersede(t, store, "half", old, "alice")
	supersede(t, store, "done", old, "alice", "bob")

	n, err := r.SweepEnded(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 || !gone(store, "done")() {
		t.Fatalf("expected only the fully handed off session removed, got %d", n)
	}

	// bob can still follow the link and acknowledge it
	s, err := store.Get(ctx, "half")
	if err != nil {
		t.Fatalf("half-acknowledged session removed: %v", err)
	}
	if s.SuccessorID != "half-next" {
		t.Fatalf("SuccessorID = %q, want half-next", s.SuccessorID)
	}
	s, err = store.Update(ctx, "half", func(sess *domain.Session) error { return sess.AcknowledgeHandoff("bob") })
	if err != nil {
		t.Fatalf("acknowledge after sweep: %v", err)
	}
	if !s.AllAcknowledged() {
		t.Fatal("expected both participants acknowledged")
	}

	if n, err := r.SweepEnded(ctx); err != nil || n != 1 {
		t.Fatalf("expected completed handoff swept, n=%d err=%v", n, err)
	}
}

func TestSweepDisabledByDefault(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	r := NewReaper(store, time.Minute, 0, time.Hour)

	s := domain.NewSession("stale", "apple", "alice", time.Now().Add(-48*time.Hour))
	_ = s.AddParticipant("bob")
	_ = s.ApplyGuess("alice", "apple", 0, s.CreatedAt)
	_ = store.Create(ctx, s)

	n, err := r.SweepEnded(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected disabled sweep, n=%d err=%v", n, err)
	}
	if _, err := store.Get(ctx, "stale"); err != nil {
		t.Fatalf("ended session removed with sweep disabled: %v", err)
	}
}

func TestStaleCheckKeepsRearmedEntry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	r := NewReaper(store, time.Hour, time.Hour, time.Hour)

	s := domain.NewSession("s1", "apple", "alice", time.Now())
	_ = s.AddParticipant("bob")
	_ = store.Create(ctx, s)

	r.Schedule("s1", s.CreatedAt)
	r.Schedule("s1", s.CreatedAt)

	// a check that was replaced before its callback got the lock
	r.fire("s1", &expiry{})

	if r.Pending() != 1 {
		t.Fatalf("expected the newer check to stay armed, got %d", r.Pending())
	}
	if _, err := store.Get(ctx, "s1"); err != nil {
		t.Fatalf("joined session removed: %v", err)
	}
	r.Cancel("s1")
	if r.Pending() != 0 {
		t.Fatalf("expected Cancel to clear the check, got %d", r.Pending())
	}
}
