package domain

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestFeedback(t *testing.T) {
	cases := []struct {
		guess, word string
		want        []Tile
	}{
		{"grape", "apple", []Tile{TileAbsent, TileAbsent, TilePresent, TilePresent, TileCorrect}},
		{"apple", "apple", []Tile{TileCorrect, TileCorrect, TileCorrect, TileCorrect, TileCorrect}},
		{"xyzzy", "apple", []Tile{TileAbsent, TileAbsent, TileAbsent, TileAbsent, TileAbsent}},
		// repeated letters are not counted down
		{"ppppp", "apple", []Tile{TilePresent, TileCorrect, TileCorrect, TilePresent, TilePresent}},
	}
	for _, tc := range cases {
		got := Feedback(tc.guess, tc.word)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Feedback(%q, %q) = %v, want %v", tc.guess, tc.word, got, tc.want)
		}
	}
}

func TestNormalizeGuess(t *testing.T) {
	got, err := NormalizeGuess("  ApPlE ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "apple" {
		t.Fatalf("expected apple, got %q", got)
	}

	for _, raw := range []string{"", "appl", "apples", "app1e", "ápple"} {
		if _, err := NormalizeGuess(raw); !errors.Is(err, ErrInvalidGuess) {
			t.Fatalf("NormalizeGuess(%q): expected invalid-guess, got %v", raw, err)
		}
	}
}

func TestStatusOnlyMovesForward(t *testing.T) {
	if !StatusWaiting.CanAdvanceTo(StatusInProgress) || !StatusInProgress.CanAdvanceTo(StatusEnded) {
		t.Fatal("expected forward transitions to be allowed")
	}
	if StatusEnded.CanAdvanceTo(StatusInProgress) || StatusInProgress.CanAdvanceTo(StatusWaiting) {
		t.Fatal("expected backward transitions to be refused")
	}
	if StatusWaiting.CanAdvanceTo(Status("paused")) {
		t.Fatal("expected unknown status to be refused")
	}
}

func TestAddParticipantStartsGame(t *testing.T) {
	s := NewSession("g1", "apple", "alice", time.Now())
	if s.Status != StatusWaiting {
		t.Fatalf("expected waiting, got %s", s.Status)
	}
	if err := s.AddParticipant("alice"); !errors.Is(err, ErrUnchanged) {
		t.Fatalf("expected rejoin to be a no-op, got %v", err)
	}
	if err := s.AddParticipant("bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if s.Status != StatusInProgress {
		t.Fatalf("expected in-progress, got %s", s.Status)
	}
	if err := s.AddParticipant("carol"); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("expected session-full, got %v", err)
	}
	if len(s.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(s.Participants))
	}
}

func TestApplyGuess(t *testing.T) {
	now := time.Now()
	s := NewSession("g1", "apple", "alice", now)

	if err := s.ApplyGuess("alice", "grape", 0, now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid-state before start, got %v", err)
	}
	_ = s.AddParticipant("bob")

	if err := s.ApplyGuess("carol", "grape", 0, now); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected not-participant, got %v", err)
	}
	if err := s.ApplyGuess("alice", "grape", 0, now); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if s.Status != StatusInProgress || s.Winner != "" {
		t.Fatalf("wrong guess must not end the game: %+v", s)
	}
	if err := s.ApplyGuess("bob", "apple", 0, now); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if s.Status != StatusEnded || s.Winner != "bob" || s.EndedAt == nil {
		t.Fatalf("expected bob to win, got status=%s winner=%q", s.Status, s.Winner)
	}
	if got := s.Guesses["bob"]; len(got) != 1 || got[0] != "apple" {
		t.Fatalf("expected winning guess recorded, got %v", got)
	}
	if err := s.ApplyGuess("alice", "apple", 0, now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid-state after end, got %v", err)
	}
}

func TestApplyGuessCapEndsInDraw(t *testing.T) {
	now := time.Now()
	s := NewSession("g1", "apple", "alice", now)
	_ = s.AddParticipant("bob")

	for _, p := range []string{"alice", "bob"} {
		for i := 0; i < 2; i++ {
			if err := s.ApplyGuess(p, "grape", 2, now); err != nil {
				t.Fatalf("guess %d for %s: %v", i, p, err)
			}
		}
	}
	if !s.IsDraw() {
		t.Fatalf("expected draw, got status=%s winner=%q", s.Status, s.Winner)
	}

	s2 := NewSession("g2", "apple", "alice", now)
	_ = s2.AddParticipant("bob")
	_ = s2.ApplyGuess("alice", "grape", 1, now)
	if err := s2.ApplyGuess("alice", "apple", 1, now); !errors.Is(err, ErrGuessLimit) {
		t.Fatalf("expected guess-limit, got %v", err)
	}
}

func TestRematchFlags(t *testing.T) {
	now := time.Now()
	s := NewSession("g1", "apple", "alice", now)
	_ = s.AddParticipant("bob")

	if err := s.ConsentToRematch("alice"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid-state while playing, got %v", err)
	}
	_ = s.ApplyGuess("alice", "apple", 0, now)

	if err := s.LinkSuccessor("next"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected link without consent to fail, got %v", err)
	}
	if err := s.ConsentToRematch("alice"); err != nil {
		t.Fatalf("consent: %v", err)
	}
	if err := s.ConsentToRematch("alice"); !errors.Is(err, ErrUnchanged) {
		t.Fatalf("expected repeated consent to be a no-op, got %v", err)
	}
	_ = s.ConsentToRematch("bob")
	if !s.BothConsented() {
		t.Fatal("expected both consents")
	}

	if err := s.AcknowledgeHandoff("alice"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ack before successor to fail, got %v", err)
	}
	if err := s.LinkSuccessor("next"); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := s.LinkSuccessor("other"); !errors.Is(err, ErrRaceLost) {
		t.Fatalf("expected second link to lose, got %v", err)
	}
	if s.SuccessorID != "next" {
		t.Fatalf("successor overwritten: %s", s.SuccessorID)
	}

	_ = s.AcknowledgeHandoff("alice")
	if err := s.AcknowledgeHandoff("alice"); !errors.Is(err, ErrUnchanged) {
		t.Fatalf("expected repeated ack to be a no-op, got %v", err)
	}
	if s.AllAcknowledged() {
		t.Fatal("bob has not acknowledged yet")
	}
	_ = s.AcknowledgeHandoff("bob")
	if !s.AllAcknowledged() {
		t.Fatal("expected all acknowledged")
	}
}

func TestConsentRefusedAfterOpponentLeft(t *testing.T) {
	now := time.Now()
	s := NewSession("g1", "apple", "alice", now)
	_ = s.AddParticipant("bob")
	_ = s.ApplyGuess("bob", "apple", 0, now)

	if err := s.LeaveToMenu("bob"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := s.ConsentToRematch("alice"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid-state, got %v", err)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	s := NewSession("g1", "apple", "alice", time.Now())
	_ = s.AddParticipant("bob")
	_ = s.ApplyGuess("alice", "grape", 0, time.Now())

	c := s.Clone()
	c.Guesses["alice"][0] = "xxxxx"
	c.Participants[0] = "mallory"
	c.RematchConsent["alice"] = true

	if s.Guesses["alice"][0] != "grape" || s.Participants[0] != "alice" || s.RematchConsent["alice"] {
		t.Fatal("clone shares state with original")
	}
}
