package domain

import (
	"fmt"
	"time"
)

// Session is one two-player match. Identities are opaque strings issued by
// the identity provider.
type Session struct {
	ID             string              `json:"id" bson:"_id"`
	SecretWord     string              `json:"secretWord" bson:"secretWord"`
	Participants   []string            `json:"participants" bson:"participants"`
	Guesses        map[string][]string `json:"guesses" bson:"guesses"`
	Status         Status              `json:"status" bson:"status"`
	Winner         string              `json:"winner,omitempty" bson:"winner,omitempty"`
	RematchConsent map[string]bool     `json:"rematchConsent" bson:"rematchConsent"`
	SuccessorID    string              `json:"successorId,omitempty" bson:"successorId,omitempty"`
	HandoffAck     map[string]bool     `json:"handoffAck" bson:"handoffAck"`
	LeftToMenu     map[string]bool     `json:"leftToMenu" bson:"leftToMenu"`
	CreatedAt      time.Time           `json:"createdAt" bson:"createdAt"`
	EndedAt        *time.Time          `json:"endedAt,omitempty" bson:"endedAt,omitempty"`

	// Version is owned by the store and bumped on every write.
	Version int64 `json:"version" bson:"version"`
}

// NewSession returns a waiting Session with creator as its only participant.
func NewSession(id, word, creator string, now time.Time) *Session {
	s := &Session{
		ID:           id,
		SecretWord:   word,
		Participants: []string{creator},
		Status:       StatusWaiting,
		CreatedAt:    now,
	}
	s.ensureMaps()
	return s
}

// NewSuccessor returns the in-progress rematch of prev with the same
// participant order and a fresh word.
func NewSuccessor(id, word string, prev *Session, now time.Time) *Session {
	participants := make([]string, len(prev.Participants))
	copy(participants, prev.Participants)

	s := &Session{
		ID:           id,
		SecretWord:   word,
		Participants: participants,
		Status:       StatusInProgress,
		CreatedAt:    now,
	}
	s.ensureMaps()
	return s
}

// Normalize fills nil maps left behind by decoders.
func (s *Session) Normalize() {
	s.ensureMaps()
}

func (s *Session) ensureMaps() {
	if s.Guesses == nil {
		s.Guesses = make(map[string][]string)
	}
	if s.RematchConsent == nil {
		s.RematchConsent = make(map[string]bool)
	}
	if s.HandoffAck == nil {
		s.HandoffAck = make(map[string]bool)
	}
	if s.LeftToMenu == nil {
		s.LeftToMenu = make(map[string]bool)
	}
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Participants = append([]string(nil), s.Participants...)
	c.Guesses = make(map[string][]string, len(s.Guesses))
	for k, v := range s.Guesses {
		c.Guesses[k] = append([]string(nil), v...)
	}
	c.RematchConsent = copyFlags(s.RematchConsent)
	c.HandoffAck = copyFlags(s.HandoffAck)
	c.LeftToMenu = copyFlags(s.LeftToMenu)
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

func copyFlags(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Session) IsParticipant(identity string) bool {
	for _, p := range s.Participants {
		if p == identity {
			return true
		}
	}
	return false
}

// Coordinator is the first-listed participant.
func (s *Session) Coordinator() string {
	if len(s.Participants) == 0 {
		return ""
	}
	return s.Participants[0]
}

// Opponent returns the other participant, or "" when there is none.
func (s *Session) Opponent(identity string) string {
	for _, p := range s.Participants {
		if p != identity {
			return p
		}
	}
	return ""
}

func (s *Session) IsFull() bool {
	return len(s.Participants) >= MaxParticipants
}

// BothConsented reports whether every participant of a full Session opted in
// to a rematch.
func (s *Session) BothConsented() bool {
	return s.IsFull() && allSet(s.Participants, s.RematchConsent)
}

// AllAcknowledged reports whether every participant acknowledged the handoff.
func (s *Session) AllAcknowledged() bool {
	return len(s.Participants) > 0 && allSet(s.Participants, s.HandoffAck)
}

func allSet(ids []string, flags map[string]bool) bool {
	for _, id := range ids {
		if !flags[id] {
			return false
		}
	}
	return true
}

// AddParticipant claims the second slot. The waiting → in-progress
// transition happens in the same step.
func (s *Session) AddParticipant(identity string) error {
	if s.IsParticipant(identity) {
		return ErrUnchanged
	}
	if s.Status != StatusWaiting || s.IsFull() {
		return ErrSessionFull
	}
	s.Participants = append(s.Participants, identity)
	if s.IsFull() {
		return s.advance(StatusInProgress)
	}
	return nil
}

func (s *Session) advance(next Status) error {
	if !s.Status.CanAdvanceTo(next) {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidState, s.Status, next)
	}
	s.Status = next
	return nil
}

// LinkSuccessor records successorID as the rematch of s. It is the
// conditional write behind single successor creation.
func (s *Session) LinkSuccessor(successorID string) error {
	if s.SuccessorID != "" {
		return ErrRaceLost
	}
	if s.Status != StatusEnded || !s.BothConsented() {
		return fmt.Errorf("%w: rematch not agreed on session %s", ErrInvalidState, s.ID)
	}
	s.SuccessorID = successorID
	return nil
}
