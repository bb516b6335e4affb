package domain

import (
	"fmt"
	"time"
)

// ApplyGuess appends guess for identity and ends the Session when it hits
// the secret word. With maxGuesses > 0 a participant cannot exceed that many
// guesses, and the Session ends without a winner once everyone ran out.
// guess must already be normalized.
func (s *Session) ApplyGuess(identity, guess string, maxGuesses int, now time.Time) error {
	if s.Status != StatusInProgress {
		return fmt.Errorf("%w: session %s is %s", ErrInvalidState, s.ID, s.Status)
	}
	if !s.IsParticipant(identity) {
		return ErrNotParticipant
	}
	if maxGuesses > 0 && len(s.Guesses[identity]) >= maxGuesses {
		return ErrGuessLimit
	}

	s.Guesses[identity] = append(s.Guesses[identity], guess)

	if guess == s.SecretWord {
		s.Winner = identity
		return s.end(now)
	}
	if maxGuesses > 0 && s.allExhausted(maxGuesses) {
		return s.end(now)
	}
	return nil
}

func (s *Session) allExhausted(maxGuesses int) bool {
	for _, p := range s.Participants {
		if len(s.Guesses[p]) < maxGuesses {
			return false
		}
	}
	return true
}

func (s *Session) end(now time.Time) error {
	if err := s.advance(StatusEnded); err != nil {
		return err
	}
	s.EndedAt = &now
	return nil
}

// IsDraw reports an ended Session that nobody won.
func (s *Session) IsDraw() bool {
	return s.Status == StatusEnded && s.Winner == ""
}

// LeaveToMenu records that identity walked away from an ended Session.
func (s *Session) LeaveToMenu(identity string) error {
	if !s.IsParticipant(identity) {
		return ErrNotParticipant
	}
	if s.Status != StatusEnded {
		return fmt.Errorf("%w: session %s is %s", ErrInvalidState, s.ID, s.Status)
	}
	if s.LeftToMenu[identity] {
		return ErrUnchanged
	}
	s.LeftToMenu[identity] = true
	return nil
}

// ConsentToRematch records identity's opt-in. Repeated calls are no-ops.
func (s *Session) ConsentToRematch(identity string) error {
	if s.Status != StatusEnded {
		return fmt.Errorf("%w: session %s is %s", ErrInvalidState, s.ID, s.Status)
	}
	if !s.IsParticipant(identity) {
		return ErrNotParticipant
	}
	if s.LeftToMenu[s.Opponent(identity)] {
		return fmt.Errorf("%w: opponent left session %s", ErrInvalidState, s.ID)
	}
	if s.RematchConsent[identity] {
		return ErrUnchanged
	}
	s.RematchConsent[identity] = true
	return nil
}

// AcknowledgeHandoff marks identity as moved to the successor. It flips at
// most once.
func (s *Session) AcknowledgeHandoff(identity string) error {
	if !s.IsParticipant(identity) {
		return ErrNotParticipant
	}
	if s.SuccessorID == "" {
		return fmt.Errorf("%w: session %s has no successor", ErrInvalidState, s.ID)
	}
	if s.HandoffAck[identity] {
		return ErrUnchanged
	}
	s.HandoffAck[identity] = true
	return nil
}
