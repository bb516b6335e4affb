package rematch

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
)

// Participant is one player's reaction loop over snapshots of one Session.
// Feed it every snapshot; it hands off to the successor exactly once.
type Participant struct {
	svc       *Service
	identity  string
	sessionID string
	handedOff atomic.Bool
}

func (svc *Service) NewParticipant(identity, sessionID string) *Participant {
	return &Participant{svc: svc, identity: identity, sessionID: sessionID}
}

func (p *Participant) Identity() string  { return p.identity }
func (p *Participant) SessionID() string { return p.sessionID }
func (p *Participant) HandedOff() bool   { return p.handedOff.Load() }

// Observe reacts to snapshot s. It returns the successor id on the one call
// that performs the handoff and "" on every other call.
func (p *Participant) Observe(ctx context.Context, s *domain.Session) (string, error) {
	if s == nil || s.ID != p.sessionID || s.Status != domain.StatusEnded || !s.IsParticipant(p.identity) {
		return "", nil
	}

	if s.SuccessorID == "" {
		if !s.BothConsented() || p.identity != s.Coordinator() {
			return "", nil
		}
		linked, err := p.svc.MaybeSpawnSuccessor(ctx, s, p.identity)
		if err != nil {
			return "", err
		}
		s = linked
		if s.SuccessorID == "" {
			return "", nil
		}
	}

	if !p.handedOff.CompareAndSwap(false, true) {
		if s.AllAcknowledged() && p.identity == s.Coordinator() {
			p.svc.retire(ctx, s.ID)
		}
		return "", nil
	}

	successorID, err := p.svc.AcknowledgeHandoff(ctx, s.ID, p.identity)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// already retired; the successor is still where s points
		successorID = s.SuccessorID
	case err != nil:
		p.handedOff.Store(false)
		return "", err
	}
	if successorID == "" {
		successorID = s.SuccessorID
	}
	return successorID, nil
}
