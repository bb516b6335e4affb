package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/logging"
)

// Reaper deletes Sessions nobody joined within waitingTTL. With endedTTL > 0
// a coarse sweep also removes ended Sessions nobody rematched.
type Reaper struct {
	store         domain.SessionStore
	waitingTTL    time.Duration
	endedTTL      time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	log           zerolog.Logger

	mu      sync.Mutex
	timers  map[string]*expiry
	stopped bool
	wg      sync.WaitGroup
}

type expiry struct {
	timer *time.Timer
}

func NewReaper(store domain.SessionStore, waitingTTL, endedTTL, sweepInterval time.Duration) *Reaper {
	return &Reaper{
		store:         store,
		waitingTTL:    waitingTTL,
		endedTTL:      endedTTL,
		sweepInterval: sweepInterval,
		now:           time.Now,
		log:           logging.Component("reaper"),
		timers:        make(map[string]*expiry),
	}
}

// Schedule arms one expiry check for id at createdAt+waitingTTL. Scheduling
// an id twice replaces the earlier check.
func (r *Reaper) Schedule(id string, createdAt time.Time) {
	delay := createdAt.Add(r.waitingTTL).Sub(r.now())
	if delay < 0 {
		delay = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if old, ok := r.timers[id]; ok {
		old.timer.Stop()
	}
	e := &expiry{}
	e.timer = time.AfterFunc(delay, func() { r.fire(id, e) })
	r.timers[id] = e
}

// Cancel drops the pending check for id, if any.
func (r *Reaper) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.timers[id]; ok {
		e.timer.Stop()
		delete(r.timers, id)
	}
}

// Pending reports how many checks are armed.
func (r *Reaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// fire runs the check armed as e. A check replaced by a later Schedule
// leaves the newer entry alone.
func (r *Reaper) fire(id string, e *expiry) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if r.timers[id] == e {
		delete(r.timers, id)
	}
	r.wg.Add(1)
	r.mu.Unlock()
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := r.Reap(ctx, id); err != nil {
		r.log.Error().Err(err).Str("session_id", id).Msg("expiry check failed")
	}
}

// Reap deletes id only while it is still waiting with fewer than two
// participants. A Session that filled in the meantime survives.
func (r *Reaper) Reap(ctx context.Context, id string) (bool, error) {
	deleted, err := r.store.DeleteIf(ctx, id, func(s *domain.Session) bool {
		return s.Status == domain.StatusWaiting && !s.IsFull()
	})
	if err != nil {
		return false, err
	}
	if deleted {
		r.log.Info().Str("session_id", id).Msg("removed unjoined session")
	}
	return deleted, nil
}

// Recover arms checks for every waiting Session already in the store, so a
// restart does not orphan them.
func (r *Reaper) Recover(ctx context.Context) error {
	waiting, err := r.store.FindByStatus(ctx, domain.StatusWaiting, 0)
	if err != nil {
		return err
	}
	for _, s := range waiting {
		r.Schedule(s.ID, s.CreatedAt)
	}
	if len(waiting) > 0 {
		r.log.Info().Int("count", len(waiting)).Msg("rescheduled waiting sessions")
	}
	return nil
}

// SweepEnded removes ended Sessions whose end lies more than endedTTL
// before now. A Session with a successor is only removed once every
// participant acknowledged the handoff. endedTTL <= 0 disables the sweep.
func (r *Reaper) SweepEnded(ctx context.Context) (int, error) {
	if r.endedTTL <= 0 {
		return 0, nil
	}
	ended, err := r.store.FindByStatus(ctx, domain.StatusEnded, 0)
	if err != nil {
		return 0, err
	}
	cutoff := r.now().Add(-r.endedTTL)
	removed := 0
	for _, s := range ended {
		ok, err := r.store.DeleteIf(ctx, s.ID, func(cur *domain.Session) bool {
			return cur.Status == domain.StatusEnded && endedBefore(cur, cutoff) && handedOff(cur)
		})
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// handedOff is false while a participant may still need s to reach its
// successor.
func handedOff(s *domain.Session) bool {
	return s.SuccessorID == "" || s.AllAcknowledged()
}

func endedBefore(s *domain.Session, cutoff time.Time) bool {
	if s.EndedAt != nil {
		return s.EndedAt.Before(cutoff)
	}
	return s.CreatedAt.Before(cutoff)
}

// Start recovers pending expiries and, when enabled, runs the ended-session
// sweep until ctx is done. Armed checks are stopped on the way out.
func (r *Reaper) Start(ctx context.Context) error {
	if err := r.Recover(ctx); err != nil {
		r.log.Error().Err(err).Msg("recover waiting sessions")
	}
	r.log.Info().Dur("waiting_ttl", r.waitingTTL).Dur("ended_ttl", r.endedTTL).Msg("background worker started")

	var sweep <-chan time.Time
	if r.endedTTL > 0 && r.sweepInterval > 0 {
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			r.stop()
			return nil
		case <-sweep:
			n, err := r.SweepEnded(ctx)
			if err != nil {
				r.log.Error().Err(err).Msg("sweep ended sessions")
				continue
			}
			if n > 0 {
				r.log.Info().Int("count", n).Msg("removed stale ended sessions")
			}
		}
	}
}

func (r *Reaper) stop() {
	r.mu.Lock()
	r.stopped = true
	for id, e := range r.timers {
		e.timer.Stop()
		delete(r.timers, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
