// Package notify fans session change events out to in-process subscribers.
package notify

import (
	"context"
	"sync"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
)

// Broker delivers events per session id. Subscribers only ever see the most
// recent pending event: a slow reader skips intermediate snapshots but never
// blocks a publisher.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	ch chan domain.SessionEvent
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*subscriber]struct{})}
}

// Publish hands ev to every subscriber of ev.SessionID.
func (b *Broker) Publish(ev domain.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[ev.SessionID] {
		deliverLatest(sub.ch, ev)
	}
}

// Subscribe registers for id. The returned cancel func must be called once
// the caller is done reading.
func (b *Broker) Subscribe(id string) (<-chan domain.SessionEvent, func()) {
	sub := &subscriber{ch: make(chan domain.SessionEvent, 1)}

	b.mu.Lock()
	if b.subs[id] == nil {
		b.subs[id] = make(map[*subscriber]struct{})
	}
	b.subs[id][sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[id], sub)
			if len(b.subs[id]) == 0 {
				delete(b.subs, id)
			}
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions for id.
func (b *Broker) Subscribers(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[id])
}

func deliverLatest(ch chan domain.SessionEvent, ev domain.SessionEvent) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Stream merges an initial snapshot with a live source into the channel a
// SessionStore.Subscribe returns. Events at or below the last delivered
// version are dropped. The output closes after a deletion, when src closes,
// or when ctx is done; stop is called on the way out.
func Stream(ctx context.Context, initial domain.SessionEvent, src <-chan domain.SessionEvent, stop func()) <-chan domain.SessionEvent {
	out := make(chan domain.SessionEvent, 1)

	go func() {
		defer close(out)
		defer stop()

		var last int64 = -1
		emit := func(ev domain.SessionEvent) bool {
			if !ev.Deleted() {
				if ev.Session.Version <= last {
					return true
				}
				last = ev.Session.Version
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return false
			}
			return !ev.Deleted()
		}

		if !emit(initial) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-src:
				if !ok {
					return
				}
				if !emit(ev) {
					return
				}
			}
		}
	}()

	return out
}
