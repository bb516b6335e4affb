package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/logging"
	"github.com/iamasit07/wordle-duel/backend/internal/repository/notify"
)

const (
	sessionKeyPrefix = "wordle:session:"
	statusKeyPrefix  = "wordle:sessions:"
	eventChanPrefix  = "wordle:session:events:"

	maxTxRetries = 100
)

var errTxRetries = errors.New("redis: transaction retries exhausted")

// SessionStore keeps every Session as a JSON string and indexes ids per
// status in a sorted set scored by creation time. Writes go through
// WATCH/MULTI so a concurrent writer forces a retry instead of a lost update.
type SessionStore struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client, log: logging.Component("redis-store")}
}

type envelope struct {
	ID      string          `json:"id"`
	Deleted bool            `json:"deleted,omitempty"`
	Session *domain.Session `json:"session,omitempty"`
}

func sessionKey(id string) string       { return sessionKeyPrefix + id }
func statusKey(st domain.Status) string { return statusKeyPrefix + string(st) }
func eventChan(id string) string        { return eventChanPrefix + id }

func score(s *domain.Session) float64 {
	return float64(s.CreatedAt.UnixMilli())
}

func decode(raw string) (*domain.Session, error) {
	var s domain.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s.Normalize()
	return &s, nil
}

func load(ctx context.Context, c redis.Cmdable, id string) (*domain.Session, error) {
	raw, err := c.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// watch runs fn under WATCH on keys until it commits without interference.
func (r *SessionStore) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errTxRetries
}

func (r *SessionStore) publish(ctx context.Context, ev envelope) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.log.Error().Err(err).Str("session_id", ev.ID).Msg("encode event")
		return
	}
	if err := r.client.Publish(ctx, eventChan(ev.ID), payload).Err(); err != nil {
		r.log.Warn().Err(err).Str("session_id", ev.ID).Msg("publish event")
	}
}

func (r *SessionStore) Create(ctx context.Context, s *domain.Session) error {
	stored := s.Clone()
	stored.Normalize()
	stored.Version = 1
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	key := sessionKey(stored.ID)
	err = r.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("session %s already exists", stored.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, statusKey(stored.Status), redis.Z{Score: score(stored), Member: stored.ID})
			return nil
		})
		return err
	}, key)
	if err != nil {
		return err
	}

	s.Version = stored.Version
	r.publish(ctx, envelope{ID: stored.ID, Session: stored})
	return nil
}

func (r *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	return load(ctx, r.client, id)
}

func (r *SessionStore) Update(ctx context.Context, id string, mutate func(*domain.Session) error) (*domain.Session, error) {
	var (
		result  *domain.Session
		changed bool
	)
	key := sessionKey(id)

	err := r.watch(ctx, func(tx *redis.Tx) error {
		changed = false
		current, err := load(ctx, tx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := mutate(next); err != nil {
			if errors.Is(err, domain.ErrUnchanged) {
				result = current
				return nil
			}
			return err
		}
		next.ID = current.ID
		next.Version = current.Version + 1
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if next.Status != current.Status {
				pipe.ZRem(ctx, statusKey(current.Status), id)
				pipe.ZAdd(ctx, statusKey(next.Status), redis.Z{Score: score(next), Member: id})
			}
			return nil
		})
		if err != nil {
			return err
		}
		result, changed = next, true
		return nil
	}, key)
	if err != nil {
		return nil, err
	}

	if changed {
		r.publish(ctx, envelope{ID: id, Session: result})
	}
	return result, nil
}

func (r *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := r.DeleteIf(ctx, id, func(*domain.Session) bool { return true })
	return err
}

func (r *SessionStore) DeleteIf(ctx context.Context, id string, cond func(*domain.Session) bool) (bool, error) {
	deleted := false
	key := sessionKey(id)

	err := r.watch(ctx, func(tx *redis.Tx) error {
		deleted = false
		current, err := load(ctx, tx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !cond(current.Clone()) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, statusKey(current.Status), id)
			return nil
		})
		if err != nil {
			return err
		}
		deleted = true
		return nil
	}, key)
	if err != nil {
		return false, err
	}

	if deleted {
		r.publish(ctx, envelope{ID: id, Deleted: true})
	}
	return deleted, nil
}

func (r *SessionStore) FindByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Session, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := r.client.ZRange(ctx, statusKey(status), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Session, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry outlived its record
			r.client.ZRem(ctx, statusKey(status), ids[i])
			continue
		}
		s, err := decode(raw)
		if err != nil {
			r.log.Warn().Err(err).Str("session_id", ids[i]).Msg("skip undecodable session")
			continue
		}
		if s.Status != status {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *SessionStore) CreateSuccessor(ctx context.Context, originalID string, successor *domain.Session) (*domain.Session, error) {
	var (
		linked *domain.Session
		lost   bool
	)
	origKey := sessionKey(originalID)
	succKey := sessionKey(successor.ID)

	stored := successor.Clone()
	stored.Normalize()
	stored.Version = 1
	succData, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}

	err = r.watch(ctx, func(tx *redis.Tx) error {
		lost = false
		current, err := load(ctx, tx, originalID)
		if err != nil {
			return err
		}
		if current.SuccessorID != "" {
			linked, lost = current, true
			return nil
		}
		next := current.Clone()
		if err := next.LinkSuccessor(stored.ID); err != nil {
			return err
		}
		next.Version = current.Version + 1
		origData, err := json.Marshal(next)
		if err != nil {
			return err
		}
		n, err := tx.Exists(ctx, succKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("session %s already exists", stored.ID)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, origKey, origData, 0)
			pipe.Set(ctx, succKey, succData, 0)
			pipe.ZAdd(ctx, statusKey(stored.Status), redis.Z{Score: score(stored), Member: stored.ID})
			return nil
		})
		if err != nil {
			return err
		}
		linked = next
		return nil
	}, origKey, succKey)
	if err != nil {
		return nil, err
	}
	if lost {
		return linked, domain.ErrRaceLost
	}

	successor.Version = stored.Version
	r.publish(ctx, envelope{ID: stored.ID, Session: stored})
	r.publish(ctx, envelope{ID: originalID, Session: linked})
	return linked, nil
}

// Subscribe listens on the per-session pub/sub channel. The subscription is
// confirmed before the current state is read, so no write can fall between
// the snapshot and the live feed.
func (r *SessionStore) Subscribe(ctx context.Context, id string) (<-chan domain.SessionEvent, error) {
	pubsub := r.client.Subscribe(ctx, eventChan(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", id, err)
	}

	fwdCtx, cancel := context.WithCancel(ctx)
	src := make(chan domain.SessionEvent, 1)
	msgs := pubsub.Channel()

	go func() {
		defer close(src)
		for {
			select {
			case <-fwdCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.log.Warn().Err(err).Str("session_id", id).Msg("drop undecodable event")
					continue
				}
				ev := domain.SessionEvent{SessionID: id}
				if !env.Deleted && env.Session != nil {
					env.Session.Normalize()
					ev.Session = env.Session
				}
				select {
				case src <- ev:
				case <-fwdCtx.Done():
					return
				}
			}
		}
	}()

	initial := domain.SessionEvent{SessionID: id}
	current, err := r.Get(ctx, id)
	switch {
	case err == nil:
		initial.Session = current
	case !errors.Is(err, domain.ErrNotFound):
		cancel()
		pubsub.Close()
		return nil, err
	}

	stop := func() {
		cancel()
		pubsub.Close()
	}
	return notify.Stream(ctx, initial, src, stop), nil
}
