// Package mongo stores Sessions as documents with optimistic versioning.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/logging"
	"github.com/iamasit07/wordle-duel/backend/internal/repository/notify"
)

const (
	collectionName = "sessions"
	maxAttempts    = 100
	pollInterval   = 500 * time.Millisecond
)

var errConflict = errors.New("mongo: too many concurrent writers")

// Connect opens a client for uri and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

type SessionStore struct {
	collection *mongo.Collection
	log        zerolog.Logger
}

func NewSessionStore(db *mongo.Database) *SessionStore {
	return &SessionStore{
		collection: db.Collection(collectionName),
		log:        logging.Component("mongo-store"),
	}
}

// EnsureIndexes creates the index behind FindByStatus.
func (r *SessionStore) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return err
}

func (r *SessionStore) Create(ctx context.Context, s *domain.Session) error {
	stored := s.Clone()
	stored.Normalize()
	stored.Version = 1
	if _, err := r.collection.InsertOne(ctx, stored); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("session %s already exists", stored.ID)
		}
		return err
	}
	s.Version = stored.Version
	return nil
}

func (r *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	s.Normalize()
	return &s, nil
}

// Update replaces the document only while its version still matches the one
// mutate saw.
func (r *SessionStore) Update(ctx context.Context, id string, mutate func(*domain.Session) error) (*domain.Session, error) {
	for i := 0; i < maxAttempts; i++ {
		current, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		if err := mutate(next); err != nil {
			if errors.Is(err, domain.ErrUnchanged) {
				return current, nil
			}
			return nil, err
		}
		next.ID = current.ID
		next.Version = current.Version + 1

		res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": id, "version": current.Version}, next)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 1 {
			return next, nil
		}
	}
	return nil, errConflict
}

func (r *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *SessionStore) DeleteIf(ctx context.Context, id string, cond func(*domain.Session) bool) (bool, error) {
	for i := 0; i < maxAttempts; i++ {
		current, err := r.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !cond(current.Clone()) {
			return false, nil
		}
		res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "version": current.Version})
		if err != nil {
			return false, err
		}
		if res.DeletedCount == 1 {
			return true, nil
		}
	}
	return false, errConflict
}

func (r *SessionStore) FindByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*domain.Session
	for cursor.Next(ctx) {
		var s domain.Session
		if err := cursor.Decode(&s); err != nil {
			return nil, err
		}
		s.Normalize()
		out = append(out, &s)
	}
	return out, cursor.Err()
}

// CreateSuccessor inserts the successor first and then links it with a
// version-conditional replace. A losing insert is removed again, so the only
// successor left behind is the one the original points at.
func (r *SessionStore) CreateSuccessor(ctx context.Context, originalID string, successor *domain.Session) (*domain.Session, error) {
	stored := successor.Clone()
	stored.Normalize()
	stored.Version = 1

	inserted := false
	discard := func() {
		if !inserted {
			return
		}
		if _, err := r.collection.DeleteOne(context.WithoutCancel(ctx), bson.M{"_id": stored.ID}); err != nil {
			r.log.Error().Err(err).Str("session_id", stored.ID).Msg("remove orphaned successor")
		}
	}

	for i := 0; i < maxAttempts; i++ {
		current, err := r.Get(ctx, originalID)
		if err != nil {
			discard()
			return nil, err
		}
		if current.SuccessorID != "" {
			discard()
			return current, domain.ErrRaceLost
		}
		next := current.Clone()
		if err := next.LinkSuccessor(stored.ID); err != nil {
			discard()
			return nil, err
		}
		next.Version = current.Version + 1

		if !inserted {
			if _, err := r.collection.InsertOne(ctx, stored); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					return nil, fmt.Errorf("session %s already exists", stored.ID)
				}
				return nil, err
			}
			inserted = true
		}

		res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": originalID, "version": current.Version}, next)
		if err != nil {
			discard()
			return nil, err
		}
		if res.MatchedCount == 1 {
			successor.Version = stored.Version
			return next, nil
		}
	}
	discard()
	return nil, errConflict
}

type changeEvent struct {
	OperationType string          `bson:"operationType"`
	FullDocument  *domain.Session `bson:"fullDocument"`
}

// Subscribe uses a change stream when the deployment supports one and falls
// back to polling on standalone servers.
func (r *SessionStore) Subscribe(ctx context.Context, id string) (<-chan domain.SessionEvent, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	src := make(chan domain.SessionEvent, 1)

	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: id}}}}}
	cs, err := r.collection.Watch(streamCtx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		r.log.Debug().Err(err).Str("session_id", id).Msg("change streams unavailable, polling")
		go r.poll(streamCtx, id, src)
	} else {
		go r.follow(streamCtx, cs, id, src)
	}

	initial := domain.SessionEvent{SessionID: id}
	current, err := r.Get(ctx, id)
	switch {
	case err == nil:
		initial.Session = current
	case !errors.Is(err, domain.ErrNotFound):
		cancel()
		return nil, err
	}
	return notify.Stream(ctx, initial, src, cancel), nil
}

func (r *SessionStore) follow(ctx context.Context, cs *mongo.ChangeStream, id string, src chan<- domain.SessionEvent) {
	defer close(src)
	defer cs.Close(context.WithoutCancel(ctx))

	for cs.Next(ctx) {
		var ev changeEvent
		if err := cs.Decode(&ev); err != nil {
			r.log.Warn().Err(err).Str("session_id", id).Msg("drop undecodable change")
			continue
		}
		out := domain.SessionEvent{SessionID: id}
		switch ev.OperationType {
		case "delete":
		case "insert", "replace", "update":
			if ev.FullDocument == nil {
				continue
			}
			ev.FullDocument.Normalize()
			out.Session = ev.FullDocument
		default:
			continue
		}
		select {
		case src <- out:
		case <-ctx.Done():
			return
		}
	}
	if err := cs.Err(); err != nil && ctx.Err() == nil {
		r.log.Warn().Err(err).Str("session_id", id).Msg("change stream ended")
	}
}

func (r *SessionStore) poll(ctx context.Context, id string, src chan<- domain.SessionEvent) {
	defer close(src)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		out := domain.SessionEvent{SessionID: id}
		current, err := r.Get(ctx, id)
		switch {
		case err == nil:
			out.Session = current
		case errors.Is(err, domain.ErrNotFound):
		default:
			if ctx.Err() == nil {
				r.log.Warn().Err(err).Str("session_id", id).Msg("poll session")
			}
			continue
		}
		select {
		case src <- out:
		case <-ctx.Done():
			return
		}
	}
}
