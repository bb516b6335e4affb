package main

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/iamasit07/wordle-duel/backend/internal/config"
	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/repository/memory"
	"github.com/iamasit07/wordle-duel/backend/internal/repository/mongo"
	"github.com/iamasit07/wordle-duel/backend/internal/repository/redis"
)

const connectTimeout = 10 * time.Second

// storeBackend is the chosen Session Store plus the clients it owns.
type storeBackend struct {
	store domain.SessionStore
	redis *goredis.Client
	mongo *mongodriver.Client
}

func openStore(ctx context.Context, cfg *config.Config) (*storeBackend, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case config.StoreRedis:
		client, err := redis.Connect(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		return &storeBackend{store: redis.NewSessionStore(client), redis: client}, nil

	case config.StoreMongo:
		client, err := mongo.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		store := mongo.NewSessionStore(client.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(ctx); err != nil {
			client.Disconnect(context.Background())
			return nil, err
		}
		return &storeBackend{store: store, mongo: client}, nil

	default:
		return &storeBackend{store: memory.NewSessionStore()}, nil
	}
}

// cache returns a Redis-backed name cache. Outside the redis backend it is
// best effort: an unreachable Redis leaves names in process memory.
func (b *storeBackend) cache(ctx context.Context, cfg *config.Config) *redis.Cache {
	if b.redis != nil {
		return redis.NewCache(b.redis)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := redis.Connect(ctx, cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, display names are not cached")
		return nil
	}
	b.redis = client
	return redis.NewCache(client)
}

func (b *storeBackend) Close() {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("closing redis")
		}
	}
	if b.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.mongo.Disconnect(ctx); err != nil {
			log.Warn().Err(err).Msg("closing mongo")
		}
	}
}
