package store

import (
	"context"
	"errors"
	"time"

	"recletter/internal/config"
	recErrors "recletter/internal/errors"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore keeps each session document under its own key
type RedisStore struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *recErrors.Logger
}

// NewRedisStore connects and pings the configured server
func NewRedisStore(cfg config.RedisConfig, logger *recErrors.Logger) (*RedisStore, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, storeError("redis ping failed", err)
	}

	return NewRedisStoreWithClient(rdb, cfg.KeyPrefix, cfg.TTL, logger), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(rdb goredis.UniversalClient, prefix string, ttl time.Duration, logger *recErrors.Logger) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With("service", "RedisStore"),
	}
}

// Key returns the Redis key of a session
func (s *RedisStore) Key(sessionID string) string {
	return s.prefix + "session:" + sessionID
}

// LoadState implements Store
func (s *RedisStore) LoadState(ctx context.Context, sessionID string) (*State, error) {
	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}

	raw, err := s.rdb.Get(ctx, s.Key(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return NewState(), nil
	}
	if err != nil {
		return nil, storeError("failed to read state from redis", err)
	}

	state, err := DecodeState(raw, s.logger)
	if err != nil {
		return nil, storeError("failed to decode state from redis", err)
	}
	return state, nil
}

// SaveState implements Store. A zero TTL keeps the key forever.
func (s *RedisStore) SaveState(ctx context.Context, sessionID string, state *State) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	raw, err := EncodeState(state)
	if err != nil {
		return storeError("failed to encode state", err)
	}
	if err := s.rdb.Set(ctx, s.Key(sessionID), raw, s.ttl).Err(); err != nil {
		return storeError("failed to write state to redis", err)
	}
	return nil
}

// Close implements Store
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
