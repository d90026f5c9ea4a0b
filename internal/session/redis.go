package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"taskflow/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the session under one key, so several machines or shells
// can share a login.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	URL      string
	PoolSize int
	Key      string
	// TTL bounds how long the session lives. Zero follows the token's expiry.
	TTL time.Duration
}

// NewRedisStore connects and pings Redis.
func NewRedisStore(ctx context.Context, o RedisOptions) (*RedisStore, error) {
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		logger.Error(ctx, "Invalid REDIS_URL", "error", err, "url", o.URL)
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if o.PoolSize > 0 {
		opts.PoolSize = o.PoolSize
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error(ctx, "Redis ping failed", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if o.Key == "" {
		o.Key = "taskflow:session"
	}
	logger.Debug(ctx, "Redis session store initialized", "key", o.Key, "pool_size", opts.PoolSize)
	return &RedisStore{client: client, key: o.Key, ttl: o.TTL}, nil
}

func (r *RedisStore) Load(ctx context.Context) (Session, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("redis get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		logger.Debug(ctx, "Redis unmarshal session failed", "error", err)
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, s Session) error {
	now := time.Now()
	if s.SavedAt.IsZero() {
		s.SavedAt = now.UTC()
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.key, b, ttlFor(s, r.ttl, now)).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
