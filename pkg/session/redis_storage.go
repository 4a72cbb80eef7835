package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "mindseye:session"
	defaultRedisTTL    = 7 * 24 * time.Hour
	redisOpTimeout     = 3 * time.Second
)

// RedisStorage keeps one session as a Redis hash with a sliding TTL.
// Each namespace (for example a browser session id) is an independent session.
type RedisStorage struct {
	client *redis.Client
	prefix string
	key    string
	ttl    time.Duration
}

// RedisOption configures a RedisStorage.
type RedisOption func(*RedisStorage)

// WithRedisTTL sets how long an idle session survives.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStorage) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRedisPrefix sets the key prefix shared by all namespaces.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStorage) {
		prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStorage builds storage for namespace on an existing client.
func NewRedisStorage(client *redis.Client, namespace string, opts ...RedisOption) (*RedisStorage, error) {
	if client == nil {
		return nil, errors.New("redis session storage requires a client")
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" || strings.Contains(namespace, ":") {
		return nil, errors.New("redis session storage requires a namespace without ':'")
	}
	s := &RedisStorage{
		client: client,
		prefix: defaultRedisPrefix,
		ttl:    defaultRedisTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.key = s.prefix + ":" + namespace
	return s, nil
}

// Key returns the Redis key holding this session.
func (s *RedisStorage) Key() string {
	return s.key
}

// Get implements Storage.
func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	val, err := s.client.HGet(ctx, s.key, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set implements Storage. Every write refreshes the session TTL.
func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key, key, value)
	pipe.Expire(ctx, s.key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Delete implements Storage.
func (s *RedisStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := s.client.HDel(ctx, s.key, keys...).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// Touch extends the session TTL without changing it.
func (s *RedisStorage) Touch(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return s.client.Expire(ctx, s.key, s.ttl).Err()
}

// Destroy deletes the whole session.
func (s *RedisStorage) Destroy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := s.client.Del(ctx, s.key).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}
