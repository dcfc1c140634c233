package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore shares answers between replicas. Each entry keeps its own
// timestamp so the TTL rule is enforced by Cache exactly as for the
// in-process stores; the Redis key expiry only reclaims abandoned keys.
type RedisStore[T any] struct {
	client    *redis.Client
	prefix    string
	expiry    time.Duration
	opTimeout time.Duration
	logger    *zap.Logger
}

type RedisStoreConfig struct {
	Prefix    string
	Expiry    time.Duration
	OpTimeout time.Duration
	Logger    *zap.Logger
}

func NewRedisClient(ctx context.Context, host string, port int, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func NewRedisStore[T any](client *redis.Client, cfg RedisStoreConfig) *RedisStore[T] {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 2 * DefaultTTL
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &RedisStore[T]{
		client:    client,
		prefix:    cfg.Prefix,
		expiry:    cfg.Expiry,
		opTimeout: cfg.OpTimeout,
		logger:    cfg.Logger,
	}
}

func (s *RedisStore[T]) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opTimeout)
}

func (s *RedisStore[T]) Get(key string) (Entry[T], bool) {
	ctx, cancel := s.ctx()
	defer cancel()

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry[T]{}, false
	}
	if err != nil {
		s.logger.Warn("Failed to read cache entry", zap.String("key", key), zap.Error(err))
		return Entry[T]{}, false
	}

	var entry Entry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("Failed to decode cache entry", zap.String("key", key), zap.Error(err))
		return Entry[T]{}, false
	}

	return entry, true
}

func (s *RedisStore[T]) Set(key string, entry Entry[T]) {
	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("Failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}

	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.client.Set(ctx, s.prefix+key, data, s.expiry).Err(); err != nil {
		s.logger.Warn("Failed to write cache entry", zap.String("key", key), zap.Error(err))
	}
}

func (s *RedisStore[T]) Delete(key string, stamp time.Time) bool {
	if !stamp.IsZero() {
		entry, ok := s.Get(key)
		if !ok || !entry.Timestamp.Equal(stamp) {
			return false
		}
	}

	ctx, cancel := s.ctx()
	defer cancel()

	n, err := s.client.Del(ctx, s.prefix+key).Result()
	if err != nil {
		s.logger.Warn("Failed to delete cache key", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

func (s *RedisStore[T]) scan(ctx context.Context) ([]string, error) {
	var keys []string

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	return keys, nil
}

func (s *RedisStore[T]) Keys() []string {
	ctx, cancel := s.ctx()
	defer cancel()

	raw, err := s.scan(ctx)
	if err != nil {
		s.logger.Warn("Failed to list cache keys", zap.Error(err))
		return nil
	}

	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k[len(s.prefix):])
	}
	return keys
}

func (s *RedisStore[T]) Entries() []Entry[T] {
	ctx, cancel := s.ctx()
	defer cancel()

	keys, err := s.scan(ctx)
	if err != nil || len(keys) == 0 {
		if err != nil {
			s.logger.Warn("Failed to list cache keys", zap.Error(err))
		}
		return nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.Warn("Failed to read cache entries", zap.Error(err))
		return nil
	}

	entries := make([]Entry[T], 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var entry Entry[T]
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func (s *RedisStore[T]) Clear() int {
	ctx, cancel := s.ctx()
	defer cancel()

	keys, err := s.scan(ctx)
	if err != nil {
		s.logger.Warn("Failed to list cache keys", zap.Error(err))
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		s.logger.Warn("Failed to clear cache", zap.Error(err))
		return 0
	}
	return int(n)
}

func (s *RedisStore[T]) Len() int {
	return len(s.Keys())
}
