package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "catalog:page:v1:"

	// DefaultRetention is how long Redis keeps an entry. It outlives the cache
	// TTL by far so an expired entry is still there for stale fallback.
	DefaultRetention = 7 * 24 * time.Hour
)

// RedisStore keeps cache entries in Redis as JSON, shared by every replica.
type RedisStore struct {
	rdb       *redis.Client
	retention time.Duration
}

// NewRedisStore connects to addr ("localhost:6379").
func NewRedisStore(addr, password string, db int, retention time.Duration) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb, retention)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{rdb: rdb, retention: retention}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error { return s.rdb.Close() }

// redisKey hashes the filter JSON so keys stay short and safe.
func redisKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return redisKeyPrefix + fmt.Sprintf("%x", h)
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	val, err := s.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, fmt.Errorf("decode cached entry: %w", err)
	}
	return &e, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, redisKey(key), b, s.retention).Err()
}

// Purge deletes every catalog entry, leaving other keys in the database alone.
func (s *RedisStore) Purge(ctx context.Context) (int, error) {
	keys, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	keys, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *RedisStore) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}
