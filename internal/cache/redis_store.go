package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore implements Store on Redis. Expiry is delegated to Redis; keys
// are written with one extra millisecond so a value is still served at
// exactly its TTL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	stats  statsCounter
	logger *logrus.Logger
}

// NewRedisStore creates a Redis-backed store whose keys share prefix.
func NewRedisStore(client redis.Cmdable, prefix string, logger *logrus.Logger) *RedisStore {
	if prefix == "" {
		prefix = "route_cache:"
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Get retrieves a value from Redis. Redis errors count as misses.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.stats.add(func(st *StoreStats) { st.Misses++ })
		return nil, false
	}
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Redis cache get failed")
		s.stats.add(func(st *StoreStats) { st.Misses++ })
		return nil, false
	}

	s.stats.add(func(st *StoreStats) { st.Hits++ })
	return data, true
}

// Set stores value in Redis with ttl.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl+time.Millisecond).Err(); err != nil {
		s.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Redis cache set failed")
		return
	}
	s.stats.add(func(st *StoreStats) { st.Sets++ })
}

// Delete removes key from Redis.
func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		s.logger.WithField("key", key).WithError(err).Warn("Redis cache delete failed")
	}
}

// Len counts keys under the store prefix using SCAN.
func (s *RedisStore) Len() int {
	ctx := context.Background()
	count := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		s.logger.WithError(err).Warn("Redis cache scan failed")
	}
	return count
}

// Sweep is a no-op: Redis evicts expired keys itself.
func (s *RedisStore) Sweep() int {
	return 0
}

// GetStats returns current cache statistics.
func (s *RedisStore) GetStats() StoreStats {
	return s.stats.snapshot()
}

// Clear removes every key under the store prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}
