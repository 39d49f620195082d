package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a TTL key/value cache for serialized values.
// An entry is served until strictly after storedAt+ttl.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Len() int
	Sweep() int
	GetStats() StoreStats
}

// Clock returns the current time. Tests inject a deterministic one.
type Clock func() time.Time

// StoreStats tracks cache performance metrics.
type StoreStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Evictions int64 `json:"evictions"`
	Expired   int64 `json:"expired"`
}

// HitRate returns hits over lookups as a percentage.
func (s StoreStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

type statsCounter struct {
	mu    sync.Mutex
	stats StoreStats
}

func (c *statsCounter) add(fn func(*StoreStats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

func (c *statsCounter) snapshot() StoreStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
