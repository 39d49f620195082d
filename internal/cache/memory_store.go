package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultMaxEntries = 1000

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
	seq       uint64
}

// MemoryStore is a bounded in-process Store. When full, expired entries are
// dropped first, then the oldest insertion.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	maxEntries int
	seq        uint64
	now        Clock
	stats      statsCounter
	logger     *logrus.Logger
}

// NewMemoryStore creates a store holding at most maxEntries values.
func NewMemoryStore(maxEntries int, clock Clock, logger *logrus.Logger) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
		now:        clock,
		logger:     logger,
	}
}

// Get returns a copy of the cached value if it has not expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		s.stats.add(func(st *StoreStats) { st.Misses++ })
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		if current, still := s.entries[key]; still && current == entry {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		s.stats.add(func(st *StoreStats) {
			st.Misses++
			st.Expired++
		})
		return nil, false
	}

	s.stats.add(func(st *StoreStats) { st.Hits++ })
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true
}

// Set stores a copy of value for ttl.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		if s.sweepLocked() == 0 {
			s.evictOldestLocked()
		}
	}
	s.seq++
	s.entries[key] = &memoryEntry{
		value:     stored,
		expiresAt: s.now().Add(ttl),
		seq:       s.seq,
	}
	s.stats.add(func(st *StoreStats) { st.Sets++ })
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep drops every expired entry and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// GetStats returns current cache statistics.
func (s *MemoryStore) GetStats() StoreStats {
	return s.stats.snapshot()
}

// RunJanitor sweeps every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.WithFields(logrus.Fields{
					"removed":   removed,
					"remaining": s.Len(),
				}).Debug("Swept expired cache entries")
			}
		}
	}
}

func (s *MemoryStore) sweepLocked() int {
	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		s.stats.add(func(st *StoreStats) { st.Expired += int64(removed) })
	}
	return removed
}

func (s *MemoryStore) evictOldestLocked() {
	var oldestKey string
	var oldestSeq uint64
	found := false
	for key, entry := range s.entries {
		if !found || entry.seq < oldestSeq {
			oldestKey = key
			oldestSeq = entry.seq
			found = true
		}
	}
	if found {
		delete(s.entries, oldestKey)
		s.stats.add(func(st *StoreStats) { st.Evictions++ })
	}
}
