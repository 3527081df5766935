package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/david/property-catalog/internal/models"
)

// Entry is one cached result set: the full, sorted, unpaginated items of a
// query. Entries are never modified after Set; a refresh stores a new one.
type Entry struct {
	Items     []models.Property `json:"items"`
	Total     int               `json:"total"`
	FetchedAt time.Time         `json:"fetchedAt"`
}

// Store keeps cache entries by key. Get returns (nil, nil) on a miss.
// Stores must keep expired entries around; expiry is decided by the Cache.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Purge(ctx context.Context) (int, error)
	Len(ctx context.Context) (int, error)
}

const defaultMaxEntries = 1024

// MemoryStore is an in-process Store. When full it evicts the entry with the
// oldest FetchedAt.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	maxEntries int
}

// NewMemoryStore creates a store holding at most maxEntries keys (0 = default).
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemoryStore{
		entries:    make(map[string]*Entry),
		maxEntries: maxEntries,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key], nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.evictOldest()
	}
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range s.entries {
		if !found || e.FetchedAt.Before(oldest) {
			oldestKey, oldest, found = k, e.FetchedAt, true
		}
	}
	if found {
		delete(s.entries, oldestKey)
	}
}

func (s *MemoryStore) Purge(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]*Entry)
	return n, nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
