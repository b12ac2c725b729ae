// Package offline gives a client a degraded-but-working mode without
// network connectivity: a generation-tagged response cache with a fixed
// precache manifest, network-first request interception, and an offline
// fallback page for navigations.
package offline

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Entry is one cached response, keyed by request URI within a generation.
type Entry struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Store persists cache entries. Exactly one generation is live at a time;
// Activate deletes the rest wholesale.
type Store interface {
	Put(ctx context.Context, generation string, e Entry) error
	Get(ctx context.Context, generation, url string) (Entry, bool, error)
	Generations(ctx context.Context) ([]string, error)
	DeleteGeneration(ctx context.Context, generation string) error
}

// MemoryStore is a process-lifetime Store. Useful for tests and for
// embedders that do not want a cache file on disk.
type MemoryStore struct {
	mu   sync.RWMutex
	gens map[string]map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{gens: make(map[string]map[string]Entry)}
}

func (s *MemoryStore) Put(_ context.Context, generation string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gens[generation]
	if !ok {
		g = make(map[string]Entry)
		s.gens[generation] = g
	}
	g[e.URL] = e
	return nil
}

func (s *MemoryStore) Get(_ context.Context, generation, url string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.gens[generation][url]
	return e, ok, nil
}

func (s *MemoryStore) Generations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.gens))
	for g := range s.gens {
		out = append(out, g)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) DeleteGeneration(_ context.Context, generation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gens, generation)
	return nil
}
