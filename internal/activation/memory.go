package activation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and single-node
// deployments without Postgres. It is constructed explicitly and resettable;
// there is no package-level registry.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Activation
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory activation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Activation),
		now:     time.Now,
	}
}

// NewMemoryStoreWithClock creates a store with an injected clock, used by
// tests that exercise expiry.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	s := NewMemoryStore()
	s.now = now
	return s
}

// TryActivate implements the atomic insert-if-absent transition.
func (s *MemoryStore) TryActivate(_ context.Context, key, dealID, gameID string, ttl time.Duration) (bool, Activation, error) {
	if ttl <= 0 {
		return false, Activation{}, ErrInvalidTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[key]; ok {
		return false, s.lazyExpireLocked(existing), nil
	}

	now := s.now()
	created := Activation{
		Key:         key,
		DealID:      dealID,
		GameID:      gameID,
		Status:      StatusTriggered,
		TriggeredAt: now,
		ExpiresAt:   now.Add(ttl),
	}
	s.entries[key] = created

	return true, created, nil
}

// Get returns the activation for key, lazily expiring it if due.
func (s *MemoryStore) Get(_ context.Context, key string) (Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[key]
	if !ok {
		return Activation{}, ErrNotFound
	}
	return s.lazyExpireLocked(existing), nil
}

// ListActive returns activations still Triggered and unexpired at now.
func (s *MemoryStore) ListActive(_ context.Context, now time.Time) ([]Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]Activation, 0, len(s.entries))
	for _, a := range s.entries {
		if a.Status == StatusTriggered && !a.Expired(now) {
			active = append(active, a)
		}
	}
	return active, nil
}

// ExpireDue transitions Triggered activations past ExpiresAt to Expired.
func (s *MemoryStore) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired int64
	for key, a := range s.entries {
		if a.Status == StatusTriggered && a.Expired(now) {
			a.Status = StatusExpired
			s.entries[key] = a
			expired++
		}
	}
	return expired, nil
}

// Reverse transitions a Triggered activation to Reversed.
func (s *MemoryStore) Reverse(_ context.Context, key string, now time.Time) (Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[key]
	if !ok {
		return Activation{}, ErrNotFound
	}

	existing = s.lazyExpireLocked(existing)
	if existing.Status != StatusTriggered {
		return Activation{}, ErrNotReversible
	}

	existing.Status = StatusReversed
	s.entries[key] = existing

	return existing, nil
}

// Reset discards all activations, for test isolation.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Activation)
}

// Len reports the number of stored activations, expired included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) lazyExpireLocked(a Activation) Activation {
	if a.Status == StatusTriggered && a.Expired(s.now()) {
		a.Status = StatusExpired
		s.entries[a.Key] = a
	}
	return a
}

var _ Store = (*MemoryStore)(nil)
