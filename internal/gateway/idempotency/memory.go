package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	response       []byte
	claimed        bool
	claimExpiresAt time.Time
	expiresAt      time.Time
}

// MemoryStore is an in-process Store with the same claim semantics as the
// redis implementation. Used in tests and single-node deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func memoryKey(tenantID, key string) string {
	return tenantID + "\x00" + key
}

// Lookup returns the cached response; expired entries behave as absent.
func (s *MemoryStore) Lookup(ctx context.Context, tenantID, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[memoryKey(tenantID, key)]
	if !ok || entry.claimed || s.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.response, true, nil
}

// Claim takes the processing slot; first caller wins.
func (s *MemoryStore) Claim(ctx context.Context, tenantID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey(tenantID, key)
	entry, ok := s.entries[k]
	if ok {
		if entry.claimed && s.now().Before(entry.claimExpiresAt) {
			return false, nil
		}
		if !entry.claimed && s.now().Before(entry.expiresAt) {
			return false, nil
		}
	}

	s.entries[k] = &memoryEntry{
		claimed:        true,
		claimExpiresAt: s.now().Add(claimTTL),
	}
	return true, nil
}

// Await polls until a response lands or the claim lapses.
func (s *MemoryStore) Await(ctx context.Context, tenantID, key string) ([]byte, bool, error) {
	ticker := time.NewTicker(awaitInterval)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		entry, ok := s.entries[memoryKey(tenantID, key)]
		switch {
		case !ok:
			s.mu.Unlock()
			return nil, false, nil
		case entry.claimed && s.now().After(entry.claimExpiresAt):
			s.mu.Unlock()
			return nil, false, nil
		case !entry.claimed:
			if s.now().After(entry.expiresAt) {
				s.mu.Unlock()
				return nil, false, nil
			}
			response := entry.response
			s.mu.Unlock()
			return response, true, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Store caches the response, replacing any claim.
func (s *MemoryStore) Store(ctx context.Context, tenantID, key string, response []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[memoryKey(tenantID, key)] = &memoryEntry{
		response:  response,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Release drops an unfinished claim.
func (s *MemoryStore) Release(ctx context.Context, tenantID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey(tenantID, key)
	if entry, ok := s.entries[k]; ok && entry.claimed {
		delete(s.entries, k)
	}
	return nil
}

// Cleanup removes expired entries. Expiry is already authoritative on read;
// this just reclaims memory out-of-band.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, entry := range s.entries {
		if !entry.claimed && s.now().After(entry.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}
