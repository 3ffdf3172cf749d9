// Package dedupe provides a bounded, time-windowed idempotency store for
// inbound event ids. The platform redelivers webhook events when the ack is
// slow; seen ids inside the window are dropped.
package dedupe

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultTTL        = 10 * time.Minute
	DefaultMaxEntries = 10000
)

type Store struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	seen       map[string]time.Time
	now        func() time.Time
}

func NewStore(ttl time.Duration, maxEntries int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{
		ttl:        ttl,
		maxEntries: maxEntries,
		seen:       make(map[string]time.Time),
		now:        time.Now,
	}
}

// Seen records id and reports whether it was already recorded inside the TTL
// window. Blank ids are never deduplicated.
func (s *Store) Seen(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.prune(now)
	if at, ok := s.seen[id]; ok && now.Sub(at) < s.ttl {
		return true
	}
	s.seen[id] = now
	return false
}

// Len reports the number of tracked ids, expired entries included until the
// next prune.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// prune drops expired entries, then evicts oldest-first if the store is still
// over its size bound. Caller holds the lock.
func (s *Store) prune(now time.Time) {
	for id, at := range s.seen {
		if now.Sub(at) >= s.ttl {
			delete(s.seen, id)
		}
	}
	for len(s.seen) >= s.maxEntries {
		oldestID := ""
		var oldestAt time.Time
		for id, at := range s.seen {
			if oldestID == "" || at.Before(oldestAt) {
				oldestID, oldestAt = id, at
			}
		}
		if oldestID == "" {
			return
		}
		delete(s.seen, oldestID)
	}
}
