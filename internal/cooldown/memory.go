package cooldown

import (
	"context"
	"sync"
	"time"

	"violation-service/internal/domain/violation"
)

// MemoryStore keeps entries per violation type in a mutex-guarded map.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[violation.Type][]violation.CooldownEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[violation.Type][]violation.CooldownEntry),
	}
}

func (s *MemoryStore) Append(_ context.Context, entry violation.CooldownEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Type] = append(s.entries[entry.Type], entry)
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, typ violation.Type, vehicle violation.VehicleIdentity, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries[typ]
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.RegisteredAt.Before(since) {
			continue
		}
		if vehicle == "" || e.VehicleIdentity == vehicle {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for typ, entries := range s.entries {
		kept := entries[:0]
		for _, e := range entries {
			if e.RegisteredAt.Before(cutoff) {
				pruned++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.entries, typ)
			continue
		}
		s.entries[typ] = kept
	}
	return pruned, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, entries := range s.entries {
		n += len(entries)
	}
	return n
}
