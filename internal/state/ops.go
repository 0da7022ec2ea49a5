package state

import (
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/tasksync/internal/model"
)

// FindMapping returns the mapping holding (provider, id), or nil.
func (s *SyncState) FindMapping(provider, id string) *Mapping {
	for _, m := range s.Mappings {
		if m.ByProvider[provider] == id {
			return m
		}
	}

	return nil
}

// FindByCanonicalID returns the mapping with the given canonical id, or nil.
func (s *SyncState) FindByCanonicalID(canonicalID string) *Mapping {
	for _, m := range s.Mappings {
		if m.CanonicalID == canonicalID {
			return m
		}
	}

	return nil
}

// EnsureMapping returns the existing mapping for (provider, id) if one
// exists, otherwise inserts a fresh mapping (with a new canonical id) and
// links this provider id into it. Idempotent. The second return value
// reports whether a new mapping was created.
func (s *SyncState) EnsureMapping(provider, id string, now time.Time) (*Mapping, bool) {
	if m := s.FindMapping(provider, id); m != nil {
		return m, false
	}

	m := NewMapping(uuid.NewString(), now)
	m.ByProvider[provider] = id
	s.Mappings = append(s.Mappings, m)

	return m, true
}

// UpsertProviderID links provider/id into the mapping, enforcing the rule
// that a provider id may not alias into two mappings at once, by
// detaching it from any other mapping first.
func (s *SyncState) UpsertProviderID(m *Mapping, provider, id string, now time.Time) {
	for _, other := range s.Mappings {
		if other == m {
			continue
		}

		if other.ByProvider[provider] == id {
			delete(other.ByProvider, provider)
			other.UpdatedAt = now
		}
	}

	if m.ByProvider[provider] != id {
		m.ByProvider[provider] = id
		m.UpdatedAt = now
	}
}

// UpsertCanonicalSnapshot replaces the mapping's baseline canonical task.
func (s *SyncState) UpsertCanonicalSnapshot(m *Mapping, canonical model.CanonicalTask, now time.Time) {
	m.Canonical = canonical
	m.UpdatedAt = now
}

// RemoveMapping deletes the mapping with the given canonical id, if present.
func (s *SyncState) RemoveMapping(canonicalID string) {
	out := s.Mappings[:0]

	for _, m := range s.Mappings {
		if m.CanonicalID != canonicalID {
			out = append(out, m)
		}
	}

	s.Mappings = out
}

// PruneEmptyMappings drops mappings whose byProvider has become empty.
func (s *SyncState) PruneEmptyMappings() {
	out := s.Mappings[:0]

	for _, m := range s.Mappings {
		if len(m.ByProvider) > 0 {
			out = append(out, m)
		}
	}

	s.Mappings = out
}

// AddTombstone records that provider/id was deleted at deletedAt,
// suppressing recreation until the tombstone is pruned.
func (s *SyncState) AddTombstone(provider, id string, deletedAt time.Time) {
	for _, t := range s.Tombstones {
		if t.Provider == provider && t.ID == id {
			return
		}
	}

	s.Tombstones = append(s.Tombstones, Tombstone{
		Provider:  provider,
		ID:        id,
		DeletedAt: deletedAt,
	})
}

// IsTombstoned reports whether provider/id is currently suppressed.
func (s *SyncState) IsTombstoned(provider, id string) bool {
	for _, t := range s.Tombstones {
		if t.Provider == provider && t.ID == id {
			return true
		}
	}

	return false
}

// PruneExpiredTombstones removes tombstones older than ttlDays, returning
// the count removed.
func (s *SyncState) PruneExpiredTombstones(ttlDays int, now time.Time) int {
	cutoff := now.AddDate(0, 0, -ttlDays)

	out := s.Tombstones[:0]
	removed := 0

	for _, t := range s.Tombstones {
		if t.DeletedAt.Before(cutoff) {
			removed++
			continue
		}

		out = append(out, t)
	}

	s.Tombstones = out

	return removed
}
