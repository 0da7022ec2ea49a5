package state

import (
	"time"

	"github.com/harrisonrobin/tasksync/internal/model"
)

// CurrentSchemaVersion is the schema version written by this build. A
// document with no version field is v0 and is migrated on load.
const CurrentSchemaVersion = 1

// Mapping is the central identity record: one per logical task, linking a
// canonicalId to one opaque id per provider it is known to.
type Mapping struct {
	CanonicalID string              `json:"canonicalId"`
	ByProvider  map[string]string   `json:"byProvider"`
	Canonical   model.CanonicalTask `json:"canonical"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// Tombstone forbids (re)creation of a specific provider-id until it
// expires (TTL days after DeletedAt).
type Tombstone struct {
	Provider  string    `json:"provider"`
	ID        string    `json:"id"`
	DeletedAt time.Time `json:"deletedAt"`
}

// SyncState is the single logical document persisted to state.json.
type SyncState struct {
	Version    int         `json:"version"`
	LastSyncAt *time.Time  `json:"lastSyncAt,omitempty"`
	Mappings   []*Mapping  `json:"mappings"`
	Tombstones []Tombstone `json:"tombstones"`
}

// empty returns a fresh v1 state with no history — used for a missing
// state.json.
func empty() *SyncState {
	return &SyncState{
		Version:    CurrentSchemaVersion,
		Mappings:   []*Mapping{},
		Tombstones: []Tombstone{},
	}
}

// NewMapping returns a Mapping with a fresh canonical id and no provider
// ids yet — callers must add at least one via ByProvider before the
// mapping is persisted (invariant: empty byProvider mappings are removed).
func NewMapping(canonicalID string, now time.Time) *Mapping {
	return &Mapping{
		CanonicalID: canonicalID,
		ByProvider:  make(map[string]string),
		UpdatedAt:   now,
	}
}
