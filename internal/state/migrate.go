package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/harrisonrobin/tasksync/internal/model"
)

// rawDocument mirrors SyncState but leaves version-sensitive fields loose
// so a v0 document (no "version" key, mappings possibly missing
// byProvider/updatedAt) decodes without error.
type rawDocument struct {
	Version    *int          `json:"version"`
	LastSyncAt *time.Time    `json:"lastSyncAt,omitempty"`
	Mappings   []*rawMapping `json:"mappings"`
	Tombstones []Tombstone   `json:"tombstones"`
}

type rawMapping struct {
	CanonicalID string              `json:"canonicalId"`
	ByProvider  map[string]string   `json:"byProvider"`
	Canonical   model.CanonicalTask `json:"canonical"`
	UpdatedAt   *time.Time          `json:"updatedAt"`
}

// decodeState parses data into a SyncState, migrating a v0 document (no
// version field) in memory. Migration never writes back to disk by
// itself — the next Save() persists the upgraded document.
func decodeState(data []byte) (*SyncState, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode state document: %w", err)
	}

	version := 0
	if raw.Version != nil {
		version = *raw.Version
	}

	switch version {
	case CurrentSchemaVersion:
		return finalizeState(&raw), nil
	case 0:
		return migrateV0(&raw), nil
	default:
		return nil, fmt.Errorf("unsupported state schema version %d", version)
	}
}

// finalizeState converts a rawDocument already at the current version
// into a SyncState, defaulting any nil collections.
func finalizeState(raw *rawDocument) *SyncState {
	s := &SyncState{
		Version:    CurrentSchemaVersion,
		LastSyncAt: raw.LastSyncAt,
		Mappings:   make([]*Mapping, 0, len(raw.Mappings)),
		Tombstones: raw.Tombstones,
	}

	now := raw.LastSyncAt
	for _, m := range raw.Mappings {
		s.Mappings = append(s.Mappings, finalizeMapping(m, now))
	}

	if s.Tombstones == nil {
		s.Tombstones = []Tombstone{}
	}

	return s
}

// migrateV0 upgrades a document with no version field: mappings gain an
// empty byProvider map where absent, and updatedAt backfills from
// lastSyncAt (or now, if that too is absent).
func migrateV0(raw *rawDocument) *SyncState {
	s := finalizeState(raw)
	s.Version = CurrentSchemaVersion

	return s
}

func finalizeMapping(m *rawMapping, fallback *time.Time) *Mapping {
	byProvider := m.ByProvider
	if byProvider == nil {
		byProvider = make(map[string]string)
	}

	updatedAt := time.Now().UTC()
	switch {
	case m.UpdatedAt != nil:
		updatedAt = *m.UpdatedAt
	case fallback != nil:
		updatedAt = *fallback
	}

	return &Mapping{
		CanonicalID: m.CanonicalID,
		ByProvider:  byProvider,
		Canonical:   m.Canonical,
		UpdatedAt:   updatedAt,
	}
}
