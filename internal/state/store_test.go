package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/tasksync/internal/model"
)

func TestFileStoreLoadMissingFileReturnsEmptyDefault(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, nil)

	s, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, s.Version)
	assert.Empty(t, s.Mappings)
	assert.Empty(t, s.Tombstones)
}

func TestFileStoreSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, nil)

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s := empty()
	m, _ := s.EnsureMapping("google", "g-1", now)
	s.UpsertCanonicalSnapshot(m, model.CanonicalTask{
		Title:     "Buy milk",
		Status:    model.StatusActive,
		UpdatedAt: now,
	}, now)
	s.AddTombstone("msgraph", "m-9", now)
	s.LastSyncAt = &now

	require.NoError(t, store.Save(s))

	reloaded, err := store.Load()
	require.NoError(t, err)

	require.Len(t, reloaded.Mappings, 1)
	assert.Equal(t, "Buy milk", reloaded.Mappings[0].Canonical.Title)
	assert.Equal(t, "g-1", reloaded.Mappings[0].ByProvider["google"])
	require.Len(t, reloaded.Tombstones, 1)
	assert.True(t, reloaded.IsTombstoned("msgraph", "m-9"))
	require.NotNil(t, reloaded.LastSyncAt)
	assert.True(t, reloaded.LastSyncAt.Equal(now))
}

func TestFileStoreSaveWritesBackupOfPreviousVersion(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, nil)

	require.NoError(t, store.Save(empty()))

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s := empty()
	s.EnsureMapping("google", "g-1", now)
	require.NoError(t, store.Save(s))

	backupPath := filepath.Join(dir, stateFileName+".bak")
	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestFileStoreLoadMalformedFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFileName), []byte("{not json"), 0o600))

	store := NewFileStore(dir, nil)
	_, err := store.Load()
	assert.Error(t, err)
}

func TestFileStoreLoadMigratesV0Document(t *testing.T) {
	dir := t.TempDir()
	v0 := `{
		"lastSyncAt": "2025-06-01T00:00:00Z",
		"mappings": [
			{"canonicalId": "abc-123", "byProvider": {"google": "g-1"}, "canonical": {"title": "legacy task", "status": "active", "updatedAt": "2025-06-01T00:00:00Z"}}
		],
		"tombstones": []
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFileName), []byte(v0), 0o600))

	store := NewFileStore(dir, nil)
	s, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, CurrentSchemaVersion, s.Version)
	require.Len(t, s.Mappings, 1)
	assert.Equal(t, "g-1", s.Mappings[0].ByProvider["google"])
	assert.False(t, s.Mappings[0].UpdatedAt.IsZero())
}
