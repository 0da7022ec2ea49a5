package google

import (
	"testing"
	"time"

	"github.com/harrisonrobin/tasksync/internal/model"
)

func TestMetadataRoundTripsThroughNotes(t *testing.T) {
	reminder := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	encoded := encodeMetadata("buy milk", &reminder, model.ImportanceHigh, []string{"errands", "urgent"})

	plain, meta := decodeMetadata(encoded)

	if plain != "buy milk" {
		t.Errorf("expected plain notes %q, got %q", "buy milk", plain)
	}

	if meta.reminder == nil || !meta.reminder.Equal(reminder) {
		t.Errorf("expected reminder %v, got %v", reminder, meta.reminder)
	}

	if meta.importance != model.ImportanceHigh {
		t.Errorf("expected importance high, got %q", meta.importance)
	}

	if len(meta.categories) != 2 || meta.categories[0] != "errands" || meta.categories[1] != "urgent" {
		t.Errorf("expected categories [errands urgent], got %v", meta.categories)
	}
}

func TestEncodeMetadataOmitsBlockWhenEverythingIsEmpty(t *testing.T) {
	got := encodeMetadata("just notes", nil, "", nil)
	if got != "just notes" {
		t.Errorf("expected notes untouched when no metadata fields are set, got %q", got)
	}
}

func TestDecodeMetadataWithNoFenceReturnsNotesUnchanged(t *testing.T) {
	plain, meta := decodeMetadata("plain notes, nothing fancy")

	if plain != "plain notes, nothing fancy" {
		t.Errorf("expected notes unchanged, got %q", plain)
	}

	if meta.reminder != nil || meta.importance != "" || meta.categories != nil {
		t.Errorf("expected empty metadata, got %+v", meta)
	}
}

func TestToGoogleTaskThenFromGoogleTaskPreservesFields(t *testing.T) {
	due := time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)

	ct := model.CanonicalTask{
		Title:  "Ship release",
		Notes:  "don't forget the changelog",
		DueAt:  &due,
		Status: model.StatusActive,
	}

	gt := toGoogleTask(ct)
	gt.Id = "abc123"
	gt.Updated = "2026-04-01T12:00:00Z"

	back := fromGoogleTask(gt)

	if back.Title != ct.Title || back.Notes != ct.Notes {
		t.Errorf("expected title/notes preserved, got %+v", back)
	}

	if back.DueAt == nil || !back.DueAt.Equal(due) {
		t.Errorf("expected dueAt preserved, got %v", back.DueAt)
	}

	if back.ProviderID != "abc123" {
		t.Errorf("expected provider id preserved, got %q", back.ProviderID)
	}
}
