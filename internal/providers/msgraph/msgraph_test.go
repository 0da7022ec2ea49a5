package msgraph

import (
	"testing"
	"time"

	"github.com/harrisonrobin/tasksync/internal/model"
)

func TestToGraphTaskThenFromGraphTaskPreservesFields(t *testing.T) {
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	reminder := time.Date(2026, 4, 28, 9, 0, 0, 0, time.UTC)

	ct := model.CanonicalTask{
		Title:      "Renew passport",
		Notes:      "check expiry date first",
		DueAt:      &due,
		Reminder:   &reminder,
		Status:     model.StatusActive,
		Importance: model.ImportanceHigh,
		Categories: []string{"admin", "travel"},
		Steps: []model.Step{
			{Text: "find old passport", Checked: true},
			{Text: "book photo appointment", Checked: false},
		},
	}

	gt := toGraphTask(ct)
	gt.ID = "task-1"
	gt.LastModifiedDT = &dateTimeOnly{DateTime: "2026-04-20T10:00:00.0000000"}

	back := fromGraphTask(gt)

	if back.Title != ct.Title || back.Notes != ct.Notes {
		t.Errorf("expected title/notes preserved, got %+v", back)
	}

	if back.Importance != model.ImportanceHigh {
		t.Errorf("expected importance high, got %q", back.Importance)
	}

	if back.DueAt == nil || !back.DueAt.Equal(due) {
		t.Errorf("expected dueAt preserved, got %v", back.DueAt)
	}

	if back.Reminder == nil || !back.Reminder.Equal(reminder) {
		t.Errorf("expected reminder preserved, got %v", back.Reminder)
	}

	if len(back.Categories) != 2 {
		t.Errorf("expected categories preserved, got %v", back.Categories)
	}

	if len(back.Steps) != 2 || back.Steps[0].Checked != true || back.Steps[1].Checked != false {
		t.Errorf("expected checklist items preserved in order, got %+v", back.Steps)
	}

	if back.ProviderID != "task-1" {
		t.Errorf("expected provider id preserved, got %q", back.ProviderID)
	}
}

func TestFromGraphTaskMapsCompletedStatus(t *testing.T) {
	gt := graphTask{ID: "x", Title: "done thing", Status: "completed"}

	ct := fromGraphTask(gt)

	if ct.Status != model.StatusCompleted {
		t.Errorf("expected completed status, got %q", ct.Status)
	}
}

func TestToGraphTaskDefaultsImportanceToNormal(t *testing.T) {
	gt := toGraphTask(model.CanonicalTask{Title: "no importance set"})

	if gt.Importance != "normal" {
		t.Errorf("expected default importance normal, got %q", gt.Importance)
	}
}

func TestParseGraphTimeAcceptsBothLayouts(t *testing.T) {
	if _, err := parseGraphTime("2026-04-20T10:00:00.0000000"); err != nil {
		t.Errorf("expected graph layout to parse, got %v", err)
	}

	if _, err := parseGraphTime("2026-04-20T10:00:00Z"); err != nil {
		t.Errorf("expected RFC3339 fallback to parse, got %v", err)
	}
}
