package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/harrisonrobin/tasksync/internal/model"
)

// Field names one of the merged attributes of a CanonicalTask. Using
// compile-time enumerated constants instead of bare strings makes a
// misspelt field name a compile error. A Field with no case in
// fieldEqual compares equal, and one with no case in setField is not
// copied.
type Field string

const (
	FieldTitle      Field = "title"
	FieldNotes      Field = "notes"
	FieldDueAt      Field = "dueAt"
	FieldDueTime    Field = "dueTime"
	FieldStatus     Field = "status"
	FieldReminder   Field = "reminder"
	FieldRecurrence Field = "recurrence"
	FieldCategories Field = "categories"
	FieldImportance Field = "importance"
	FieldSteps      Field = "steps"
	FieldStartAt    Field = "startAt"
)

// AllFields is the field set the merger diffs and resolves, in a fixed
// order used wherever iteration order must be deterministic.
var AllFields = []Field{
	FieldTitle,
	FieldNotes,
	FieldDueAt,
	FieldDueTime,
	FieldStatus,
	FieldReminder,
	FieldRecurrence,
	FieldCategories,
	FieldImportance,
	FieldSteps,
	FieldStartAt,
}

// fieldEqual applies the per-field semantic equality policy: notes
// compares trimmed; dueAt/startAt compare by date prefix only; optional
// strings collapse empty/unset into one equivalence class; categories
// compare as a sorted set (provider reordering is not a real change);
// steps compare as an ordered sequence (checklist order is meaningful).
func fieldEqual(f Field, a, b model.CanonicalTask) bool {
	switch f {
	case FieldTitle:
		return strings.TrimSpace(a.Title) == strings.TrimSpace(b.Title)
	case FieldNotes:
		return collapsedEqual(a.Notes, b.Notes)
	case FieldDueAt:
		return datePrefixEqual(a.DueAt, b.DueAt)
	case FieldDueTime:
		return collapsedEqual(a.DueTime, b.DueTime)
	case FieldStatus:
		return a.Status == b.Status
	case FieldReminder:
		return instantEqual(a.Reminder, b.Reminder)
	case FieldRecurrence:
		return collapsedEqual(a.Recurrence, b.Recurrence)
	case FieldCategories:
		return sortedSetEqual(a.Categories, b.Categories)
	case FieldImportance:
		return collapsedEqual(string(a.Importance), string(b.Importance))
	case FieldSteps:
		return stepsEqual(a.Steps, b.Steps)
	case FieldStartAt:
		return datePrefixEqual(a.StartAt, b.StartAt)
	default:
		return true
	}
}

// setField copies f's value from src onto dst, leaving every other
// field untouched.
func setField(f Field, src model.CanonicalTask, dst *model.CanonicalTask) {
	switch f {
	case FieldTitle:
		dst.Title = src.Title
	case FieldNotes:
		dst.Notes = src.Notes
	case FieldDueAt:
		dst.DueAt = clonePtr(src.DueAt)
	case FieldDueTime:
		dst.DueTime = src.DueTime
	case FieldStatus:
		dst.Status = src.Status
	case FieldReminder:
		dst.Reminder = clonePtr(src.Reminder)
	case FieldRecurrence:
		dst.Recurrence = src.Recurrence
	case FieldCategories:
		dst.Categories = append([]string(nil), src.Categories...)
	case FieldImportance:
		dst.Importance = src.Importance
	case FieldSteps:
		dst.Steps = append([]model.Step(nil), src.Steps...)
	case FieldStartAt:
		dst.StartAt = clonePtr(src.StartAt)
	}
}

func clonePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	v := *t

	return &v
}

// collapsedEqual treats empty strings as one equivalence class for
// optional fields, so a provider that returns "" and one that omits the
// field entirely are never flagged as a change.
func collapsedEqual(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

func datePrefixEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return a.UTC().Format("2006-01-02") == b.UTC().Format("2006-01-02")
}

func instantEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return a.Equal(*b)
}

func sortedSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)

	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}

	return true
}

func stepsEqual(a, b []model.Step) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
