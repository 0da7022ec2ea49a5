// Package google wraps the Google Tasks API behind provider.Port.
//
// It follows the same construction shape as a Calendar client built with
// OAuth via internal/auth and option.WithHTTPClient, swapped from
// calendar/v3 to tasks/v1. Google Tasks has no native fields for
// reminder time, importance, or categories, so those are round-tripped
// through a fenced metadata block appended to Notes — encoding that is
// explicitly an adapter-boundary concern, not a core engine concern.
package google

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/tasksync/internal/model"
)

// defaultTaskList is the pseudo-id Google Tasks uses for the user's
// default list when no specific list has been selected.
const defaultTaskList = "@default"

const dateLayout = "2006-01-02"

// Provider wraps a tasks.Service, implementing provider.Port.
type Provider struct {
	svc      *tasks.Service
	taskList string
	logger   *log.Logger
}

// New constructs a Provider from an already-authenticated HTTP client.
// taskList may be empty, in which case the user's default list is used.
func New(ctx context.Context, httpClient *http.Client, taskList string, logger *log.Logger) (*Provider, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[google] ", log.LstdFlags)
	}

	if taskList == "" {
		taskList = defaultTaskList
	}

	svc, err := tasks.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create tasks service: %w", err)
	}

	return &Provider{svc: svc, taskList: taskList, logger: logger}, nil
}

// ListTasks returns every task in the configured list when since is nil,
// or only tasks updated at or after since otherwise. Google Tasks reports
// deleted tasks via ShowDeleted, which this always sets so the deletion
// resolver can observe them.
func (p *Provider) ListTasks(ctx context.Context, since *time.Time) ([]model.CanonicalTask, error) {
	call := p.svc.Tasks.List(p.taskList).ShowDeleted(true).ShowHidden(true).Context(ctx)
	if since != nil {
		call = call.UpdatedMin(since.UTC().Format(time.RFC3339))
	}

	var out []model.CanonicalTask
	pageToken := ""

	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}

		for _, t := range resp.Items {
			out = append(out, fromGoogleTask(t))
		}

		if resp.NextPageToken == "" {
			break
		}

		pageToken = resp.NextPageToken
	}

	return out, nil
}

// UpsertTask creates a task when task.ProviderID is empty, otherwise
// patches the existing one.
func (p *Provider) UpsertTask(ctx context.Context, task model.CanonicalTask) (model.CanonicalTask, error) {
	gt := toGoogleTask(task)

	if task.ProviderID == "" {
		created, err := p.svc.Tasks.Insert(p.taskList, gt).Context(ctx).Do()
		if err != nil {
			return model.CanonicalTask{}, fmt.Errorf("insert task: %w", err)
		}

		return fromGoogleTask(created), nil
	}

	patched, err := p.svc.Tasks.Patch(p.taskList, task.ProviderID, gt).Context(ctx).Do()
	if err != nil {
		return model.CanonicalTask{}, fmt.Errorf("patch task %s: %w", task.ProviderID, err)
	}

	return fromGoogleTask(patched), nil
}

// DeleteTask removes a task. Deleting an id Google Tasks no longer knows
// about is treated as success, matching provider.Port's idempotency
// contract.
func (p *Provider) DeleteTask(ctx context.Context, id string) error {
	if err := p.svc.Tasks.Delete(p.taskList, id).Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			p.logger.Printf("delete %s: already gone, treating as success", id)
			return nil
		}

		return fmt.Errorf("delete task %s: %w", id, err)
	}

	return nil
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "404")
}

func fromGoogleTask(t *tasks.Task) model.CanonicalTask {
	notes, meta := decodeMetadata(t.Notes)

	ct := model.CanonicalTask{
		Provider:   "google",
		ProviderID: t.Id,
		Title:      t.Title,
		Notes:      notes,
		Status:     model.StatusActive,
		Reminder:   meta.reminder,
		Importance: meta.importance,
		Categories: meta.categories,
	}

	if t.Deleted {
		ct.Status = model.StatusDeleted
	} else if t.Status == "completed" {
		ct.Status = model.StatusCompleted
	}

	if t.Due != "" {
		if due, err := time.Parse(time.RFC3339, t.Due); err == nil {
			ct.DueAt = &due
		}
	}

	if t.Updated != "" {
		if upd, err := time.Parse(time.RFC3339, t.Updated); err == nil {
			ct.UpdatedAt = upd
		}
	}

	return ct
}

func toGoogleTask(t model.CanonicalTask) *tasks.Task {
	gt := &tasks.Task{
		Title: t.Title,
		Notes: encodeMetadata(t.Notes, t.Reminder, t.Importance, t.Categories),
	}

	switch t.Status {
	case model.StatusCompleted:
		gt.Status = "completed"
	default:
		gt.Status = "needsAction"
	}

	if t.DueAt != nil {
		gt.Due = t.DueAt.UTC().Format(dateLayout) + "T00:00:00.000Z"
	}

	return gt
}

const metadataFence = "<!--tasksync"
const metadataFenceEnd = "-->"

type metadata struct {
	reminder   *time.Time
	importance model.Importance
	categories []string
}

// encodeMetadata appends a fenced key:value block to notes for fields
// Google Tasks has no native storage for. An empty metadata block is
// omitted entirely so plain notes stay plain.
func encodeMetadata(notes string, reminder *time.Time, importance model.Importance, categories []string) string {
	var lines []string

	if reminder != nil {
		lines = append(lines, "reminder: "+reminder.UTC().Format(time.RFC3339))
	}

	if importance != "" {
		lines = append(lines, "importance: "+string(importance))
	}

	if len(categories) > 0 {
		lines = append(lines, "categories: "+strings.Join(categories, ","))
	}

	if len(lines) == 0 {
		return notes
	}

	block := metadataFence + "\n" + strings.Join(lines, "\n") + "\n" + metadataFenceEnd

	if notes == "" {
		return block
	}

	return notes + "\n\n" + block
}

func decodeMetadata(notes string) (string, metadata) {
	var meta metadata

	start := strings.Index(notes, metadataFence)
	if start == -1 {
		return notes, meta
	}

	end := strings.Index(notes[start:], metadataFenceEnd)
	if end == -1 {
		return notes, meta
	}

	block := notes[start+len(metadataFence) : start+end]
	plain := strings.TrimSpace(notes[:start])

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		switch key {
		case "reminder":
			if r, err := time.Parse(time.RFC3339, val); err == nil {
				meta.reminder = &r
			}
		case "importance":
			meta.importance = model.Importance(val)
		case "categories":
			if val != "" {
				meta.categories = strings.Split(val, ",")
			}
		}
	}

	return plain, meta
}
