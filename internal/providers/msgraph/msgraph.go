// Package msgraph implements provider.Port against the Microsoft Graph
// "todo" REST surface with a small hand-written client, in the style of
// a Do(ctx, method, path, body) JSON-in/JSON-out helper rather than a
// generated SDK.
package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/harrisonrobin/tasksync/internal/model"
	"github.com/harrisonrobin/tasksync/internal/provider"
)

const baseURL = "https://graph.microsoft.com/v1.0"

// defaultListName is the Microsoft To Do list this provider targets when
// no specific list id is configured.
const defaultListName = "Tasks"

// Provider talks to Microsoft Graph's /me/todo/lists/{listId}/tasks. The
// http.Client passed to New must already attach a bearer token to every
// request (an oauth2.Config-derived client does this automatically) —
// this adapter never handles tokens itself.
type Provider struct {
	httpClient *http.Client
	listID     string
	logger     *log.Logger
}

// New resolves or creates the target list and returns a ready Provider.
// listName may be empty, in which case defaultListName is used.
func New(ctx context.Context, httpClient *http.Client, listName string, logger *log.Logger) (*Provider, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[msgraph] ", log.LstdFlags)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if listName == "" {
		listName = defaultListName
	}

	p := &Provider{httpClient: httpClient, logger: logger}

	listID, err := p.resolveListID(ctx, listName)
	if err != nil {
		return nil, err
	}

	p.listID = listID

	return p, nil
}

type todoList struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type todoListsResponse struct {
	Value []todoList `json:"value"`
}

func (p *Provider) resolveListID(ctx context.Context, listName string) (string, error) {
	var resp todoListsResponse
	if err := p.do(ctx, http.MethodGet, "/me/todo/lists", nil, &resp); err != nil {
		return "", fmt.Errorf("list todo lists: %w", err)
	}

	for _, l := range resp.Value {
		if l.DisplayName == listName {
			return l.ID, nil
		}
	}

	p.logger.Printf("no existing todo list named %q, creating one", listName)

	var created todoList
	body := todoList{DisplayName: listName}
	if err := p.do(ctx, http.MethodPost, "/me/todo/lists", body, &created); err != nil {
		return "", fmt.Errorf("create todo list %q: %w", listName, err)
	}

	return created.ID, nil
}

// graphTask is the wire shape of a Microsoft To Do task.
type graphTask struct {
	ID               string            `json:"id,omitempty"`
	Title            string            `json:"title,omitempty"`
	Body             *itemBody         `json:"body,omitempty"`
	Status           string            `json:"status,omitempty"`
	Importance       string            `json:"importance,omitempty"`
	DueDateTime      *dateTimeTimeZone `json:"dueDateTime,omitempty"`
	ReminderDateTime *dateTimeTimeZone `json:"reminderDateTime,omitempty"`
	IsReminderOn     bool              `json:"isReminderOn,omitempty"`
	Categories       []string          `json:"categories,omitempty"`
	Recurrence       *patternedRecur   `json:"recurrence,omitempty"`
	ChecklistItems   []checklistItem   `json:"checklistItems,omitempty"`
	LastModifiedDT   *dateTimeOnly     `json:"lastModifiedDateTime,omitempty"`
}

type itemBody struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

type dateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type dateTimeOnly struct {
	DateTime string `json:"dateTime"`
}

type checklistItem struct {
	DisplayName string `json:"displayName"`
	IsChecked   bool   `json:"isChecked"`
}

type patternedRecur struct {
	Pattern map[string]interface{} `json:"pattern,omitempty"`
	Range   map[string]interface{} `json:"range,omitempty"`
}

type graphTasksResponse struct {
	Value    []graphTask `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// ListTasks returns every task in the target list when since is nil.
// Microsoft Graph's todo tasks API has no server-side "modified since"
// filter, so an incremental call fetches everything and filters client
// side on lastModifiedDateTime — acceptable at this adapter's scale.
func (p *Provider) ListTasks(ctx context.Context, since *time.Time) ([]model.CanonicalTask, error) {
	var out []model.CanonicalTask

	path := fmt.Sprintf("/me/todo/lists/%s/tasks?$top=100", p.listID)

	for path != "" {
		var resp graphTasksResponse
		if err := p.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}

		for _, gt := range resp.Value {
			ct := fromGraphTask(gt)
			if since != nil && ct.UpdatedAt.Before(*since) {
				continue
			}

			out = append(out, ct)
		}

		path = ""
		if resp.NextLink != "" {
			path = strings.TrimPrefix(resp.NextLink, baseURL)
		}
	}

	return out, nil
}

// UpsertTask creates a task when task.ProviderID is empty, otherwise
// PATCHes the existing one.
func (p *Provider) UpsertTask(ctx context.Context, task model.CanonicalTask) (model.CanonicalTask, error) {
	gt := toGraphTask(task)

	var result graphTask

	if task.ProviderID == "" {
		path := fmt.Sprintf("/me/todo/lists/%s/tasks", p.listID)
		if err := p.do(ctx, http.MethodPost, path, gt, &result); err != nil {
			return model.CanonicalTask{}, fmt.Errorf("create task: %w", err)
		}

		return fromGraphTask(result), nil
	}

	path := fmt.Sprintf("/me/todo/lists/%s/tasks/%s", p.listID, task.ProviderID)
	if err := p.do(ctx, http.MethodPatch, path, gt, &result); err != nil {
		return model.CanonicalTask{}, fmt.Errorf("patch task %s: %w", task.ProviderID, err)
	}

	return fromGraphTask(result), nil
}

// DeleteTask is idempotent: a 404 from Graph is treated as success.
func (p *Provider) DeleteTask(ctx context.Context, id string) error {
	path := fmt.Sprintf("/me/todo/lists/%s/tasks/%s", p.listID, id)

	err := p.do(ctx, http.MethodDelete, path, nil, nil)
	if err == nil {
		return nil
	}

	var ge *graphError
	if errors.As(err, &ge) && ge.StatusCode == http.StatusNotFound {
		return nil
	}

	return fmt.Errorf("delete task %s: %w", id, err)
}

type graphError struct {
	StatusCode int
	Body       string
}

func (e *graphError) Error() string {
	return fmt.Sprintf("graph: status %d: %s", e.StatusCode, e.Body)
}

func (p *Provider) do(ctx context.Context, method, path string, body, out interface{}) error {
	return provider.WithRetry(ctx, func(ctx context.Context) error {
		var reqBody io.Reader

		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("marshal request body: %w", err)
			}

			reqBody = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reqBody)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}

		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return provider.Retryable(fmt.Errorf("http do: %w", err), 0)
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return provider.Retryable(&graphError{StatusCode: resp.StatusCode, Body: string(data)}, provider.RetryAfterFromHeader(resp.Header))
		}

		if resp.StatusCode >= 300 {
			return &graphError{StatusCode: resp.StatusCode, Body: string(data)}
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}

		return nil
	})
}

const graphTimeLayout = "2006-01-02T15:04:05.0000000"

func fromGraphTask(gt graphTask) model.CanonicalTask {
	ct := model.CanonicalTask{
		Provider:   "msgraph",
		ProviderID: gt.ID,
		Title:      gt.Title,
		Status:     model.StatusActive,
	}

	if gt.Body != nil {
		ct.Notes = gt.Body.Content
	}

	if gt.Status == "completed" {
		ct.Status = model.StatusCompleted
	}

	switch gt.Importance {
	case "low":
		ct.Importance = model.ImportanceLow
	case "high":
		ct.Importance = model.ImportanceHigh
	case "normal":
		ct.Importance = model.ImportanceNormal
	}

	if gt.DueDateTime != nil {
		if d, err := parseGraphTime(gt.DueDateTime.DateTime); err == nil {
			ct.DueAt = &d
			ct.DueTime = d.Format("15:04")
		}
	}

	if gt.IsReminderOn && gt.ReminderDateTime != nil {
		if r, err := parseGraphTime(gt.ReminderDateTime.DateTime); err == nil {
			ct.Reminder = &r
		}
	}

	ct.Categories = append([]string(nil), gt.Categories...)

	for _, item := range gt.ChecklistItems {
		ct.Steps = append(ct.Steps, model.Step{Text: item.DisplayName, Checked: item.IsChecked})
	}

	if gt.LastModifiedDT != nil {
		if u, err := parseGraphTime(gt.LastModifiedDT.DateTime); err == nil {
			ct.UpdatedAt = u
		}
	}

	return ct
}

func toGraphTask(ct model.CanonicalTask) graphTask {
	gt := graphTask{
		Title: ct.Title,
	}

	if ct.Notes != "" {
		gt.Body = &itemBody{Content: ct.Notes, ContentType: "text"}
	}

	if ct.Status == model.StatusCompleted {
		gt.Status = "completed"
	} else {
		gt.Status = "notStarted"
	}

	switch ct.Importance {
	case model.ImportanceLow:
		gt.Importance = "low"
	case model.ImportanceHigh:
		gt.Importance = "high"
	default:
		gt.Importance = "normal"
	}

	if ct.DueAt != nil {
		gt.DueDateTime = &dateTimeTimeZone{DateTime: ct.DueAt.UTC().Format(graphTimeLayout), TimeZone: "UTC"}
	}

	if ct.Reminder != nil {
		gt.ReminderDateTime = &dateTimeTimeZone{DateTime: ct.Reminder.UTC().Format(graphTimeLayout), TimeZone: "UTC"}
		gt.IsReminderOn = true
	}

	gt.Categories = ct.Categories

	for _, step := range ct.Steps {
		gt.ChecklistItems = append(gt.ChecklistItems, checklistItem{DisplayName: step.Text, IsChecked: step.Checked})
	}

	return gt
}

func parseGraphTime(s string) (time.Time, error) {
	if t, err := time.Parse(graphTimeLayout, s); err == nil {
		return t.UTC(), nil
	}

	return time.Parse(time.RFC3339, s)
}
