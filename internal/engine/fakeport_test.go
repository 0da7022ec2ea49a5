package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/harrisonrobin/tasksync/internal/model"
)

// fakePort is an in-memory provider.Port used across this package's
// tests — a hand tracker of tasks keyed by provider-local id, standing
// in for a real Google Tasks / Microsoft To Do client.
type fakePort struct {
	tag            string
	tasks          map[string]model.CanonicalTask
	nextID         int
	listAllErr     error
	listChangesErr error
	deleteErr      error
}

func newFakePort(tag string) *fakePort {
	return &fakePort{tag: tag, tasks: make(map[string]model.CanonicalTask)}
}

func (f *fakePort) put(id string, t model.CanonicalTask) {
	t.Provider = f.tag
	t.ProviderID = id
	f.tasks[id] = t
}

func (f *fakePort) ListTasks(ctx context.Context, since *time.Time) ([]model.CanonicalTask, error) {
	if since != nil && f.listChangesErr != nil {
		return nil, f.listChangesErr
	}

	if since == nil && f.listAllErr != nil {
		return nil, f.listAllErr
	}

	var out []model.CanonicalTask

	for id, t := range f.tasks {
		if since != nil && t.UpdatedAt.Before(*since) {
			continue
		}

		tc := t.Clone()
		tc.Provider = f.tag
		tc.ProviderID = id
		out = append(out, tc)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })

	return out, nil
}

func (f *fakePort) UpsertTask(ctx context.Context, task model.CanonicalTask) (model.CanonicalTask, error) {
	id := task.ProviderID
	if id == "" {
		f.nextID++
		id = fmt.Sprintf("%s-%d", f.tag, f.nextID)
	}

	stored := task.Clone()
	stored.Provider = f.tag
	stored.ProviderID = id
	f.tasks[id] = stored

	return stored, nil
}

func (f *fakePort) DeleteTask(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}

	delete(f.tasks, id)
	return nil
}
