// Package provider defines the narrow boundary every task backend must
// implement and the registry the engine drives them through. All network
// code lives behind this interface — the engine never knows whether a
// provider is Google Tasks, Microsoft To Do, or a local stub.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/harrisonrobin/tasksync/internal/model"
)

// Port is the three-method capability set every provider adapter exposes.
// Dispatch is by interface, not by a type-switch over concrete providers.
type Port interface {
	// ListTasks returns a full snapshot when since is nil, or an
	// incremental snapshot (tasks modified at or after since) when it is
	// set. Returned tasks carry Provider/ProviderID set to this provider's
	// tag and opaque id.
	ListTasks(ctx context.Context, since *time.Time) ([]model.CanonicalTask, error)

	// UpsertTask creates when task.ProviderID is empty, otherwise patches
	// the existing task. The returned task is the authoritative stored
	// record, including any server-assigned id.
	UpsertTask(ctx context.Context, task model.CanonicalTask) (model.CanonicalTask, error)

	// DeleteTask is idempotent from the engine's point of view: deleting
	// an id that no longer exists on the provider is not an error.
	DeleteTask(ctx context.Context, id string) error
}

// Mode selects which providers source changes and which are write-only
// targets for a cycle.
type Mode string

const (
	ModeBidirectional Mode = "bidirectional"
	ModeAToBOnly      Mode = "a-to-b-only"
	ModeMirror        Mode = "mirror"
)

// Registry holds providers in configuration order. Order matters: mode
// a-to-b-only and mirror both single out "provider[0]" by position, so a
// map alone would lose the information the engine needs.
type Registry struct {
	tags      []string
	providers map[string]Port
}

// NewRegistry builds a Registry from tag/port pairs, preserving the order
// they are given in.
func NewRegistry(tags []string, ports map[string]Port) (*Registry, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("provider registry: at least one provider required")
	}

	for _, tag := range tags {
		if _, ok := ports[tag]; !ok {
			return nil, fmt.Errorf("provider registry: no port registered for tag %q", tag)
		}
	}

	return &Registry{tags: tags, providers: ports}, nil
}

// Tags returns provider tags in configuration order.
func (r *Registry) Tags() []string {
	return append([]string(nil), r.tags...)
}

// Get returns the Port for tag, or nil if unknown.
func (r *Registry) Get(tag string) Port {
	return r.providers[tag]
}

// Primary returns the tag of provider[0], used by a-to-b-only and mirror
// modes to identify the authoritative source.
func (r *Registry) Primary() string {
	return r.tags[0]
}

// Len reports how many providers are registered.
func (r *Registry) Len() int {
	return len(r.tags)
}

// SourceTags returns the tags that read changes from the provider this
// cycle, in registry order, for the given mode.
func (r *Registry) SourceTags(mode Mode) []string {
	switch mode {
	case ModeAToBOnly, ModeMirror:
		return []string{r.Primary()}
	default:
		return r.Tags()
	}
}

// TargetTags returns the tags the engine may write to this cycle, in
// registry order, for the given mode.
func (r *Registry) TargetTags(mode Mode) []string {
	switch mode {
	case ModeAToBOnly, ModeMirror:
		return append([]string(nil), r.tags[1:]...)
	default:
		return r.Tags()
	}
}
