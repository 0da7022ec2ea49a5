package engine

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/tasksync/internal/model"
	"github.com/harrisonrobin/tasksync/internal/state"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalize lowercases, trims, and collapses internal whitespace runs so
// minor formatting differences between providers don't defeat matching.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return whitespaceRun.ReplaceAllString(s, " ")
}

func coldStartKey(t model.CanonicalTask) string {
	return normalize(t.Title) + "\x00" + normalize(t.Notes)
}

// ColdStart matches up existing tasks the first time two providers are
// paired. It only ever applies on a truly empty state
// directory (no watermark, no mappings): callers must check that
// themselves before calling. It groups every non-deleted task across
// healthy providers by (normalized title, normalized notes) and, for
// any group spanning two or more distinct providers, creates one
// mapping linking one task per provider and seeds its baseline from the
// first provider in providerOrder. Groups touching a single provider
// are left unmapped — the standard per-cycle pass in EnsureMappingsForObservedTasks
// picks those up next.
func ColdStart(s *state.SyncState, snapshots map[string]*ProviderSnapshot, providerOrder []string, now time.Time) {
	type entry struct {
		provider string
		task     model.CanonicalTask
	}

	groups := make(map[string][]entry)

	for _, p := range providerOrder {
		snap, ok := snapshots[p]
		if !ok || !snap.Healthy {
			continue
		}

		for _, t := range snap.All {
			if t.Status == model.StatusDeleted {
				continue
			}

			key := coldStartKey(t)
			groups[key] = append(groups[key], entry{provider: p, task: t})
		}
	}

	for _, members := range groups {
		distinct := make(map[string]entry)
		for _, m := range members {
			if _, ok := distinct[m.provider]; !ok {
				distinct[m.provider] = m
			}
		}

		if len(distinct) < 2 {
			continue
		}

		mapping := state.NewMapping(uuid.NewString(), now)

		var seeded bool
		for _, p := range providerOrder {
			m, ok := distinct[p]
			if !ok {
				continue
			}

			mapping.ByProvider[p] = m.task.ProviderID
			if !seeded {
				mapping.Canonical = m.task.Clone()
				seeded = true
			}
		}

		mapping.Canonical.Provider = ""
		mapping.Canonical.ProviderID = ""
		mapping.UpdatedAt = now

		s.Mappings = append(s.Mappings, mapping)
	}
}
