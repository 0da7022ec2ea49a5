package engine

import (
	"sort"
	"time"

	"github.com/harrisonrobin/tasksync/internal/model"
	"github.com/harrisonrobin/tasksync/internal/state"
)

// EnsureMappingsForObservedTasks seeds a mapping for every task seen in
// a healthy provider's full snapshot before the field-merge pass runs,
// so brand-new tasks are reconciled the same cycle they appear. Deleted
// tasks and ids currently tombstoned for that provider are skipped —
// the former belong to the deletion resolver, the latter must not be
// resurrected.
func EnsureMappingsForObservedTasks(s *state.SyncState, snapshots map[string]*ProviderSnapshot, providerOrder []string, now time.Time) {
	for _, p := range providerOrder {
		snap, ok := snapshots[p]
		if !ok || !snap.Healthy {
			continue
		}

		for _, t := range snap.All {
			if t.Status == model.StatusDeleted {
				continue
			}

			if s.IsTombstoned(p, t.ProviderID) {
				continue
			}

			s.EnsureMapping(p, t.ProviderID, now)
		}
	}
}

// MergeMappings runs the field-level merge over every mapping not
// tombstoned this cycle, mutating each mapping's Canonical baseline in
// place and returning every conflict raised along the way.
func MergeMappings(
	s *state.SyncState,
	snapshots map[string]*ProviderSnapshot,
	providerOrder []string,
	skip map[string]bool,
	now time.Time,
) []state.ConflictEntry {
	var conflicts []state.ConflictEntry

	for _, m := range s.Mappings {
		if skip[m.CanonicalID] || len(m.ByProvider) == 0 {
			continue
		}

		conflicts = append(conflicts, mergeMapping(m, snapshots, providerOrder, now)...)
	}

	return conflicts
}

func mergeMapping(m *state.Mapping, snapshots map[string]*ProviderSnapshot, providerOrder []string, now time.Time) []state.ConflictEntry {
	byProvTask := make(map[string]model.CanonicalTask)

	for p, id := range m.ByProvider {
		snap, ok := snapshots[p]
		if !ok || !snap.Healthy {
			continue
		}

		t, ok := snap.IndexByID[id]
		if !ok || t.Status == model.StatusDeleted {
			continue
		}

		byProvTask[p] = t
	}

	if len(byProvTask) == 0 {
		return nil
	}

	baseline := m.Canonical
	if baseline.IsZero() {
		for _, p := range providerOrder {
			if t, ok := byProvTask[p]; ok {
				baseline = t
				break
			}
		}
	}

	changed := make(map[string]map[Field]bool, len(byProvTask))
	for p, t := range byProvTask {
		for _, f := range AllFields {
			if f == FieldTitle && t.Title == "" {
				// empty titles never contend for the title field
				continue
			}

			if !fieldEqual(f, baseline, t) {
				if changed[p] == nil {
					changed[p] = make(map[Field]bool)
				}

				changed[p][f] = true
			}
		}
	}

	newCanonical := baseline.Clone()
	var conflicts []state.ConflictEntry

	for _, f := range AllFields {
		var contenders []string

		for _, p := range providerOrder {
			if changed[p] != nil && changed[p][f] {
				contenders = append(contenders, p)
			}
		}

		switch len(contenders) {
		case 0:
			// keep baseline
		case 1:
			winner := contenders[0]
			setField(f, byProvTask[winner], &newCanonical)
			newCanonical.UpdatedAt = byProvTask[winner].UpdatedAt
		default:
			sort.SliceStable(contenders, func(i, j int) bool {
				ti, tj := byProvTask[contenders[i]], byProvTask[contenders[j]]
				if ti.UpdatedAt.Equal(tj.UpdatedAt) {
					return providerRank(providerOrder, contenders[i]) < providerRank(providerOrder, contenders[j])
				}

				return ti.UpdatedAt.After(tj.UpdatedAt)
			})

			winner := contenders[0]
			setField(f, byProvTask[winner], &newCanonical)
			newCanonical.UpdatedAt = byProvTask[winner].UpdatedAt

			conflicts = append(conflicts, state.ConflictEntry{
				At:          now,
				CanonicalID: m.CanonicalID,
				Field:       string(f),
				Providers:   contenders,
				Winner:      winner,
				Overwritten: append([]string(nil), contenders[1:]...),
			})
		}
	}

	if newCanonical.Title == "" {
		newCanonical.Title = baseline.Title
	}

	m.Canonical = newCanonical
	m.UpdatedAt = now

	return conflicts
}

func providerRank(order []string, tag string) int {
	for i, p := range order {
		if p == tag {
			return i
		}
	}

	return len(order)
}
