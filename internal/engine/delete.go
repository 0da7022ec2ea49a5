package engine

import (
	"context"
	"log"
	"time"

	"github.com/harrisonrobin/tasksync/internal/model"
	"github.com/harrisonrobin/tasksync/internal/provider"
	"github.com/harrisonrobin/tasksync/internal/state"
)

// DeletionResolver implements delete-wins semantics, fed by intentional
// provider-reported deletions and by external deletions inferred from a
// provider simply no longer listing a mapped id.
type DeletionResolver struct {
	logger *log.Logger
}

func NewDeletionResolver(logger *log.Logger) *DeletionResolver {
	if logger == nil {
		logger = log.New(log.Writer(), "[delete] ", log.LstdFlags)
	}

	return &DeletionResolver{logger: logger}
}

// Resolve runs both deletion paths, issues delete propagation against
// every target provider still holding a now-tombstoned id, and returns
// the set of canonical ids the merger must skip this cycle along with
// the executed delete actions and any write errors.
//
// Only sourceTags may originate a deletion: in mirror / a-to-b-only
// modes a target-only provider's local deletions are not authoritative
// (the fan-out writer recreates from the source's baseline instead),
// and propagation only ever writes to targetTags, so provider[0] is
// never deleted from in those modes. dryRun suppresses the DeleteTask
// calls while still recording what would have happened; the in-memory
// state mutations are harmless because a dry-run cycle is never
// persisted.
func (d *DeletionResolver) Resolve(
	ctx context.Context,
	reg *provider.Registry,
	s *state.SyncState,
	snapshots map[string]*ProviderSnapshot,
	sourceTags []string,
	targetTags []string,
	lastSyncAt *time.Time,
	dryRun bool,
	now time.Time,
) (tombstonedThisCycle map[string]bool, actions []Action, errs []ReportError) {
	tombstonedThisCycle = make(map[string]bool)

	sourceSet := make(map[string]bool, len(sourceTags))
	for _, p := range sourceTags {
		sourceSet[p] = true
	}

	targetSet := make(map[string]bool, len(targetTags))
	for _, p := range targetTags {
		targetSet[p] = true
	}

	type pendingDelete struct {
		canonicalID string
		provider    string
		id          string
	}

	var pending []pendingDelete

	// captureAndTombstone tombstones every provider id the mapping
	// currently holds. A non-target provider's entry is dropped outright
	// once tombstoned — the engine never writes there, so there is
	// nothing to propagate or retry. A target's entry is only cleared
	// when it is confirmed gone already (healthy and absent from that
	// provider's index); a target that still lists the id gets its
	// DeleteTask queued and keeps its entry until that call succeeds,
	// and an unhealthy target keeps its entry untouched so a later
	// cycle's propagation can retry against it.
	captureAndTombstone := func(m *state.Mapping) {
		for p, id := range m.ByProvider {
			s.AddTombstone(p, id, now)

			if !targetSet[p] {
				delete(m.ByProvider, p)
				continue
			}

			snap, ok := snapshots[p]
			if !ok || !snap.Healthy {
				continue
			}

			if _, present := snap.IndexByID[id]; present {
				pending = append(pending, pendingDelete{canonicalID: m.CanonicalID, provider: p, id: id})
				continue
			}

			delete(m.ByProvider, p)
		}

		m.UpdatedAt = now
		tombstonedThisCycle[m.CanonicalID] = true
	}

	// (a) intentional deletion signaled by a source provider.
	for _, p := range sourceTags {
		snap, ok := snapshots[p]
		if !ok || !snap.Healthy {
			continue
		}

		for _, t := range snap.Changes {
			if t.Status != model.StatusDeleted {
				continue
			}

			m, _ := s.EnsureMapping(p, t.ProviderID, now)
			if tombstonedThisCycle[m.CanonicalID] {
				continue
			}

			captureAndTombstone(m)
		}
	}

	// (b) external deletion inferred from absence, and pure orphans.
	// Only a source-side disappearance counts as a deletion signal; a
	// target-only provider that stops listing an id is left for the
	// fan-out writer to recreate.
	if lastSyncAt != nil {
		var orphaned []string

		for _, m := range s.Mappings {
			if tombstonedThisCycle[m.CanonicalID] {
				continue
			}

			if m.Canonical.IsZero() {
				continue
			}

			var srcMissing, srcConsidered int
			var present, considered int

			for p, id := range m.ByProvider {
				snap, ok := snapshots[p]
				if !ok || !snap.Healthy {
					continue
				}

				considered++

				_, listed := snap.IndexByID[id]
				if listed {
					present++
				}

				if sourceSet[p] {
					srcConsidered++
					if !listed {
						srcMissing++
					}
				}
			}

			if srcConsidered == 0 || srcMissing == 0 {
				continue
			}

			if present > 0 {
				captureAndTombstone(m)
			} else if considered == len(m.ByProvider) {
				captureAndTombstone(m)
				orphaned = append(orphaned, m.CanonicalID)
			}
		}

		for _, id := range orphaned {
			s.RemoveMapping(id)
		}
	}

	// (c) retry: a mapping can be left holding a byProvider entry from an
	// earlier cycle whose DeleteTask never succeeded (the provider was
	// unhealthy, or the call itself failed). Such an entry's id is still
	// recorded as a tombstone, so re-running captureAndTombstone against
	// it requeues propagation without re-deriving the deletion.
	for _, m := range s.Mappings {
		if tombstonedThisCycle[m.CanonicalID] {
			continue
		}

		retry := false
		for p, id := range m.ByProvider {
			if s.IsTombstoned(p, id) {
				retry = true
				break
			}
		}

		if retry {
			captureAndTombstone(m)
		}
	}

	// Propagate: issue DeleteTask against every target provider still
	// holding a tombstoned id.
	for _, pd := range pending {
		if !targetSet[pd.provider] {
			continue
		}

		if dryRun {
			actions = append(actions, Action{Kind: ActionDelete, CanonicalID: pd.canonicalID, Provider: pd.provider, ProviderID: pd.id})
			continue
		}

		port := reg.Get(pd.provider)

		if err := port.DeleteTask(ctx, pd.id); err != nil {
			errs = append(errs, ReportError{Stage: StageWrite, Provider: pd.provider, Message: err.Error()})
			d.logger.Printf("delete %s/%s failed: %v", pd.provider, pd.id, err)

			// byProvider entry stays in place so the next cycle's
			// propagation retries this provider.
			continue
		}

		if m := s.FindByCanonicalID(pd.canonicalID); m != nil {
			delete(m.ByProvider, pd.provider)
		}

		actions = append(actions, Action{Kind: ActionDelete, CanonicalID: pd.canonicalID, Provider: pd.provider, ProviderID: pd.id})
	}

	return tombstonedThisCycle, actions, errs
}
