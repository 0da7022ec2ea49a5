package engine

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/harrisonrobin/tasksync/internal/model"
	"github.com/harrisonrobin/tasksync/internal/provider"
	"github.com/harrisonrobin/tasksync/internal/state"
)

// FanOutWriter fans the resolved canonical of each reconciled mapping
// out to every target provider for the configured sync mode. Writes are
// sequential per mapping (the engine is single-threaded past snapshot
// collection), so each write observes the baseline the merger just set
// in memory.
type FanOutWriter struct {
	logger *log.Logger
}

func NewFanOutWriter(logger *log.Logger) *FanOutWriter {
	if logger == nil {
		logger = log.New(log.Writer(), "[fanout] ", log.LstdFlags)
	}

	return &FanOutWriter{logger: logger}
}

// Write fans the current Canonical of every non-skipped mapping out to
// targetTags, respecting tombstones (no recreate of a tombstoned id)
// and only issuing update when the provider's stored copy actually
// differs. dryRun suppresses every write while still computing and
// returning what would have happened, so the caller's report reflects
// the plan.
func (w *FanOutWriter) Write(
	ctx context.Context,
	reg *provider.Registry,
	s *state.SyncState,
	snapshots map[string]*ProviderSnapshot,
	targetTags []string,
	skip map[string]bool,
	dryRun bool,
	now time.Time,
) (actions []Action, noopCount int, errs []ReportError) {
	for _, m := range s.Mappings {
		if skip[m.CanonicalID] || len(m.ByProvider) == 0 {
			continue
		}

		// Empty titles are never written outward.
		if strings.TrimSpace(m.Canonical.Title) == "" {
			continue
		}

		for _, p := range targetTags {
			snap, ok := snapshots[p]
			if !ok || !snap.Healthy {
				continue
			}

			action, noop, err := w.writeOne(ctx, reg, s, m, p, snap, dryRun, now)
			if err != nil {
				errs = append(errs, ReportError{Stage: StageWrite, Provider: p, Message: err.Error()})
				w.logger.Printf("write %s for mapping %s failed: %v", p, m.CanonicalID, err)

				continue
			}

			if noop {
				noopCount++
				continue
			}

			if action != nil {
				actions = append(actions, *action)
			}
		}
	}

	return actions, noopCount, errs
}

func (w *FanOutWriter) writeOne(
	ctx context.Context,
	reg *provider.Registry,
	s *state.SyncState,
	m *state.Mapping,
	p string,
	snap *ProviderSnapshot,
	dryRun bool,
	now time.Time,
) (*Action, bool, error) {
	id, hasID := m.ByProvider[p]

	if !hasID {
		if dryRun {
			return &Action{Kind: ActionCreate, CanonicalID: m.CanonicalID, Provider: p}, false, nil
		}

		created, err := reg.Get(p).UpsertTask(ctx, upsertInput(m.Canonical, p, ""))
		if err != nil {
			return nil, false, err
		}

		s.UpsertProviderID(m, p, created.ProviderID, now)

		return &Action{Kind: ActionCreate, CanonicalID: m.CanonicalID, Provider: p, ProviderID: created.ProviderID}, false, nil
	}

	current, present := snap.IndexByID[id]

	if !present {
		if s.IsTombstoned(p, id) {
			return nil, true, nil
		}

		if dryRun {
			return &Action{Kind: ActionRecreate, CanonicalID: m.CanonicalID, Provider: p}, false, nil
		}

		created, err := reg.Get(p).UpsertTask(ctx, upsertInput(m.Canonical, p, ""))
		if err != nil {
			return nil, false, err
		}

		s.UpsertProviderID(m, p, created.ProviderID, now)

		return &Action{Kind: ActionRecreate, CanonicalID: m.CanonicalID, Provider: p, ProviderID: created.ProviderID}, false, nil
	}

	if canonicalMatchesProvider(m.Canonical, current) {
		return nil, true, nil
	}

	if dryRun {
		return &Action{Kind: ActionUpdate, CanonicalID: m.CanonicalID, Provider: p, ProviderID: id}, false, nil
	}

	if _, err := reg.Get(p).UpsertTask(ctx, upsertInput(m.Canonical, p, id)); err != nil {
		return nil, false, err
	}

	return &Action{Kind: ActionUpdate, CanonicalID: m.CanonicalID, Provider: p, ProviderID: id}, false, nil
}

func upsertInput(canonical model.CanonicalTask, providerTag, providerID string) model.CanonicalTask {
	t := canonical.Clone()
	t.Provider = providerTag
	t.ProviderID = providerID

	return t
}

func canonicalMatchesProvider(canonical, current model.CanonicalTask) bool {
	for _, f := range AllFields {
		if !fieldEqual(f, canonical, current) {
			return false
		}
	}

	return true
}
