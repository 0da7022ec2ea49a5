// Package engine implements the reconciliation core: the snapshot
// collector, cold-start matcher, deletion resolver, field-level merger,
// fan-out writer, and the cycle orchestrator that drives them in order.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/harrisonrobin/tasksync/internal/lock"
	"github.com/harrisonrobin/tasksync/internal/provider"
	"github.com/harrisonrobin/tasksync/internal/state"
)

// Engine owns the durable collaborators a cycle needs: the state store,
// conflict log, and provider registry. A caller runs RunCycle once, or
// loops it for polling mode — each call is independent and re-acquires
// the lock.
type Engine struct {
	Store            state.Store
	ConflictLog      *state.ConflictLogger
	Registry         *provider.Registry
	StateDir         string
	Mode             provider.Mode
	TombstoneTTLDays int
	DryRun           bool

	Collector *Collector
	Deletions *DeletionResolver
	FanOut    *FanOutWriter

	Logger *log.Logger
}

// NewEngine wires the collaborators, defaulting the logger to stderr
// when it is nil.
func NewEngine(store state.Store, reg *provider.Registry, stateDir string, mode provider.Mode, ttlDays int, dryRun bool, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[engine] ", log.LstdFlags)
	}

	return &Engine{
		Store:            store,
		ConflictLog:      state.NewConflictLogger(stateDir),
		Registry:         reg,
		StateDir:         stateDir,
		Mode:             mode,
		TombstoneTTLDays: ttlDays,
		DryRun:           dryRun,
		Collector:        NewCollector(logger),
		Deletions:        NewDeletionResolver(logger),
		FanOut:           NewFanOutWriter(logger),
		Logger:           logger,
	}
}

// RunCycle executes one full reconciliation cycle under the exclusion
// lock and returns its report. A lock or state-load failure is the only
// way this returns without a report, per the error propagation policy.
func (e *Engine) RunCycle(ctx context.Context) (*SyncReport, error) {
	start := time.Now().UTC()

	release, err := lock.Acquire(e.StateDir)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer release()

	s, err := e.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	oldWatermark := s.LastSyncAt
	now := time.Now().UTC()

	report := newReport(e.Mode, e.Registry.Tags(), oldWatermark, e.DryRun)

	report.TombstonesPruned = s.PruneExpiredTombstones(e.TombstoneTTLDays, now)
	s.PruneEmptyMappings()

	snapshots, collectErrs := e.Collector.Collect(ctx, e.Registry, oldWatermark)
	report.Errors = append(report.Errors, collectErrs...)

	healthyTags := HealthyTags(snapshots, e.Registry.Tags())
	healthySourceTags := HealthyTags(snapshots, e.Registry.SourceTags(e.Mode))
	targetTags := e.Registry.TargetTags(e.Mode)

	if oldWatermark == nil && len(s.Mappings) == 0 {
		ColdStart(s, snapshots, healthyTags, now)
	}

	skip, deleteActions, deleteErrs := e.Deletions.Resolve(ctx, e.Registry, s, snapshots, healthySourceTags, targetTags, oldWatermark, e.DryRun, now)
	for _, a := range deleteActions {
		report.recordAction(a)
	}
	report.Errors = append(report.Errors, deleteErrs...)

	EnsureMappingsForObservedTasks(s, snapshots, healthySourceTags, now)

	conflicts := MergeMappings(s, snapshots, healthySourceTags, skip, now)
	report.Conflicts = append(report.Conflicts, conflicts...)
	writeActions, noopCount, writeErrs := e.FanOut.Write(ctx, e.Registry, s, snapshots, targetTags, skip, e.DryRun, now)
	for _, a := range writeActions {
		report.recordAction(a)
	}
	report.NoopCount += noopCount
	report.Errors = append(report.Errors, writeErrs...)

	newWatermark := now
	s.LastSyncAt = &newWatermark
	report.NewWatermark = &newWatermark
	report.Duration = time.Since(start)

	if e.DryRun {
		return report, nil
	}

	for _, c := range conflicts {
		if err := e.ConflictLog.Log(c); err != nil {
			e.Logger.Printf("conflict log append failed: %v", err)
		}
	}

	if err := e.Store.Save(s); err != nil {
		return report, fmt.Errorf("save state: %w", err)
	}

	return report, nil
}
