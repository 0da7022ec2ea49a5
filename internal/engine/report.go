package engine

import (
	"time"

	"github.com/harrisonrobin/tasksync/internal/provider"
	"github.com/harrisonrobin/tasksync/internal/state"
)

// ActionKind names what the fan-out writer or deletion resolver did for
// one (mapping, provider) pair. Noop actions are counted but not
// appended to Actions, keeping reports small on a quiet, converged
// system.
type ActionKind string

const (
	ActionCreate   ActionKind = "create"
	ActionUpdate   ActionKind = "update"
	ActionDelete   ActionKind = "delete"
	ActionRecreate ActionKind = "recreate"
)

// Action is one executed write against a provider.
type Action struct {
	Kind        ActionKind `json:"kind"`
	CanonicalID string     `json:"canonicalId"`
	Provider    string     `json:"provider"`
	ProviderID  string     `json:"providerId,omitempty"`
}

// ErrorStage names which part of the cycle an error occurred in.
type ErrorStage string

const (
	StageListChanges ErrorStage = "listChanges"
	StageListAll     ErrorStage = "listAll"
	StageWrite       ErrorStage = "write"
)

// ReportError is one recorded, non-fatal failure during the cycle.
type ReportError struct {
	Stage    ErrorStage `json:"stage"`
	Provider string     `json:"provider"`
	Message  string     `json:"message"`
}

// SyncReport is the structured, machine-readable result of one cycle.
type SyncReport struct {
	Mode             provider.Mode         `json:"mode"`
	Providers        []string              `json:"providers"`
	OldWatermark     *time.Time            `json:"oldWatermark,omitempty"`
	NewWatermark     *time.Time            `json:"newWatermark,omitempty"`
	Counts           map[ActionKind]int    `json:"counts"`
	NoopCount        int                   `json:"noopCount"`
	Actions          []Action              `json:"actions"`
	Conflicts        []state.ConflictEntry `json:"conflicts"`
	Errors           []ReportError         `json:"errors"`
	Duration         time.Duration         `json:"duration"`
	DryRun           bool                  `json:"dryRun"`
	TombstonesPruned int                   `json:"tombstonesPruned"`
}

func newReport(mode provider.Mode, providers []string, oldWatermark *time.Time, dryRun bool) *SyncReport {
	return &SyncReport{
		Mode:         mode,
		Providers:    providers,
		OldWatermark: oldWatermark,
		Counts:       make(map[ActionKind]int),
		DryRun:       dryRun,
	}
}

func (r *SyncReport) recordAction(a Action) {
	r.Actions = append(r.Actions, a)
	r.Counts[a.Kind]++
}
