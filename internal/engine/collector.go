package engine

import (
	"context"
	"log"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harrisonrobin/tasksync/internal/model"
	"github.com/harrisonrobin/tasksync/internal/provider"
)

// ProviderSnapshot is one provider's view of the world for this cycle:
// the incremental changes since the watermark and the full current
// list, indexed by provider-local id for O(1) presence checks.
type ProviderSnapshot struct {
	Provider  string
	Changes   []model.CanonicalTask
	All       []model.CanonicalTask
	IndexByID map[string]model.CanonicalTask
	Healthy   bool
}

// Collector runs a bounded-parallel listChanges+listAll fetch per
// provider, tolerant to per-provider failure.
type Collector struct {
	logger *log.Logger
}

// NewCollector returns a Collector. A nil logger defaults to stderr,
// matching the engine's ambient logging convention.
func NewCollector(logger *log.Logger) *Collector {
	if logger == nil {
		logger = log.New(log.Writer(), "[collector] ", log.LstdFlags)
	}

	return &Collector{logger: logger}
}

// Collect fetches listChanges(since) and listAll() from every provider
// in the registry, one errgroup goroutine per provider per call, capped
// at twice the provider count so collection never outruns the registry.
func (c *Collector) Collect(ctx context.Context, reg *provider.Registry, since *time.Time) (map[string]*ProviderSnapshot, []ReportError) {
	tags := reg.Tags()

	snapshots := make(map[string]*ProviderSnapshot, len(tags))
	for _, tag := range tags {
		snapshots[tag] = &ProviderSnapshot{Provider: tag, Healthy: true}
	}

	var (
		mu   gosync.Mutex
		errs []ReportError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2 * len(tags))

	for _, tag := range tags {
		tag := tag
		port := reg.Get(tag)

		g.Go(func() error {
			changes, err := port.ListTasks(gctx, since)
			mu.Lock()
			if err != nil {
				errs = append(errs, ReportError{Stage: StageListChanges, Provider: tag, Message: err.Error()})
				c.logger.Printf("provider %s: listChanges failed: %v", tag, err)
			} else {
				snapshots[tag].Changes = changes
			}
			mu.Unlock()

			return nil
		})

		g.Go(func() error {
			all, err := port.ListTasks(gctx, nil)
			mu.Lock()
			if err != nil {
				errs = append(errs, ReportError{Stage: StageListAll, Provider: tag, Message: err.Error()})
				snapshots[tag].Healthy = false
				c.logger.Printf("provider %s: listAll failed, marking unhealthy: %v", tag, err)
			} else {
				snapshots[tag].All = all
				snapshots[tag].IndexByID = indexByID(all)
			}
			mu.Unlock()

			return nil
		})
	}

	// Collect never fails the cycle on a provider error; errgroup's
	// returned error is always nil by construction above.
	_ = g.Wait()

	return snapshots, errs
}

func indexByID(tasks []model.CanonicalTask) map[string]model.CanonicalTask {
	idx := make(map[string]model.CanonicalTask, len(tasks))
	for _, t := range tasks {
		idx[t.ProviderID] = t
	}

	return idx
}

// HealthyTags returns the subset of tags whose snapshot is healthy.
func HealthyTags(snapshots map[string]*ProviderSnapshot, tags []string) []string {
	var out []string

	for _, tag := range tags {
		if snap, ok := snapshots[tag]; ok && snap.Healthy {
			out = append(out, tag)
		}
	}

	return out
}
