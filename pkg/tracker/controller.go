package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skillerious/torn-target-tracker/pkg/batch"
	"github.com/skillerious/torn-target-tracker/pkg/torn"
)

// Prometheus metrics for controller operations.
var (
	trackerRefreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torn_tracker_refreshes_total",
		Help: "Total refresh runs started",
	})

	trackerRefreshesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torn_tracker_refreshes_skipped_total",
		Help: "Total auto-refresh ticks skipped because a run was active",
	})
)

// MaxAutoRefresh caps the auto-refresh interval.
const MaxAutoRefresh = time.Hour

// BatchRunner is the slice of the batch fetcher the controller drives.
// Implemented by *batch.Fetcher.
type BatchRunner interface {
	Run(ids []int64, onResult func(torn.TargetRecord), onDone func()) error
	Stop(timeout time.Duration) bool
	Running() bool
}

// Progress is a point-in-time view of the active run.
type Progress struct {
	Done   int
	Total  int
	Errors int
}

// ControllerConfig holds refresh scheduling configuration.
type ControllerConfig struct {
	// AutoRefresh re-runs the batch on this interval. Zero disables;
	// capped at MaxAutoRefresh.
	AutoRefresh time.Duration
}

// Controller owns the refresh lifecycle: it holds the target and ignore
// lists, starts at most one batch at a time, feeds results into the
// aggregator, and reports progress upward.
type Controller struct {
	runner BatchRunner
	agg    *Aggregator
	config ControllerConfig
	logger zerolog.Logger

	mu         sync.Mutex
	targets    []int64
	ignored    map[int64]struct{}
	onProgress func(Progress)
	progress   Progress
	active     bool
}

// NewController creates a controller over the given runner and aggregator.
func NewController(runner BatchRunner, agg *Aggregator, cfg ControllerConfig) (*Controller, error) {
	if runner == nil {
		return nil, fmt.Errorf("batch runner is required")
	}
	if agg == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if cfg.AutoRefresh < 0 || cfg.AutoRefresh > MaxAutoRefresh {
		return nil, fmt.Errorf("auto refresh must be 0-%s (got %s)", MaxAutoRefresh, cfg.AutoRefresh)
	}

	return &Controller{
		runner:  runner,
		agg:     agg,
		config:  cfg,
		ignored: make(map[int64]struct{}),
		logger:  log.With().Str("component", "controller").Logger(),
	}, nil
}

// SetTargets replaces the tracked id list. Non-positive ids are dropped and
// duplicates collapse to their first occurrence. The aggregator's active set
// follows immediately, so results in flight for removed ids are discarded.
func (c *Controller) SetTargets(ids []int64) {
	c.mu.Lock()
	seen := make(map[int64]struct{}, len(ids))
	targets := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		targets = append(targets, id)
	}
	c.targets = targets
	scheduled := c.scheduledLocked()
	c.mu.Unlock()

	c.agg.SetTargets(scheduled)
}

// SetIgnored replaces the set of ids excluded from scheduling.
func (c *Controller) SetIgnored(ids []int64) {
	c.mu.Lock()
	c.ignored = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		c.ignored[id] = struct{}{}
	}
	scheduled := c.scheduledLocked()
	c.mu.Unlock()

	c.agg.SetTargets(scheduled)
}

// Targets returns a copy of the tracked id list.
func (c *Controller) Targets() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.targets...)
}

// OnProgress registers the per-item progress callback. It is invoked from
// worker goroutines after each applied result.
func (c *Controller) OnProgress(fn func(Progress)) {
	c.mu.Lock()
	c.onProgress = fn
	c.mu.Unlock()
}

// Seed merges persisted records into the aggregator so a snapshot is
// available before the first refresh completes.
func (c *Controller) Seed(records []torn.TargetRecord) {
	c.agg.Seed(records)
}

// Refresh starts one batch over the tracked, non-ignored ids. Returns
// batch.ErrBatchActive (unwrapped) when a run is already in flight; a
// refused refresh leaves the active run's progress untouched.
func (c *Controller) Refresh() error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return batch.ErrBatchActive
	}
	c.active = true
	ids := c.scheduledLocked()
	c.progress = Progress{Total: len(ids)}
	c.mu.Unlock()

	c.agg.SetTargets(ids)

	if err := c.runner.Run(ids, c.onOne, c.onBatchDone); err != nil {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		return err
	}

	trackerRefreshesTotal.Inc()
	c.logger.Info().Int("targets", len(ids)).Msg("Refresh started")
	return nil
}

// Running reports whether a refresh is in flight.
func (c *Controller) Running() bool {
	return c.runner.Running()
}

// Start runs the auto-refresh loop until ctx is cancelled. A tick that
// arrives while a run is active is skipped, never queued. No-op when
// auto-refresh is disabled.
func (c *Controller) Start(ctx context.Context) {
	if c.config.AutoRefresh <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(c.config.AutoRefresh)
		defer ticker.Stop()
		c.logger.Info().Dur("interval", c.config.AutoRefresh).Msg("Auto-refresh enabled")

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.runner.Running() {
					trackerRefreshesSkippedTotal.Inc()
					c.logger.Debug().Msg("Auto-refresh tick skipped (run active)")
					continue
				}
				if err := c.Refresh(); err != nil {
					c.logger.Warn().Err(err).Msg("Auto-refresh failed to start")
				}
			}
		}
	}()
}

// Shutdown stops the active run, waits up to timeout for it to drain, and
// persists a final snapshot. Returns false when the drain timed out.
func (c *Controller) Shutdown(timeout time.Duration) bool {
	drained := c.runner.Stop(timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.agg.Flush(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Final snapshot save failed")
	}
	return drained
}

// scheduledLocked returns targets minus ignored ids. Caller must hold c.mu.
func (c *Controller) scheduledLocked() []int64 {
	out := make([]int64, 0, len(c.targets))
	for _, id := range c.targets {
		if _, skip := c.ignored[id]; skip {
			continue
		}
		out = append(out, id)
	}
	return out
}

// onOne handles one per-item result from the pool.
func (c *Controller) onOne(rec torn.TargetRecord) {
	c.agg.Apply(rec)

	c.mu.Lock()
	c.progress.Done++
	if rec.Error != "" {
		c.progress.Errors++
	}
	p := c.progress
	fn := c.onProgress
	c.mu.Unlock()

	if fn != nil {
		fn(p)
	}
	if p.Done%10 == 0 || p.Done == p.Total {
		c.logger.Info().
			Int("done", p.Done).
			Int("total", p.Total).
			Int("errors", p.Errors).
			Msg("Refresh progress")
	}
}

// onBatchDone handles run completion: final persistence and a summary log.
func (c *Controller) onBatchDone() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.agg.Flush(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Completion snapshot save failed")
	}

	c.mu.Lock()
	p := c.progress
	fn := c.onProgress
	c.active = false
	c.mu.Unlock()

	// An empty run produces no per-item callbacks; completion is still
	// reported so callers waiting on progress observe it.
	if p.Total == 0 && fn != nil {
		fn(p)
	}

	c.logger.Info().
		Int("total", p.Total).
		Int("errors", p.Errors).
		Msg("Refresh complete")
}
