package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skillerious/torn-target-tracker/pkg/torn"
)

// Prometheus metrics for batch operations.
var (
	batchRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torn_batch_runs_total",
		Help: "Total number of batch fetch runs started",
	})

	batchTargetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torn_batch_targets_total",
		Help: "Total number of targets processed across all batches",
	})

	batchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torn_batch_failures_total",
		Help: "Total number of targets that finished with an error record",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "torn_batch_duration_seconds",
		Help:    "Wall-clock duration of complete batch runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	batchPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torn_batch_panics_total",
		Help: "Total number of panics recovered at the worker boundary",
	})
)

// ErrBatchActive is returned by Run when a previous batch has not finished.
var ErrBatchActive = errors.New("a batch fetch is already running")

// UserFetcher fetches one user's record. Implemented by *torn.Client.
type UserFetcher interface {
	FetchUser(ctx context.Context, userID int64) torn.TargetRecord
}

// Config holds worker pool configuration.
type Config struct {
	// Concurrency is the number of parallel fetch workers (1-20).
	Concurrency int
}

// DefaultConfig returns the standard pool configuration.
func DefaultConfig() Config {
	return Config{Concurrency: 4}
}

// Fetcher runs batches of user fetches through a bounded worker pool.
// At most one batch is in flight at a time.
type Fetcher struct {
	api    UserFetcher
	config Config
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a batch fetcher over the given user fetcher.
func New(api UserFetcher, cfg Config) (*Fetcher, error) {
	if api == nil {
		return nil, fmt.Errorf("user fetcher is required")
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.Concurrency < 1 || cfg.Concurrency > 20 {
		return nil, fmt.Errorf("concurrency must be 1-20 (got %d)", cfg.Concurrency)
	}

	return &Fetcher{
		api:    api,
		config: cfg,
		logger: log.With().Str("component", "batch").Logger(),
	}, nil
}

// Run starts a batch over ids, invoking onResult once per id as results
// arrive (from worker goroutines, in completion order) and onDone exactly
// once when every id has been processed. An empty id list fires onDone
// immediately. Returns ErrBatchActive while a previous batch is running,
// including while its completion callback is still executing.
func (f *Fetcher) Run(ids []int64, onResult func(torn.TargetRecord), onDone func()) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return ErrBatchActive
	}
	if len(ids) == 0 {
		f.mu.Unlock()
		if onDone != nil {
			f.safeCall(onDone)
		}
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	f.running = true
	f.cancel = cancel
	f.done = done
	f.mu.Unlock()

	batchRunsTotal.Inc()
	batchTargetsTotal.Add(float64(len(ids)))

	go f.run(ctx, cancel, ids, onResult, onDone, done)
	return nil
}

// Running reports whether a batch is currently in flight.
func (f *Fetcher) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Stop cancels the running batch and waits up to timeout for workers to
// drain. Returns true when the batch finished (or none was running) within
// the timeout. After cancellation every unprocessed id still receives its
// onResult callback, carrying a cancelled error record.
func (f *Fetcher) Stop(timeout time.Duration) bool {
	f.mu.Lock()
	running := f.running
	cancel := f.cancel
	done := f.done
	f.mu.Unlock()

	if !running {
		return true
	}
	cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		f.logger.Warn().Dur("timeout", timeout).Msg("Batch stop timed out")
		return false
	}
}

// run drives one batch to completion.
func (f *Fetcher) run(ctx context.Context, cancel context.CancelFunc, ids []int64, onResult func(torn.TargetRecord), onDone func(), done chan struct{}) {
	start := time.Now()
	f.logger.Info().
		Int("targets", len(ids)).
		Int("workers", f.config.Concurrency).
		Msg("Starting batch fetch")

	queue := make(chan int64, len(ids))
	for _, id := range ids {
		queue <- id
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < f.config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for id := range queue {
				f.process(ctx, workerID, id, onResult)
			}
		}(i)
	}
	wg.Wait()
	cancel()

	batchDuration.Observe(time.Since(start).Seconds())
	f.logger.Info().
		Int("targets", len(ids)).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	if onDone != nil {
		f.safeCall(onDone)
	}

	// The slot frees only after the completion callback returns; a new run
	// cannot start while the previous run's completion work is in flight.
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	close(done)
}

// process fetches one id and delivers its result, recovering any panic from
// the fetch or the callback into a failed record so the batch always drains.
func (f *Fetcher) process(ctx context.Context, workerID int, id int64, onResult func(torn.TargetRecord)) {
	defer func() {
		if r := recover(); r != nil {
			batchPanicsTotal.Inc()
			f.logger.Error().
				Int("worker_id", workerID).
				Int64("user_id", id).
				Interface("panic", r).
				Msg("Recovered panic in fetch worker")
		}
	}()

	rec := f.fetchOne(ctx, id)
	if rec.Error != "" {
		batchFailuresTotal.Inc()
	}
	if onResult != nil {
		onResult(rec)
	}
}

// fetchOne calls the underlying fetcher with its own panic boundary so a
// panicking fetch still yields a deliverable error record.
func (f *Fetcher) fetchOne(ctx context.Context, id int64) (rec torn.TargetRecord) {
	defer func() {
		if r := recover(); r != nil {
			batchPanicsTotal.Inc()
			f.logger.Error().
				Int64("user_id", id).
				Interface("panic", r).
				Msg("Recovered panic in user fetch")
			rec = torn.TargetRecord{ID: id, Error: fmt.Sprintf("Unexpected error: %v", r)}
		}
	}()
	return f.api.FetchUser(ctx, id)
}

// safeCall shields batch completion from a panicking callback.
func (f *Fetcher) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			batchPanicsTotal.Inc()
			f.logger.Error().Interface("panic", r).Msg("Recovered panic in completion callback")
		}
	}()
	fn()
}
