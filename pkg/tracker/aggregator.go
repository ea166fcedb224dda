// Package tracker holds the live result store and the refresh controller
// that drives batches end to end: target set in, ordered records out, with
// periodic persistence along the way.
package tracker

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skillerious/torn-target-tracker/pkg/torn"
)

// Prometheus metrics for aggregator operations.
var (
	trackerAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torn_tracker_results_applied_total",
		Help: "Total results merged into the live store",
	})

	trackerDiscardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torn_tracker_results_discarded_total",
		Help: "Total stale results discarded because their id left the target set",
	})

	trackerSavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torn_tracker_saves_total",
		Help: "Total snapshot persistence calls",
	})

	trackerSaveFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torn_tracker_save_failures_total",
		Help: "Total failed snapshot persistence calls",
	})
)

// Saver persists a snapshot of the live records. Implemented by the stores
// in pkg/store.
type Saver interface {
	SaveSnapshot(ctx context.Context, records []torn.TargetRecord) error
}

// Aggregator is the thread-safe, id-indexed store of latest results.
//
// Records keep the position of their first appearance: a newer result for a
// known id replaces it in place, a result for a new id appends. Results for
// ids outside the active target set are discarded, so a late response for a
// removed target never resurfaces in the snapshot.
type Aggregator struct {
	mu        sync.Mutex
	index     map[int64]int
	records   []torn.TargetRecord
	active    map[int64]struct{}
	sinceSave int

	saveEvery int
	saver     Saver
	logger    zerolog.Logger
}

// DefaultSaveEvery is the persistence cadence in applied results.
const DefaultSaveEvery = 50

// NewAggregator creates an aggregator persisting through saver every
// saveEvery applied results (values <= 0 use DefaultSaveEvery). A nil saver
// disables persistence.
func NewAggregator(saver Saver, saveEvery int) *Aggregator {
	if saveEvery <= 0 {
		saveEvery = DefaultSaveEvery
	}
	return &Aggregator{
		index:     make(map[int64]int),
		active:    make(map[int64]struct{}),
		saveEvery: saveEvery,
		saver:     saver,
		logger:    log.With().Str("component", "tracker").Logger(),
	}
}

// SetTargets replaces the active target set. Records whose id left the set
// are dropped; the rest keep their relative order.
func (a *Aggregator) SetTargets(ids []int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.active = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		a.active[id] = struct{}{}
	}

	kept := a.records[:0]
	for _, rec := range a.records {
		if _, ok := a.active[rec.ID]; ok {
			kept = append(kept, rec)
		}
	}
	a.records = kept
	a.index = make(map[int64]int, len(kept))
	for i, rec := range kept {
		a.index[rec.ID] = i
	}
}

// Seed merges cached records for ids in the active set without triggering
// the persistence cadence. Used on cold start so a snapshot is available
// before the first fetch completes.
func (a *Aggregator) Seed(records []torn.TargetRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range records {
		if _, ok := a.active[rec.ID]; !ok {
			continue
		}
		a.upsert(rec)
	}
}

// Apply merges one result into the store. Returns false when the result was
// discarded because its id is no longer in the active target set. Every
// saveEvery-th applied result hands the snapshot to the saver; save failures
// are logged and never affect the in-memory state.
func (a *Aggregator) Apply(rec torn.TargetRecord) bool {
	a.mu.Lock()
	if _, ok := a.active[rec.ID]; !ok {
		a.mu.Unlock()
		trackerDiscardedTotal.Inc()
		a.logger.Debug().Int64("user_id", rec.ID).Msg("Discarding stale result")
		return false
	}

	a.upsert(rec)
	trackerAppliedTotal.Inc()

	a.sinceSave++
	var snapshot []torn.TargetRecord
	if a.saver != nil && a.sinceSave >= a.saveEvery {
		a.sinceSave = 0
		snapshot = a.snapshotLocked()
	}
	a.mu.Unlock()

	if snapshot != nil {
		a.save(snapshot)
	}
	return true
}

// Snapshot returns a copy of the current records in display order.
func (a *Aggregator) Snapshot() []torn.TargetRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Flush persists the current snapshot immediately and resets the cadence
// counter. Unlike the automatic path, the error is returned to the caller.
func (a *Aggregator) Flush(ctx context.Context) error {
	if a.saver == nil {
		return nil
	}

	a.mu.Lock()
	a.sinceSave = 0
	snapshot := a.snapshotLocked()
	a.mu.Unlock()

	trackerSavesTotal.Inc()
	if err := a.saver.SaveSnapshot(ctx, snapshot); err != nil {
		trackerSaveFailuresTotal.Inc()
		return err
	}
	return nil
}

// upsert inserts or replaces a record. Caller must hold a.mu.
func (a *Aggregator) upsert(rec torn.TargetRecord) {
	if i, ok := a.index[rec.ID]; ok {
		a.records[i] = rec
		return
	}
	a.index[rec.ID] = len(a.records)
	a.records = append(a.records, rec)
}

// snapshotLocked copies the record list. Caller must hold a.mu.
func (a *Aggregator) snapshotLocked() []torn.TargetRecord {
	out := make([]torn.TargetRecord, len(a.records))
	copy(out, a.records)
	return out
}

// save runs one persistence side effect outside the store lock.
func (a *Aggregator) save(snapshot []torn.TargetRecord) {
	trackerSavesTotal.Inc()
	if err := a.saver.SaveSnapshot(context.Background(), snapshot); err != nil {
		trackerSaveFailuresTotal.Inc()
		a.logger.Warn().Err(err).Int("records", len(snapshot)).Msg("Snapshot save failed")
	}
}
