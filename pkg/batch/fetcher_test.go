package batch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/skillerious/torn-target-tracker/pkg/torn"
)

// fetchFunc adapts a function to the UserFetcher interface.
type fetchFunc func(ctx context.Context, userID int64) torn.TargetRecord

func (f fetchFunc) FetchUser(ctx context.Context, userID int64) torn.TargetRecord {
	return f(ctx, userID)
}

// collector gathers callback results for assertions.
type collector struct {
	mu      sync.Mutex
	records []torn.TargetRecord
	done    chan struct{}
}

func newCollector() *collector {
	return &collector{done: make(chan struct{})}
}

func (c *collector) onResult(rec torn.TargetRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *collector) onDone() {
	close(c.done)
}

func (c *collector) wait(t *testing.T) []torn.TargetRecord {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch completion")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]torn.TargetRecord(nil), c.records...)
}

func okFetcher() fetchFunc {
	return func(ctx context.Context, userID int64) torn.TargetRecord {
		return torn.TargetRecord{ID: userID, Name: fmt.Sprintf("user-%d", userID), OK: true}
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		api         UserFetcher
		concurrency int
		wantErr     bool
	}{
		{"nil fetcher", nil, 4, true},
		{"zero concurrency defaults", okFetcher(), 0, false},
		{"negative concurrency", okFetcher(), -1, true},
		{"over limit", okFetcher(), 21, true},
		{"at limit", okFetcher(), 20, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.api, Config{Concurrency: tt.concurrency})
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRun_OneResultPerIDAndOneDone(t *testing.T) {
	f, err := New(okFetcher(), Config{Concurrency: 4})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	c := newCollector()
	if err := f.Run(ids, c.onResult, c.onDone); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	records := c.wait(t)
	if len(records) != len(ids) {
		t.Fatalf("got %d results, want %d", len(records), len(ids))
	}

	seen := map[int64]int{}
	for _, rec := range records {
		seen[rec.ID]++
	}
	for _, id := range ids {
		if seen[id] != 1 {
			t.Errorf("id %d delivered %d times, want exactly once", id, seen[id])
		}
	}
}

func TestRun_EmptyIDsFiresDoneImmediately(t *testing.T) {
	f, _ := New(okFetcher(), DefaultConfig())

	c := newCollector()
	if err := f.Run(nil, c.onResult, c.onDone); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	select {
	case <-c.done:
	default:
		t.Error("done callback did not fire synchronously for empty input")
	}
	if f.Running() {
		t.Error("Running() = true after empty batch")
	}
}

func TestRun_RefusesOverlap(t *testing.T) {
	release := make(chan struct{})
	f, _ := New(fetchFunc(func(ctx context.Context, userID int64) torn.TargetRecord {
		<-release
		return torn.TargetRecord{ID: userID}
	}), Config{Concurrency: 1})

	c := newCollector()
	if err := f.Run([]int64{1}, c.onResult, c.onDone); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if err := f.Run([]int64{2}, nil, nil); err != ErrBatchActive {
		t.Errorf("second Run() error = %v, want ErrBatchActive", err)
	}
	if !f.Running() {
		t.Error("Running() = false during active batch")
	}

	close(release)
	c.wait(t)

	// A finished batch frees the slot for the next run. Stop waits for the
	// drained run to release it.
	if !f.Stop(time.Second) {
		t.Fatal("Stop() = false waiting for completed batch to release")
	}
	c2 := newCollector()
	if err := f.Run([]int64{3}, c2.onResult, c2.onDone); err != nil {
		t.Errorf("Run() after completion error = %v", err)
	}
	c2.wait(t)
}

func TestRun_DoneCallbackBlocksNextRun(t *testing.T) {
	f, _ := New(okFetcher(), Config{Concurrency: 1})

	entered := make(chan struct{})
	release := make(chan struct{})
	if err := f.Run([]int64{1}, nil, func() {
		close(entered)
		<-release
	}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	<-entered
	if err := f.Run([]int64{2}, nil, nil); err != ErrBatchActive {
		t.Errorf("Run() during completion callback error = %v, want ErrBatchActive", err)
	}

	close(release)
	if !f.Stop(time.Second) {
		t.Fatal("Stop() = false waiting for completed batch to release")
	}
	c := newCollector()
	if err := f.Run([]int64{3}, c.onResult, c.onDone); err != nil {
		t.Errorf("Run() after completion callback returned error = %v", err)
	}
	c.wait(t)
}

func TestRun_EmptyIDsRefusedWhileActive(t *testing.T) {
	release := make(chan struct{})
	f, _ := New(fetchFunc(func(ctx context.Context, userID int64) torn.TargetRecord {
		<-release
		return torn.TargetRecord{ID: userID}
	}), Config{Concurrency: 1})

	c := newCollector()
	if err := f.Run([]int64{1}, c.onResult, c.onDone); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	err := f.Run(nil, nil, func() {
		t.Error("done callback fired for a refused empty run")
	})
	if err != ErrBatchActive {
		t.Errorf("empty Run() during active batch error = %v, want ErrBatchActive", err)
	}

	close(release)
	c.wait(t)
}

func TestRun_FailuresDoNotAbortBatch(t *testing.T) {
	f, _ := New(fetchFunc(func(ctx context.Context, userID int64) torn.TargetRecord {
		if userID%2 == 0 {
			return torn.TargetRecord{ID: userID, Error: "User not found"}
		}
		return torn.TargetRecord{ID: userID, OK: true}
	}), Config{Concurrency: 3})

	c := newCollector()
	if err := f.Run([]int64{1, 2, 3, 4, 5, 6}, c.onResult, c.onDone); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	records := c.wait(t)
	if len(records) != 6 {
		t.Fatalf("got %d results, want 6 (failures must not stop the batch)", len(records))
	}

	failures := 0
	for _, rec := range records {
		if rec.Error != "" {
			failures++
		}
	}
	if failures != 3 {
		t.Errorf("got %d failed records, want 3", failures)
	}
}

func TestRun_PanickingFetchYieldsErrorRecord(t *testing.T) {
	f, _ := New(fetchFunc(func(ctx context.Context, userID int64) torn.TargetRecord {
		if userID == 2 {
			panic("boom")
		}
		return torn.TargetRecord{ID: userID, OK: true}
	}), Config{Concurrency: 2})

	c := newCollector()
	if err := f.Run([]int64{1, 2, 3}, c.onResult, c.onDone); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	records := c.wait(t)
	if len(records) != 3 {
		t.Fatalf("got %d results, want 3", len(records))
	}
	for _, rec := range records {
		if rec.ID == 2 && rec.Error == "" {
			t.Error("panicking fetch produced a clean record, want error record")
		}
	}
}

func TestStop_WakesBlockedWorkers(t *testing.T) {
	f, _ := New(fetchFunc(func(ctx context.Context, userID int64) torn.TargetRecord {
		select {
		case <-ctx.Done():
			return torn.TargetRecord{ID: userID, Error: "Cancelled"}
		case <-time.After(30 * time.Second):
			return torn.TargetRecord{ID: userID, OK: true}
		}
	}), Config{Concurrency: 2})

	c := newCollector()
	if err := f.Run([]int64{1, 2, 3, 4}, c.onResult, c.onDone); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Let workers park inside their fetch before stopping.
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	if !f.Stop(2 * time.Second) {
		t.Fatal("Stop() = false, want batch drained within timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %s, want prompt cancellation wake-up", elapsed)
	}

	records := c.wait(t)
	if len(records) != 4 {
		t.Errorf("got %d results, want 4 (cancelled ids still get callbacks)", len(records))
	}
	if f.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestStop_NoBatchRunning(t *testing.T) {
	f, _ := New(okFetcher(), DefaultConfig())
	if !f.Stop(time.Second) {
		t.Error("Stop() = false with no batch running, want true")
	}
}
