// Package store persists tracker state: the last-known snapshot of target
// records and the ignore list. Two backends implement the same narrow
// interface, SQLite for local single-file persistence and Redis for shared
// deployments, so the rest of the pipeline never knows which one it talks to.
package store

import (
	"context"

	"github.com/skillerious/torn-target-tracker/pkg/torn"
)

// Store is the persistence contract consumed by the tracker.
type Store interface {
	// SaveSnapshot replaces the persisted snapshot with records, preserving
	// their order.
	SaveSnapshot(ctx context.Context, records []torn.TargetRecord) error

	// LoadSnapshot returns the persisted snapshot in saved order. A store
	// with no snapshot returns an empty slice, not an error.
	LoadSnapshot(ctx context.Context) ([]torn.TargetRecord, error)

	// SaveIgnored replaces the persisted ignore list.
	SaveIgnored(ctx context.Context, ids []int64) error

	// LoadIgnored returns the persisted ignore list, empty when unset.
	LoadIgnored(ctx context.Context) ([]int64, error)

	// Close releases backend resources.
	Close() error
}

// Payload identity written into Redis payloads and targets files.
const (
	appName     = "TornTargetTracker"
	fileVersion = "1.0"
)
