package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"

	"github.com/skillerious/torn-target-tracker/pkg/torn"
)

// SQLite persists tracker state in a local SQLite database file.
type SQLite struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and prepares
// the schema.
func OpenSQLite(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &SQLite{
		db:     db,
		path:   path,
		logger: log.With().Str("component", "store-sqlite").Logger(),
	}

	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLite) createSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS targets_cache (
		user_id INTEGER PRIMARY KEY,
		position INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		level INTEGER NOT NULL DEFAULT 0,
		status_state TEXT NOT NULL DEFAULT '',
		status_desc TEXT NOT NULL DEFAULT '',
		status_until INTEGER NOT NULL DEFAULT 0,
		last_action_status TEXT NOT NULL DEFAULT '',
		last_action_relative TEXT NOT NULL DEFAULT '',
		faction TEXT NOT NULL DEFAULT '',
		ok INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_targets_cache_position ON targets_cache(position);

	CREATE TABLE IF NOT EXISTS ignored (
		user_id INTEGER PRIMARY KEY
	);
	`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// SaveSnapshot replaces the persisted snapshot atomically.
func (s *SQLite) SaveSnapshot(ctx context.Context, records []torn.TargetRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM targets_cache"); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO targets_cache (
			user_id, position, name, level, status_state, status_desc,
			status_until, last_action_status, last_action_relative,
			faction, ok, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		ok := 0
		if rec.OK {
			ok = 1
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, i, rec.Name, rec.Level, rec.StatusState, rec.StatusDescription,
			rec.StatusUntil, rec.LastActionStatus, rec.LastActionRelative,
			rec.Faction, ok, rec.Error,
		); err != nil {
			return fmt.Errorf("insert record %d: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	s.logger.Debug().Int("records", len(records)).Msg("Snapshot saved")
	return nil
}

// LoadSnapshot returns the persisted snapshot in saved order.
func (s *SQLite) LoadSnapshot(ctx context.Context) ([]torn.TargetRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, name, level, status_state, status_desc, status_until,
			last_action_status, last_action_relative, faction, ok, error
		FROM targets_cache ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var records []torn.TargetRecord
	for rows.Next() {
		var rec torn.TargetRecord
		var ok int
		if err := rows.Scan(
			&rec.ID, &rec.Name, &rec.Level, &rec.StatusState, &rec.StatusDescription,
			&rec.StatusUntil, &rec.LastActionStatus, &rec.LastActionRelative,
			&rec.Faction, &ok, &rec.Error,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.OK = ok != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}
	if records == nil {
		records = []torn.TargetRecord{}
	}
	return records, nil
}

// SaveIgnored replaces the persisted ignore list.
func (s *SQLite) SaveIgnored(ctx context.Context, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ignore tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM ignored"); err != nil {
		return fmt.Errorf("clear ignore list: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO ignored (user_id) VALUES (?)", id); err != nil {
			return fmt.Errorf("insert ignored id %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// LoadIgnored returns the persisted ignore list.
func (s *SQLite) LoadIgnored(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM ignored ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("query ignore list: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ignored id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close checkpoints the WAL and closes the database.
func (s *SQLite) Close() error {
	_, _ = s.db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
