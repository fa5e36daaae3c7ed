package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/eventkit/pkg/eventkit/event"
)

// ErrSinkClosed is returned by operations on a closed SQLiteSink.
var ErrSinkClosed = fmt.Errorf("analytics: sqlite sink is closed")

// SQLiteSink persists analytics batches to SQLite, one row per event.
// It is suitable for single-process production use.
type SQLiteSink struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// Compile-time interface check.
var _ Sink = (*SQLiteSink)(nil)

// NewSQLiteSink creates a new SQLite analytics sink.
// The path should be a file path (e.g., "./analytics.db") or ":memory:" for testing.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS analytics_events (
			event_id TEXT NOT NULL PRIMARY KEY,
			event_type TEXT NOT NULL,
			company_id TEXT NOT NULL,
			device_id TEXT,
			content_id TEXT,
			occurred_at TEXT NOT NULL,
			flushed_at TEXT NOT NULL,
			payload BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_analytics_events_company
		ON analytics_events(company_id, event_type)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// WriteBatch implements Sink. The batch is written in a single transaction;
// rows with an already-seen event_id are replaced, keeping the write
// idempotent per event.
func (s *SQLiteSink) WriteBatch(ctx context.Context, batch []event.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSinkClosed
	}
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO analytics_events
			(event_id, event_type, company_id, device_id, content_id, occurred_at, flushed_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	flushedAt := time.Now().UTC().Format(time.RFC3339Nano)
	for _, evt := range batch {
		payload, err := event.Encode(evt)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			evt.ID,
			evt.Type.String(),
			evt.CompanyID,
			evt.DeviceID,
			evt.ContentID,
			evt.Timestamp.UTC().Format(time.RFC3339Nano),
			flushedAt,
			payload,
		); err != nil {
			return fmt.Errorf("insert event %s: %w", evt.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Count returns the number of persisted events for a company, across all
// batches. An empty companyID counts every row.
func (s *SQLiteSink) Count(ctx context.Context, companyID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrSinkClosed
	}

	var n int
	var err error
	if companyID == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analytics_events`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM analytics_events WHERE company_id = ?`, companyID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
