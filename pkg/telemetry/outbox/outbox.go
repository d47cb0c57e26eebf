/*
Package outbox persists telemetry batches in a local SQLite log so they
survive delivery failures and restarts. Transport appends batches; Relay
drains them to the ingestion endpoint with retry, pacing and scheduled purge.

The outbox is opt-in. Without it a failed batch is simply lost.
*/
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
	"github.com/aixgo-dev/travelintel/pkg/telemetry"
)

// Batch statuses.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("outbox is closed")

// Entry is one stored batch.
type Entry struct {
	ID        int64
	Actions   []telemetry.UserAction
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// Stats summarizes the outbox contents.
type Stats struct {
	Pending       int
	Delivered     int
	Failed        int
	OldestPending time.Time
}

// Outbox is a SQLite-backed batch log. It is safe for concurrent use.
type Outbox struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu sync.RWMutex
	db *sql.DB
}

// Option configures an Outbox.
type Option func(*Outbox)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Outbox) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Outbox) {
		if now != nil {
			o.now = now
		}
	}
}

// Open opens or creates the database at path and applies migrations.
func Open(path string, opts ...Option) (*Outbox, error) {
	o := &Outbox{
		path:   path,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = metrics.ForChannel(o.logger, metrics.ChannelOutbox)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create outbox directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox: %w", err)
	}
	// one connection serializes writers and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping outbox: %w", err)
	}
	o.db = db

	if err := o.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return o, nil
}

// Path returns the database file path.
func (o *Outbox) Path() string {
	return o.path
}

// Append stores actions as one pending batch and returns its id.
func (o *Outbox) Append(ctx context.Context, actions []telemetry.UserAction) (int64, error) {
	payload, err := json.Marshal(actions)
	if err != nil {
		return 0, fmt.Errorf("failed to encode batch: %w", err)
	}

	db, err := o.conn()
	if err != nil {
		return 0, err
	}
	defer o.mu.RUnlock()

	res, err := db.ExecContext(ctx,
		`INSERT INTO batches (payload, action_count, status, created_at) VALUES (?, ?, ?, ?)`,
		string(payload), len(actions), StatusPending, o.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append batch: %w", err)
	}
	return res.LastInsertId()
}

// Pending returns up to limit pending batches, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	db, err := o.conn()
	if err != nil {
		return nil, err
	}
	defer o.mu.RUnlock()

	rows, err := db.QueryContext(ctx,
		`SELECT id, payload, attempts, COALESCE(last_error, ''), created_at
		 FROM batches WHERE status = ? ORDER BY id LIMIT ?`,
		StatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		entries []Entry
		corrupt = map[int64]error{}
	)
	for rows.Next() {
		var (
			e       Entry
			payload string
			created int64
		)
		if err := rows.Scan(&e.ID, &payload, &e.Attempts, &e.LastError, &created); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Actions); err != nil {
			corrupt[e.ID] = err
			continue
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// the single connection is busy until rows is closed
	_ = rows.Close()

	for id, cause := range corrupt {
		o.logger.Error("discarding undecodable batch", "id", id, "error", cause)
		if err := o.markFailed(ctx, db, id, fmt.Errorf("undecodable payload: %w", cause), true); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// MarkDelivered flags batches as delivered.
func (o *Outbox) MarkDelivered(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	db, err := o.conn()
	if err != nil {
		return err
	}
	defer o.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusDelivered, o.now().UnixNano())
	for _, id := range ids {
		args = append(args, id)
	}

	_, err = db.ExecContext(ctx,
		`UPDATE batches SET status = ?, delivered_at = ? WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to mark batches delivered: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. A permanent failure moves the batch
// out of the pending set for good.
func (o *Outbox) MarkFailed(ctx context.Context, id int64, cause error, permanent bool) error {
	db, err := o.conn()
	if err != nil {
		return err
	}
	defer o.mu.RUnlock()

	return o.markFailed(ctx, db, id, cause, permanent)
}

// markFailed expects the caller to hold the read lock.
func (o *Outbox) markFailed(ctx context.Context, db *sql.DB, id int64, cause error, permanent bool) error {
	status := StatusPending
	if permanent {
		status = StatusFailed
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	_, err := db.ExecContext(ctx,
		`UPDATE batches SET status = ?, attempts = attempts + 1, last_error = ? WHERE id = ?`,
		status, msg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark batch %d failed: %w", id, err)
	}
	return nil
}

// Stats counts batches by status.
func (o *Outbox) Stats(ctx context.Context) (Stats, error) {
	db, err := o.conn()
	if err != nil {
		return Stats{}, err
	}
	defer o.mu.RUnlock()

	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*), MIN(created_at) FROM batches GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats Stats
	for rows.Next() {
		var (
			status string
			count  int
			oldest int64
		)
		if err := rows.Scan(&status, &count, &oldest); err != nil {
			return Stats{}, fmt.Errorf("failed to scan stats: %w", err)
		}
		switch status {
		case StatusPending:
			stats.Pending = count
			stats.OldestPending = time.Unix(0, oldest).UTC()
		case StatusDelivered:
			stats.Delivered = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// Purge deletes delivered and failed batches older than olderThan.
func (o *Outbox) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := o.now().Add(-olderThan).UnixNano()

	db, err := o.conn()
	if err != nil {
		return 0, err
	}
	defer o.mu.RUnlock()

	res, err := db.ExecContext(ctx,
		`DELETE FROM batches
		 WHERE (status = ? AND delivered_at < ?) OR (status = ? AND created_at < ?)`,
		StatusDelivered, cutoff, StatusFailed, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge batches: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database connection.
func (o *Outbox) Ping(ctx context.Context) error {
	db, err := o.conn()
	if err != nil {
		return err
	}
	defer o.mu.RUnlock()
	return db.PingContext(ctx)
}

// Close closes the database. It is idempotent.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.db == nil {
		return nil
	}
	err := o.db.Close()
	o.db = nil
	if err != nil {
		return fmt.Errorf("failed to close outbox: %w", err)
	}
	return nil
}

// conn returns the open db with the read lock held. The caller releases it.
func (o *Outbox) conn() (*sql.DB, error) {
	o.mu.RLock()
	if o.db == nil {
		o.mu.RUnlock()
		return nil, ErrClosed
	}
	return o.db, nil
}
