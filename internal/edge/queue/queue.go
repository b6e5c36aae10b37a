package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tagsentry/tagsentry/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Queue is the edge-side durable store-and-forward buffer. Events are
// appended before the adapter read is acknowledged, delivered in id
// order, and marked sent only after the central side acks the batch.
//
// SQLite with WAL keeps appends durable across power loss; AUTOINCREMENT
// guarantees ids are strictly increasing and never reused, which is what
// makes the id usable as the per-node local sequence id.
type Queue struct {
	db       *sql.DB
	capacity int64
	log      *zap.Logger
}

// Open creates or opens the queue database at path. Capacity bounds the
// total stored rows (sent or unsent); the oldest rows are evicted first
// once the bound is exceeded.
func Open(path string, capacity int64, log *zap.Logger) (*Queue, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &domain.StorageError{Op: "open queue db", Err: err}
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, &domain.StorageError{Op: "apply pragma", Err: err}
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, &domain.StorageError{Op: "apply queue schema", Err: err}
	}

	return &Queue{db: db, capacity: capacity, log: log}, nil
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Append durably persists one event and returns its assigned id. The
// write completes before the call returns; a failure propagates as
// StorageError so the adapter can treat the read as unconsumed.
func (q *Queue) Append(ctx context.Context, ev domain.CanonicalEvent) (int64, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &domain.StorageError{Op: "begin append", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO pending_events(ts, tag, sent) VALUES (?, ?, 0)",
		ev.DeviceTimestamp.UTC().Format(time.RFC3339Nano), ev.Tag)
	if err != nil {
		return 0, &domain.StorageError{Op: "append event", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &domain.StorageError{Op: "append event id", Err: err}
	}

	if err := q.evictOldest(ctx, tx); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, &domain.StorageError{Op: "commit append", Err: err}
	}
	return id, nil
}

// evictOldest trims the table back to capacity, oldest rows first, even
// if they are unsent. This is the only point in the pipeline where data
// loss is accepted, and it is bounded.
func (q *Queue) evictOldest(ctx context.Context, tx *sql.Tx) error {
	if q.capacity <= 0 {
		return nil
	}

	var count int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_events").Scan(&count); err != nil {
		return &domain.StorageError{Op: "count events", Err: err}
	}
	if count <= q.capacity {
		return nil
	}

	toDelete := count - q.capacity
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM pending_events WHERE id IN (SELECT id FROM pending_events ORDER BY id ASC LIMIT ?)",
		toDelete); err != nil {
		return &domain.StorageError{Op: "evict oldest", Err: err}
	}
	q.log.Info("Evicted oldest pending events",
		zap.Int64("deleted", toDelete),
		zap.Int64("capacity", q.capacity))
	return nil
}

// NextBatch returns up to n unsent records ordered by id ascending. It
// is read-only; records stay unsent until the central ack arrives.
func (q *Queue) NextBatch(ctx context.Context, n int) ([]domain.PendingRecord, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, ts, tag FROM pending_events WHERE sent = 0 ORDER BY id ASC LIMIT ?", n)
	if err != nil {
		return nil, &domain.StorageError{Op: "select unsent", Err: err}
	}
	defer rows.Close()

	var batch []domain.PendingRecord
	for rows.Next() {
		var rec domain.PendingRecord
		var ts string
		if err := rows.Scan(&rec.ID, &ts, &rec.Tag); err != nil {
			return nil, &domain.StorageError{Op: "scan unsent row", Err: err}
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, &domain.StorageError{Op: "parse stored ts", Err: err}
		}
		rec.TS = parsed
		batch = append(batch, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "iterate unsent rows", Err: err}
	}
	return batch, nil
}

// MarkSent flips the given ids to sent. Called only after the central
// side acknowledged that exact batch. Marking an already-sent or
// already-evicted id is a no-op.
func (q *Queue) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf("UPDATE pending_events SET sent = 1 WHERE id IN (%s)", placeholders)
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return &domain.StorageError{Op: "mark sent", Err: err}
	}
	return nil
}

// UnsentCount returns the number of records still awaiting delivery.
func (q *Queue) UnsentCount(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pending_events WHERE sent = 0").Scan(&count)
	if err != nil {
		return 0, &domain.StorageError{Op: "count unsent", Err: err}
	}
	return count, nil
}

// Count returns the total number of stored records, sent or unsent.
func (q *Queue) Count(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_events").Scan(&count)
	if err != nil {
		return 0, &domain.StorageError{Op: "count events", Err: err}
	}
	return count, nil
}
