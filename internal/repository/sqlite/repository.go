package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tagsentry/tagsentry/internal/domain"
	"github.com/tagsentry/tagsentry/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

// Repository implements repository.EventRepository on SQLite. One file
// on the central box holds the full forensic log; retention trims it to
// a row-count cap, oldest first, leaving timestamps untouched.
type Repository struct {
	db        *sql.DB
	maxEvents int64
	log       *zap.Logger
}

// Open creates or opens the event database at path. maxEvents caps the
// retained row count; zero or negative disables retention.
func Open(path string, maxEvents int64, log *zap.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &domain.StorageError{Op: "open event db", Err: err}
	}

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

	return &Repository{db: db, maxEvents: maxEvents, log: log}, nil
}

// InitSchema creates the events table and indexes if missing.
func (r *Repository) InitSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return &domain.StorageError{Op: "apply event schema", Err: err}
	}
	r.log.Info("Event store schema initialized")
	return nil
}

// Insert persists one classified event and fills in its ServerID.
func (r *Repository) Insert(ctx context.Context, ev *domain.ClassifiedEvent) error {
	fired := 0
	if ev.Fired {
		fired = 1
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO events (reader_id, tag, ts_device, received_at, source_ip, fired, reason, edge_event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ReaderID,
		ev.Tag,
		ev.DeviceTimestamp.UTC().Format(time.RFC3339Nano),
		ev.ReceivedAt.UTC().Format(time.RFC3339Nano),
		ev.SourceIP,
		fired,
		string(ev.Reason),
		ev.EdgeEventID,
	)
	if err != nil {
		return &domain.StorageError{Op: "insert event", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &domain.StorageError{Op: "insert event id", Err: err}
	}
	ev.ServerID = id
	return nil
}

// ListRecent returns up to limit events, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]domain.ClassifiedEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, reader_id, tag, ts_device, received_at, source_ip, fired, reason, edge_event_id
		FROM events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, &domain.StorageError{Op: "list events", Err: err}
	}
	defer rows.Close()

	events := make([]domain.ClassifiedEvent, 0, limit)
	for rows.Next() {
		var ev domain.ClassifiedEvent
		var tsDevice, receivedAt, reason string
		var fired int
		var edgeID sql.NullInt64
		if err := rows.Scan(&ev.ServerID, &ev.ReaderID, &ev.Tag, &tsDevice, &receivedAt,
			&ev.SourceIP, &fired, &reason, &edgeID); err != nil {
			return nil, &domain.StorageError{Op: "scan event row", Err: err}
		}
		if ev.DeviceTimestamp, err = parseStoredTime(tsDevice); err != nil {
			return nil, err
		}
		if ev.ReceivedAt, err = parseStoredTime(receivedAt); err != nil {
			return nil, err
		}
		ev.Fired = fired != 0
		ev.Reason = domain.Reason(reason)
		ev.EdgeEventID = edgeID.Int64
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "iterate event rows", Err: err}
	}
	return events, nil
}

// LastOKByKey returns the latest ok time per (reader, tag) received
// within window of now.
func (r *Repository) LastOKByKey(ctx context.Context, window time.Duration) ([]repository.KeyLastOK, error) {
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339Nano)
	rows, err := r.db.QueryContext(ctx, `
		SELECT reader_id, tag, MAX(received_at)
		FROM events
		WHERE reason = ? AND received_at >= ?
		GROUP BY reader_id, tag`,
		string(domain.ReasonOK), cutoff)
	if err != nil {
		return nil, &domain.StorageError{Op: "query last ok", Err: err}
	}
	defer rows.Close()

	var keys []repository.KeyLastOK
	for rows.Next() {
		var k repository.KeyLastOK
		var receivedAt string
		if err := rows.Scan(&k.ReaderID, &k.Tag, &receivedAt); err != nil {
			return nil, &domain.StorageError{Op: "scan last ok row", Err: err}
		}
		if k.ReceivedAt, err = parseStoredTime(receivedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "iterate last ok rows", Err: err}
	}
	return keys, nil
}

// EnforceRetention trims the table back under the row cap by deleting
// the lowest ids first.
func (r *Repository) EnforceRetention(ctx context.Context) (int64, error) {
	if r.maxEvents <= 0 {
		return 0, nil
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		return 0, &domain.StorageError{Op: "count events", Err: err}
	}
	if count <= r.maxEvents {
		return 0, nil
	}

	toDelete := count - r.maxEvents
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM events WHERE id IN (SELECT id FROM events ORDER BY id ASC LIMIT ?)",
		toDelete)
	if err != nil {
		return 0, &domain.StorageError{Op: "enforce retention", Err: err}
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		r.log.Info("Retention deleted oldest events",
			zap.Int64("deleted", deleted),
			zap.Int64("cap", r.maxEvents))
	}
	return deleted, nil
}

// Ping checks the store connection.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return &domain.StorageError{Op: "ping", Err: err}
	}
	return nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func parseStoredTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, &domain.StorageError{Op: "parse stored time", Err: err}
	}
	return t, nil
}
