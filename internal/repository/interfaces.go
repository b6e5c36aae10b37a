package repository

import (
	"context"
	"time"

	"github.com/tagsentry/tagsentry/internal/domain"
)

// KeyLastOK is the most recent ok classification for one (reader, tag)
// key, used to seed the engine's dedup state after a restart.
type KeyLastOK struct {
	ReaderID   string
	Tag        string
	ReceivedAt time.Time
}

// EventRepository is the append-only classified-event log.
type EventRepository interface {
	// Insert persists one classified event and assigns its immutable
	// ServerID. Rows are never mutated after insert.
	Insert(ctx context.Context, ev *domain.ClassifiedEvent) error

	// ListRecent returns up to limit events, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.ClassifiedEvent, error)

	// LastOKByKey returns the latest ok time per (reader, tag) among
	// events received within window of now.
	LastOKByKey(ctx context.Context, window time.Duration) ([]KeyLastOK, error)

	// EnforceRetention deletes oldest rows first once the row count
	// exceeds the configured cap; returns how many were deleted.
	EnforceRetention(ctx context.Context) (int64, error)

	// InitSchema creates tables and indexes if they do not exist.
	InitSchema(ctx context.Context) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store.
	Close() error
}
