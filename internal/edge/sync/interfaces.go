package sync

import (
	"context"

	"github.com/tagsentry/tagsentry/internal/domain"
)

// PendingSource is the slice of the durable queue the syncer consumes.
type PendingSource interface {
	NextBatch(ctx context.Context, n int) ([]domain.PendingRecord, error)
	MarkSent(ctx context.Context, ids []int64) error
	UnsentCount(ctx context.Context) (int64, error)
}

// Deliverer pushes one ordered batch to the central server.
type Deliverer interface {
	Deliver(ctx context.Context, batch []domain.PendingRecord) error
}
