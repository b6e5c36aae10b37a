package service

import (
	"context"

	"github.com/tagsentry/tagsentry/internal/dto"
	"github.com/tagsentry/tagsentry/internal/engine"
)

// Classifier is the decision engine surface the ingest service drives.
type Classifier interface {
	Classify(ctx context.Context, item engine.Item) engine.Outcome
}

// IngestServicer is the service surface consumed by the HTTP handler.
type IngestServicer interface {
	ProcessBatch(ctx context.Context, req *dto.IngestBatchRequest, sourceIP string) (*dto.IngestBatchResponse, error)
	RecentEvents(ctx context.Context, limit int) ([]dto.EventRecord, error)
	Ping(ctx context.Context) error
}
