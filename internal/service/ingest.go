package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tagsentry/tagsentry/internal/domain"
	"github.com/tagsentry/tagsentry/internal/dto"
	"github.com/tagsentry/tagsentry/internal/engine"
	"github.com/tagsentry/tagsentry/internal/repository"
)

// RetryConfig bounds the backoff applied to central store writes.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// IngestService turns accepted batches into classified, persisted
// events: one ClassifiedEvent per item, no exceptions. The actuation
// outcome is fixed before the first store-write attempt, so write
// retries can never re-trigger the relay.
type IngestService struct {
	engine Classifier
	repo   repository.EventRepository
	retry  RetryConfig
	log    *zap.Logger
	now    func() time.Time
}

// NewIngestService creates the ingest service.
func NewIngestService(eng Classifier, repo repository.EventRepository, retry RetryConfig, log *zap.Logger) *IngestService {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 5
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 100 * time.Millisecond
	}
	return &IngestService{
		engine: eng,
		repo:   repo,
		retry:  retry,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ProcessBatch classifies and persists every item of an accepted batch.
// ReceivedAt is stamped once per batch from the central clock; device
// timestamps are kept for audit only. The same batch may be delivered
// more than once: redelivered items fall out as duplicate (or another
// non-firing reason) instead of firing twice.
func (s *IngestService) ProcessBatch(ctx context.Context, req *dto.IngestBatchRequest, sourceIP string) (*dto.IngestBatchResponse, error) {
	receivedAt := s.now()

	resp := &dto.IngestBatchResponse{
		Status:  "ok",
		Results: make([]dto.IngestItemResult, 0, len(req.Events)),
	}

	for _, item := range req.Events {
		tag := canonicalize(item.Tag)

		outcome := s.engine.Classify(ctx, engine.Item{
			ReaderID:        req.ReaderID,
			Tag:             tag,
			DeviceTimestamp: item.TS,
			ReceivedAt:      receivedAt,
			EdgeEventID:     item.ID,
			SourceIP:        sourceIP,
		})

		ev := &domain.ClassifiedEvent{
			ReaderID:        req.ReaderID,
			Tag:             tag,
			DeviceTimestamp: item.TS,
			ReceivedAt:      receivedAt,
			SourceIP:        sourceIP,
			Fired:           outcome.Fired,
			Reason:          outcome.Reason,
			EdgeEventID:     item.ID,
		}

		if err := s.insertWithRetry(ctx, ev); err != nil {
			s.log.Error("Event store write exhausted retries",
				zap.String("reader_id", req.ReaderID),
				zap.String("tag", tag),
				zap.Error(err))
			return nil, err
		}

		resp.Results = append(resp.Results, dto.IngestItemResult{
			ServerID:    ev.ServerID,
			EdgeEventID: item.ID,
			Tag:         tag,
			Fired:       outcome.Fired,
			Reason:      string(outcome.Reason),
		})
	}

	resp.Count = len(resp.Results)

	if _, err := s.repo.EnforceRetention(ctx); err != nil {
		// Retention is best-effort per batch; the next batch retries.
		s.log.Warn("Retention enforcement failed", zap.Error(err))
	}

	return resp, nil
}

// insertWithRetry persists one event, retrying storage failures with
// capped exponential backoff. The classification carried by ev is
// already final; only the write repeats.
func (s *IngestService) insertWithRetry(ctx context.Context, ev *domain.ClassifiedEvent) error {
	var lastErr error
	delay := s.retry.BaseDelay

	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		err := s.repo.Insert(ctx, ev)
		if err == nil {
			return nil
		}

		var sErr *domain.StorageError
		if !errors.As(err, &sErr) {
			return err
		}
		lastErr = err
		s.log.Warn("Event store write failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return lastErr
}

// RecentEvents exposes the classified log to tailers and the dashboard.
func (s *IngestService) RecentEvents(ctx context.Context, limit int) ([]dto.EventRecord, error) {
	events, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}

	records := make([]dto.EventRecord, len(events))
	for i, ev := range events {
		records[i] = dto.EventRecord{
			ID:          ev.ServerID,
			ReaderID:    ev.ReaderID,
			Tag:         ev.Tag,
			TSDevice:    ev.DeviceTimestamp,
			ReceivedAt:  ev.ReceivedAt,
			SourceIP:    ev.SourceIP,
			Fired:       ev.Fired,
			Reason:      string(ev.Reason),
			EdgeEventID: ev.EdgeEventID,
		}
	}
	return records, nil
}

// Ping reports event store health.
func (s *IngestService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// canonicalize normalizes a wire tag. Adapters already emit canonical
// hex; anything else is uppercased verbatim so the read still lands in
// the audit log (where it will classify unknown_tag) instead of being
// dropped.
func canonicalize(raw string) string {
	tag, err := domain.TagFromHex(raw)
	if err != nil {
		return strings.ToUpper(strings.TrimSpace(raw))
	}
	return tag
}
