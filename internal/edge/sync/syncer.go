package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tagsentry/tagsentry/internal/domain"
)

// SyncerConfig tunes the flush policy.
type SyncerConfig struct {
	// BatchSize is both the max events per delivery and the unsent-count
	// threshold that triggers an early flush.
	BatchSize int
	// Interval is the maximum time between flush attempts.
	Interval time.Duration
	// RetryBaseDelay and RetryMaxDelay bound the capped exponential
	// backoff applied after a transport failure.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Syncer drains the durable queue toward the central server. It runs a
// single loop, so there is never more than one in-flight batch per edge
// node and batches arrive in id order. On transport failure the same
// batch is retried with capped exponential backoff; the cursor never
// advances past unacknowledged records. A validation rejection advances
// the cursor past the offending batch exactly once so a poison batch
// cannot wedge delivery of later data.
type Syncer struct {
	source  PendingSource
	client  Deliverer
	cfg     SyncerConfig
	log     *zap.Logger
	notify  chan struct{}
	attempt int
}

// NewSyncer creates a syncer over the given queue and delivery client.
func NewSyncer(source PendingSource, client Deliverer, cfg SyncerConfig, log *zap.Logger) *Syncer {
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	return &Syncer{
		source: source,
		client: client,
		cfg:    cfg,
		log:    log,
		notify: make(chan struct{}, 1),
	}
}

// Notify signals that new events were appended; the syncer flushes
// early once the unsent count reaches the batch-size threshold.
// Non-blocking, safe from the adapter goroutine.
func (s *Syncer) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run flushes until ctx is canceled.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Syncer shutting down")
			return
		case <-ticker.C:
			s.flush(ctx)
		case <-s.notify:
			count, err := s.source.UnsentCount(ctx)
			if err != nil {
				s.log.Error("Failed to read unsent count", zap.Error(err))
				continue
			}
			if count >= int64(s.cfg.BatchSize) {
				s.flush(ctx)
				ticker.Reset(s.cfg.Interval)
			}
		}
	}
}

// flush drains everything currently unsent, one batch at a time.
func (s *Syncer) flush(ctx context.Context) {
	for {
		batch, err := s.source.NextBatch(ctx, s.cfg.BatchSize)
		if err != nil {
			s.log.Error("Failed to load next batch", zap.Error(err))
			return
		}
		if len(batch) == 0 {
			return
		}

		if !s.deliverWithRetry(ctx, batch) {
			return
		}

		if len(batch) < s.cfg.BatchSize {
			return
		}
	}
}

// deliverWithRetry pushes one batch until it is acknowledged, dropped
// as malformed, or the context ends. Returns true when the cursor
// advanced past the batch.
func (s *Syncer) deliverWithRetry(ctx context.Context, batch []domain.PendingRecord) bool {
	ids := make([]int64, len(batch))
	for i, rec := range batch {
		ids[i] = rec.ID
	}

	for {
		err := s.client.Deliver(ctx, batch)
		if err == nil {
			s.attempt = 0
			if err := s.source.MarkSent(ctx, ids); err != nil {
				// The server accepted the batch; delivering it again is
				// harmless because central classification is idempotent.
				s.log.Error("Failed to mark batch sent", zap.Error(err))
				return false
			}
			return true
		}

		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			s.attempt = 0
			s.log.Error("Server rejected batch, dropping it",
				zap.Error(err),
				zap.Int("events", len(batch)),
				zap.Int64("first_id", ids[0]),
				zap.Int64("last_id", ids[len(ids)-1]))
			if err := s.source.MarkSent(ctx, ids); err != nil {
				s.log.Error("Failed to advance past rejected batch", zap.Error(err))
			}
			return false
		}

		delay := s.nextDelay()
		s.log.Warn("Transport failure, retrying same batch",
			zap.Error(err),
			zap.Duration("backoff", delay),
			zap.Int("events", len(batch)))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
}

// nextDelay returns the capped exponential backoff for the next retry.
func (s *Syncer) nextDelay() time.Duration {
	delay := s.cfg.RetryBaseDelay << s.attempt
	if delay >= s.cfg.RetryMaxDelay || delay <= 0 {
		return s.cfg.RetryMaxDelay
	}
	s.attempt++
	return delay
}
