package adapter

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/tagsentry/tagsentry/internal/domain"
)

// Appender is the slice of the durable queue the pump writes to.
type Appender interface {
	Append(ctx context.Context, ev domain.CanonicalEvent) (int64, error)
}

// Pump moves events from a vendor adapter into the durable queue. A
// failed durable write is backpressure: the read is not consumed, the
// pump retries the same event until the queue accepts it. Only after
// the append succeeds does the pump move to the next read.
type Pump struct {
	source   Source
	queue    Appender
	onAppend func()
	log      *zap.Logger
}

// NewPump wires a source into the queue. onAppend, if non-nil, runs
// after every successful append (the edge agent uses it to nudge the
// syncer); it must not block.
func NewPump(source Source, queue Appender, onAppend func(), log *zap.Logger) *Pump {
	return &Pump{source: source, queue: queue, onAppend: onAppend, log: log}
}

// Run consumes the source until it is exhausted or ctx is canceled.
func (p *Pump) Run(ctx context.Context) error {
	for {
		ev, err := p.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.log.Info("Adapter source exhausted")
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.log.Warn("Adapter read failed, continuing", zap.Error(err))
			continue
		}

		for {
			id, err := p.queue.Append(ctx, ev)
			if err == nil {
				p.log.Debug("Event queued",
					zap.Int64("id", id),
					zap.String("tag", ev.Tag))
				if p.onAppend != nil {
					p.onAppend()
				}
				break
			}

			p.log.Error("Durable append failed, holding event", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}
