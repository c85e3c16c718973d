package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/adapter"
	"creator-paywall/internal/infra/metrics"
	"creator-paywall/internal/infra/worker"
)

var _ adapter.EventPublisher = (*AsyncPublisher)(nil)

// AsyncPublisher hands events to the worker pool so a slow broker never
// delays a settled purchase. Events that do not fit in the queue are dropped
// and counted; the ledger rows stay the source of truth.
type AsyncPublisher struct {
	inner   adapter.EventPublisher
	pool    *worker.Pool
	timeout time.Duration
	log     *zerolog.Logger
}

func NewAsyncPublisher(inner adapter.EventPublisher, pool *worker.Pool, timeout time.Duration, logger *zerolog.Logger) *AsyncPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsyncPublisher{inner: inner, pool: pool, timeout: timeout, log: logger}
}

// Publish never blocks and only fails when the event was dropped.
func (p *AsyncPublisher) Publish(ctx context.Context, ev model.LedgerEvent) error {
	err := p.pool.Submit(func(wctx context.Context) error {
		pctx, cancel := context.WithTimeout(wctx, p.timeout)
		defer cancel()
		if err := p.inner.Publish(pctx, ev); err != nil {
			p.log.Warn().Err(err).Str("event_id", ev.ID).Str("event_type", string(ev.Type)).Msg("publish failed")
			return err
		}
		return nil
	})
	if err != nil {
		metrics.IncEventPublished(string(ev.Type), "dropped")
		return err
	}
	return nil
}
