package events

import (
	"context"

	"github.com/rs/zerolog"

	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/adapter"
	"creator-paywall/internal/infra/metrics"
)

var _ adapter.EventPublisher = (*LogPublisher)(nil)

// LogPublisher stands in for the broker when none is configured.
type LogPublisher struct {
	log *zerolog.Logger
}

func NewLogPublisher(logger *zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev model.LedgerEvent) error {
	p.log.Info().
		Str("event_id", ev.ID).
		Str("event_type", string(ev.Type)).
		Str("aggregate_id", ev.AggregateID).
		Interface("payload", ev.Payload).
		Msg("ledger event")
	metrics.IncEventPublished(string(ev.Type), "logged")
	return nil
}
