package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/ports/repository"
	"creator-paywall/internal/infra/logging"
	"creator-paywall/internal/infra/metrics"
	"creator-paywall/internal/usecase"
)

// IntentReconciler periodically retries confirmation of intents that were
// created but never settled. It covers a lost webhook and a client that
// paid but never came back to confirm.
type IntentReconciler struct {
	uc           usecase.PurchaseUseCase
	intents      repository.IntentLog
	interval     time.Duration // how often to scan
	staleAfter   time.Duration // how old an intent must be to retry
	abandonAfter time.Duration // unpaid intents older than this are dropped
	batch        int
	log          *zerolog.Logger
	now          func() time.Time
}

func NewIntentReconciler(uc usecase.PurchaseUseCase, intents repository.IntentLog, interval, staleAfter time.Duration, batch int, logger *zerolog.Logger) *IntentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	if batch <= 0 {
		batch = 50
	}
	compLog := logger.With().Str("component", "IntentReconciler").Logger()
	return &IntentReconciler{
		uc:           uc,
		intents:      intents,
		interval:     interval,
		staleAfter:   staleAfter,
		abandonAfter: 24 * time.Hour,
		batch:        batch,
		log:          &compLog,
		now:          time.Now,
	}
}

func (w *IntentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting intent reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping intent reconciler")
			return ctx.Err()
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one reconciliation pass and returns how many intents settled.
func (w *IntentReconciler) Tick(ctx context.Context) int {
	now := w.now()
	stale, err := w.intents.ListStale(ctx, now.Add(-w.staleAfter), w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale intents failed")
		return 0
	}
	settled := 0
	for _, pi := range stale {
		if ctx.Err() != nil {
			return settled
		}
		cctx := logging.WithSource(ctx, "reconciler")
		_, err := w.uc.ConfirmPurchase(cctx, pi.BuyerID, pi.ContentID, pi.IntentRef)
		log := w.log.With().Str("intent_ref", pi.IntentRef).Logger()
		switch {
		case err == nil:
			settled++
			metrics.IncReconciled("settled")
			log.Info().Msg("reconciled intent")
		case errors.Is(err, domain.ErrPaymentNotSucceeded):
			if now.Sub(pi.CreatedAt) > w.abandonAfter {
				w.forget(ctx, pi.IntentRef)
				metrics.IncReconciled("abandoned")
				log.Info().Msg("dropping unpaid intent")
				continue
			}
			metrics.IncReconciled("pending")
			w.postpone(ctx, pi.IntentRef, now)
		case domain.IsRetryable(err):
			metrics.IncReconciled("error")
			log.Warn().Err(err).Msg("reconcile attempt failed, will retry")
			w.postpone(ctx, pi.IntentRef, now)
		default:
			// Terminal: mismatch, missing content or user, unknown intent.
			w.forget(ctx, pi.IntentRef)
			metrics.IncReconciled("rejected")
			log.Warn().Err(err).Msg("intent cannot be settled")
		}
	}
	return settled
}

// postpone pushes an intent that is still open to the back of the scan order.
// It comes up again once staleAfter has passed, so intents due after it get
// their turn in the batch meanwhile.
func (w *IntentReconciler) postpone(ctx context.Context, ref string, now time.Time) {
	if err := w.intents.Defer(ctx, ref, now); err != nil {
		w.log.Warn().Err(err).Str("intent_ref", ref).Msg("defer intent failed")
	}
}

func (w *IntentReconciler) forget(ctx context.Context, ref string) {
	if err := w.intents.Forget(ctx, ref); err != nil {
		w.log.Warn().Err(err).Str("intent_ref", ref).Msg("forget intent failed")
	}
}
