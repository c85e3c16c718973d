package usecase

import (
	"context"
	"errors"
	"fmt"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/adapter"
	"creator-paywall/internal/domain/ports/repository"
	"creator-paywall/internal/infra/logging"
	"creator-paywall/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookUseCase consumes provider notifications. A nil error means the
// delivery may be acknowledged; only transient failures are returned so the
// provider redelivers.
type WebhookUseCase interface {
	HandleEvent(ctx context.Context, payload []byte, signatureHeader string) error
}

type webhookUC struct {
	gateway     adapter.PaymentGateway
	purchases   PurchaseUseCase
	withdrawals WithdrawalUseCase
	intents     repository.IntentLog
	log         *zerolog.Logger
}

func NewWebhookUseCase(gateway adapter.PaymentGateway, purchases PurchaseUseCase, withdrawals WithdrawalUseCase, intents repository.IntentLog, logger *zerolog.Logger) *webhookUC {
	return &webhookUC{
		gateway:     gateway,
		purchases:   purchases,
		withdrawals: withdrawals,
		intents:     intents,
		log:         logger,
	}
}

func (u *webhookUC) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) error {
	defer logging.TraceDuration(u.log, "WebhookUC.HandleEvent")()
	ctx = logging.WithSource(ctx, "webhook")

	ev, err := u.gateway.VerifyWebhookSignature(payload, signatureHeader)
	if errors.Is(err, domain.ErrMalformedEvent) {
		metrics.IncWebhook("", "malformed")
		logging.With(ctx, u.log).Error().Err(err).Int("bytes", len(payload)).Msg("acknowledging authentic webhook with unreadable data")
		return nil
	}
	if err != nil {
		metrics.IncWebhook("", "rejected")
		logging.With(ctx, u.log).Warn().Err(err).Int("bytes", len(payload)).Msg("webhook signature rejected")
		if errors.Is(err, domain.ErrInvalidSignature) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	log := logging.With(ctx, u.log).With().Str("event_id", ev.ID).Str("kind", string(ev.Kind)).Logger()

	switch ev.Kind {
	case model.EventIntentSucceeded:
		err = u.onIntentSucceeded(ctx, &log, ev)
	case model.EventIntentFailed:
		u.forget(ctx, &log, ev.IntentRef)
		log.Info().Str("intent_ref", ev.IntentRef).Msg("payment failed at provider")
	case model.EventTransferReversed:
		err = u.onTransferReversed(ctx, &log, ev)
	default:
		metrics.IncWebhook(string(ev.Kind), "ignored")
		log.Debug().Msg("unhandled webhook event kind")
		return nil
	}

	if err != nil {
		metrics.IncWebhook(string(ev.Kind), "failed")
		return err
	}
	metrics.IncWebhook(string(ev.Kind), "processed")
	return nil
}

func (u *webhookUC) onIntentSucceeded(ctx context.Context, log *zerolog.Logger, ev *model.GatewayEvent) error {
	meta, err := model.ParseIntentMetadata(ev.Metadata)
	if err != nil {
		log.Warn().Err(err).Str("intent_ref", ev.IntentRef).Msg("succeeded intent without purchase metadata")
		return nil
	}
	p, err := u.purchases.ConfirmPurchase(ctx, meta.BuyerID, meta.ContentID, ev.IntentRef)
	if err != nil {
		if domain.IsRetryable(err) {
			log.Error().Err(err).Str("intent_ref", ev.IntentRef).Msg("confirm from webhook failed, provider will redeliver")
			return err
		}
		log.Warn().Err(err).Str("intent_ref", ev.IntentRef).Msg("confirm from webhook refused")
		return nil
	}
	log.Info().Str("purchase_id", p.ID).Str("intent_ref", ev.IntentRef).Msg("webhook confirmation converged")
	return nil
}

func (u *webhookUC) onTransferReversed(ctx context.Context, log *zerolog.Logger, ev *model.GatewayEvent) error {
	if u.withdrawals == nil {
		return nil
	}
	_, err := u.withdrawals.ReverseByTransfer(ctx, ev.TransferRef)
	switch {
	case err == nil:
		return nil
	case domain.IsRetryable(err):
		log.Error().Err(err).Str("transfer_ref", ev.TransferRef).Msg("reverse withdrawal failed, provider will redeliver")
		return err
	default:
		log.Warn().Err(err).Str("transfer_ref", ev.TransferRef).Msg("reversal for unknown transfer ignored")
		return nil
	}
}

func (u *webhookUC) forget(ctx context.Context, log *zerolog.Logger, intentRef string) {
	if u.intents == nil || intentRef == "" {
		return
	}
	if err := u.intents.Forget(ctx, intentRef); err != nil {
		log.Warn().Err(err).Msg("forget failed intent")
	}
}
