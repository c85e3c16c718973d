package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/money"
	"creator-paywall/internal/domain/ports/adapter"
	"creator-paywall/internal/domain/ports/repository"
	"creator-paywall/internal/infra/logging"
	"creator-paywall/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ PurchaseUseCase = (*purchaseUC)(nil)

// PurchaseUseCase turns a successful provider payment into exactly one
// completed purchase.
type PurchaseUseCase interface {
	// RequestIntent opens a payment intent for the content's full price.
	// Nothing is written to the ledger.
	RequestIntent(ctx context.Context, buyerID, contentID string) (*IntentResult, error)
	// ConfirmPurchase settles a succeeded intent. Repeated or concurrent
	// calls for the same payment return the same purchase.
	ConfirmPurchase(ctx context.Context, buyerID, contentID, intentRef string) (*model.Purchase, error)
	// HasAccess reports whether userID may view contentID.
	HasAccess(ctx context.Context, userID, contentID string) (bool, error)
}

// IntentResult is handed back to the client that will complete the payment.
type IntentResult struct {
	IntentRef    string
	ClientSecret string
	Currency     string
	Split        money.Split
}

// settleAttempts bounds re-reads after the content price moved under us.
const settleAttempts = 3

type purchaseUC struct {
	ledger         repository.LedgerStore
	catalog        repository.ContentReader
	gateway        adapter.PaymentGateway
	intents        repository.IntentLog
	events         adapter.EventPublisher
	policy         money.Policy
	gatewayTimeout time.Duration
	log            *zerolog.Logger
	now            func() time.Time
}

// NewPurchaseUseCase wires the purchase workflow. catalog may be a cached
// reader; settlement always re-reads content through ledger. intents and
// events are optional.
func NewPurchaseUseCase(
	ledger repository.LedgerStore,
	catalog repository.ContentReader,
	gateway adapter.PaymentGateway,
	intents repository.IntentLog,
	events adapter.EventPublisher,
	policy money.Policy,
	gatewayTimeout time.Duration,
	logger *zerolog.Logger,
) *purchaseUC {
	if catalog == nil {
		catalog = ledger
	}
	return &purchaseUC{
		ledger:         ledger,
		catalog:        catalog,
		gateway:        gateway,
		intents:        intents,
		events:         events,
		policy:         policy,
		gatewayTimeout: gatewayTimeout,
		log:            logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (u *purchaseUC) RequestIntent(ctx context.Context, buyerID, contentID string) (*IntentResult, error) {
	defer logging.TraceDuration(u.log, "PurchaseUC.RequestIntent")()
	log := logging.With(ctx, u.log)

	if buyerID == "" || contentID == "" {
		return nil, fmt.Errorf("%w: buyer and content are required", domain.ErrInvalidArgument)
	}

	c, err := u.purchasableContent(ctx, u.catalog, contentID)
	if err != nil {
		metrics.IncIntent("rejected")
		return nil, err
	}
	if c.CreatorID == buyerID {
		metrics.IncIntent("rejected")
		return nil, domain.ErrSelfPurchase
	}
	if _, err := u.ledger.GetAccount(ctx, buyerID); err != nil {
		metrics.IncIntent("rejected")
		return nil, storeErr(err, domain.ErrUserNotFound)
	}
	if _, err := u.ledger.FindCompletedPurchase(ctx, buyerID, contentID); err == nil {
		metrics.IncIntent("rejected")
		return nil, domain.ErrAlreadyPurchased
	} else if !errors.Is(err, domain.ErrNotFound) {
		metrics.IncIntent("error")
		return nil, domain.Retryable(fmt.Errorf("check existing purchase: %w", err))
	}

	split, err := u.policy.Split(c.Price)
	if err != nil {
		metrics.IncIntent("rejected")
		return nil, err
	}

	meta := model.IntentMetadata{
		ContentID:       c.ID,
		BuyerID:         buyerID,
		CreatorID:       c.CreatorID,
		PlatformFee:     split.PlatformFee,
		CreatorEarnings: split.CreatorEarnings,
	}

	gctx, cancel := boundedCtx(ctx, u.gatewayTimeout)
	defer cancel()
	intent, err := u.gateway.CreateIntent(gctx, split.Price, meta.ToMap())
	if err != nil {
		metrics.IncIntent("error")
		log.Warn().Err(err).Str("content_id", contentID).Msg("create intent failed")
		return nil, gatewayErr("create intent", err)
	}

	if u.intents != nil {
		pi := repository.PendingIntent{IntentRef: intent.Ref, BuyerID: buyerID, ContentID: contentID, CreatedAt: u.now()}
		if err := u.intents.Track(ctx, pi); err != nil {
			log.Warn().Err(err).Str("intent_ref", intent.Ref).Msg("track pending intent failed")
		}
	}

	metrics.IncIntent("created")
	log.Info().
		Str("intent_ref", intent.Ref).
		Str("content_id", contentID).
		Int64("amount", split.Price).
		Int64("platform_fee", split.PlatformFee).
		Msg("payment intent created")

	return &IntentResult{
		IntentRef:    intent.Ref,
		ClientSecret: intent.ClientSecret,
		Currency:     intent.Currency,
		Split:        split,
	}, nil
}

func (u *purchaseUC) ConfirmPurchase(ctx context.Context, buyerID, contentID, intentRef string) (*model.Purchase, error) {
	defer logging.TraceDuration(u.log, "PurchaseUC.ConfirmPurchase")()
	ctx = logging.WithIntentRef(ctx, intentRef)
	log := logging.With(ctx, u.log)
	source := logging.Source(ctx)

	if buyerID == "" || contentID == "" || intentRef == "" {
		return nil, fmt.Errorf("%w: buyer, content and intent are required", domain.ErrInvalidArgument)
	}

	gctx, cancel := boundedCtx(ctx, u.gatewayTimeout)
	intent, err := u.gateway.RetrieveIntent(gctx, intentRef)
	cancel()
	if err != nil {
		metrics.IncPurchaseConfirm("error", source)
		return nil, gatewayErr("retrieve intent", err)
	}
	if !intent.Succeeded() {
		metrics.IncPurchaseConfirm("not_succeeded", source)
		log.Info().Str("status", string(intent.Status)).Msg("confirm on unsettled intent")
		return nil, fmt.Errorf("%w: intent status %s", domain.ErrPaymentNotSucceeded, intent.Status)
	}
	meta, err := model.ParseIntentMetadata(intent.Metadata)
	if err != nil || meta.BuyerID != buyerID || meta.ContentID != contentID {
		metrics.IncPurchaseConfirm("rejected", source)
		log.Warn().Str("buyer_id", buyerID).Str("content_id", contentID).Msg("intent metadata does not match request")
		return nil, domain.ErrIntentMismatch
	}

	for attempt := 1; attempt <= settleAttempts; attempt++ {
		c, err := u.purchasableContent(ctx, u.ledger, contentID)
		if err != nil {
			metrics.IncPurchaseConfirm("rejected", source)
			return nil, err
		}

		existing, err := u.ledger.FindCompletedPurchase(ctx, buyerID, contentID)
		if err == nil {
			metrics.IncPurchaseConfirm("duplicate", source)
			u.forget(ctx, intentRef)
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			metrics.IncPurchaseConfirm("error", source)
			return nil, domain.Retryable(fmt.Errorf("%w: %w", domain.ErrSettlement, err))
		}

		if c.CreatorID == buyerID {
			metrics.IncPurchaseConfirm("rejected", source)
			return nil, domain.ErrSelfPurchase
		}

		split, err := u.policy.Split(c.Price)
		if err != nil {
			metrics.IncPurchaseConfirm("rejected", source)
			return nil, err
		}
		if split.Price != intent.Amount {
			// Price at confirmation wins; the difference is left to support.
			log.Warn().
				Int64("intent_amount", intent.Amount).
				Int64("current_price", split.Price).
				Msg("content price changed since intent creation")
		}

		p := model.NewCompletedPurchase(buyerID, c, split, intentRef, u.now())
		start := time.Now()
		s, err := u.ledger.SettlePurchase(ctx, p)
		metrics.ObserveSettle(time.Since(start))
		switch {
		case errors.Is(err, domain.ErrPriceChanged):
			metrics.IncSettleRetry()
			log.Debug().Int("attempt", attempt).Msg("price moved during settle, retrying")
			continue
		case errors.Is(err, domain.ErrContentNotFound),
			errors.Is(err, domain.ErrUserNotFound),
			errors.Is(err, domain.ErrSelfPurchase):
			metrics.IncPurchaseConfirm("rejected", source)
			return nil, err
		case err != nil:
			metrics.IncPurchaseConfirm("error", source)
			log.Error().Err(err).Msg("settle purchase failed")
			return nil, domain.Retryable(fmt.Errorf("%w: %w", domain.ErrSettlement, err))
		}

		u.forget(ctx, intentRef)
		if !s.Created {
			metrics.IncPurchaseConfirm("duplicate", source)
			return s.Purchase, nil
		}

		metrics.IncPurchaseConfirm("settled", source)
		metrics.AddSettledPurchase(s.Purchase.Amount, s.Purchase.PlatformFee)
		log.Info().
			Str("purchase_id", s.Purchase.ID).
			Str("content_id", contentID).
			Int64("amount", s.Purchase.Amount).
			Int64("creator_earnings", s.Purchase.CreatorEarnings).
			Msg("purchase settled")
		u.publish(ctx, purchaseCompletedEvent(s.Purchase))
		return s.Purchase, nil
	}

	metrics.IncPurchaseConfirm("error", source)
	return nil, domain.Retryable(fmt.Errorf("%w: content price kept changing", domain.ErrSettlement))
}

func (u *purchaseUC) HasAccess(ctx context.Context, userID, contentID string) (bool, error) {
	c, err := u.catalog.GetContent(ctx, contentID)
	if err != nil {
		return false, storeErr(err, domain.ErrContentNotFound)
	}
	if c.CreatorID == userID {
		return true, nil
	}
	_, err = u.ledger.FindCompletedPurchase(ctx, userID, contentID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, domain.Retryable(err)
	}
}

func (u *purchaseUC) purchasableContent(ctx context.Context, r repository.ContentReader, contentID string) (*model.Content, error) {
	c, err := r.GetContent(ctx, contentID)
	if err != nil {
		return nil, storeErr(err, domain.ErrContentNotFound)
	}
	if !c.Purchasable() {
		return nil, domain.ErrContentNotFound
	}
	return c, nil
}

// boundedCtx applies the caller-configured gateway timeout; zero disables it.
func boundedCtx(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (u *purchaseUC) forget(ctx context.Context, intentRef string) {
	if u.intents == nil {
		return
	}
	if err := u.intents.Forget(ctx, intentRef); err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("forget pending intent failed")
	}
}

func (u *purchaseUC) publish(ctx context.Context, ev model.LedgerEvent) {
	if u.events == nil {
		return
	}
	if err := u.events.Publish(ctx, ev); err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Str("event", string(ev.Type)).Msg("publish ledger event failed")
	}
}

func purchaseCompletedEvent(p *model.Purchase) model.LedgerEvent {
	return model.NewLedgerEvent(model.LedgerEventPurchaseCompleted, p.ID, model.PurchaseCompletedPayload{
		PurchaseID:      p.ID,
		BuyerID:         p.BuyerID,
		ContentID:       p.ContentID,
		CreatorID:       p.CreatorID,
		Amount:          p.Amount,
		PlatformFee:     p.PlatformFee,
		CreatorEarnings: p.CreatorEarnings,
		PaymentRef:      p.PaymentRef,
	}, p.PurchasedAt)
}

// storeErr maps a not-found from the store onto the caller-facing notFound
// error and marks anything else as transient.
func storeErr(err, notFound error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return notFound
	case errors.Is(err, notFound):
		return err
	default:
		return domain.Retryable(err)
	}
}

// gatewayErr marks timeouts and provider-side transient failures retryable.
// Anything else (declined, invalid request) is returned as is.
func gatewayErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, domain.ErrGatewayUnavailable) || domain.IsRetryable(err) {
		return domain.Retryable(fmt.Errorf("%s: %w: %w", op, domain.ErrGatewayUnavailable, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
