package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"creator-paywall/internal/config"
	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/adapter"
	"creator-paywall/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*StripeGateway)(nil)

// StripeGateway implements adapter.PaymentGateway with PaymentIntents for
// purchases and Connect transfers for payouts.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	currency      string
	log           *zerolog.Logger
}

// NewStripeGateway builds a client on the default backends when backends is
// nil. Tests point it at a local server instead.
func NewStripeGateway(cfg config.StripeConfig, backends *stripe.Backends, logger *zerolog.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("stripe webhook secret empty")
	}
	currency := cfg.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &StripeGateway{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
		log:           logger,
	}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, metadata map[string]string) (_ *model.Intent, err error) {
	defer g.observe("create_intent", time.Now(), &err)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentRef string) (_ *model.Intent, err error) {
	defer g.observe("retrieve_intent", time.Now(), &err)

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(intentRef, params)
	if err != nil {
		return nil, classify(err)
	}
	return toIntent(pi), nil
}

// CreateTransfer sends idempotencyKey as the Idempotency-Key header, so a
// retried request returns the original transfer instead of paying twice.
func (g *StripeGateway) CreateTransfer(ctx context.Context, amount int64, destination, idempotencyKey string) (_ *model.Transfer, err error) {
	defer g.observe("create_transfer", time.Now(), &err)

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(g.currency),
		Destination: stripe.String(destination),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
		params.TransferGroup = stripe.String(idempotencyKey)
	}
	tr, err := g.api.Transfers.New(params)
	if err != nil {
		return nil, classify(err)
	}
	out := &model.Transfer{Ref: tr.ID, Amount: tr.Amount, Destination: destination, Status: "created"}
	if tr.Reversed {
		out.Status = "reversed"
	}
	return out, nil
}

func (g *StripeGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) (*model.GatewayEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		g.log.Warn().Err(err).Msg("stripe webhook rejected")
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	out := &model.GatewayEvent{ID: ev.ID, Kind: model.GatewayEventKind(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}
	// The signature already checked out, so a decode failure here is not the
	// sender's fault and redelivery would fail the same way.
	switch out.Kind {
	case model.EventIntentSucceeded, model.EventIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %s %s: payment intent payload: %v", domain.ErrMalformedEvent, ev.Type, ev.ID, err)
		}
		out.IntentRef = pi.ID
		out.Metadata = pi.Metadata
	case model.EventTransferReversed:
		var tr stripe.Transfer
		if err := json.Unmarshal(ev.Data.Raw, &tr); err != nil {
			return nil, fmt.Errorf("%w: %s %s: transfer payload: %v", domain.ErrMalformedEvent, ev.Type, ev.ID, err)
		}
		out.TransferRef = tr.ID
	}
	return out, nil
}

func (g *StripeGateway) observe(op string, start time.Time, err *error) {
	metrics.ObserveGatewayCall(g.Name(), op, time.Since(start), *err)
}

func toIntent(pi *stripe.PaymentIntent) *model.Intent {
	return &model.Intent{
		Ref:          pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       intentStatus(pi.Status),
		Metadata:     pi.Metadata,
	}
}

func intentStatus(s stripe.PaymentIntentStatus) model.IntentStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return model.IntentStatusSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return model.IntentStatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		return model.IntentStatusCanceled
	default:
		return model.IntentStatusRequiresPayment
	}
}

// classify marks transport failures, rate limits and provider 5xx as
// retryable. Card declines and invalid requests are terminal.
func classify(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return domain.Retryable(fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err))
	}
	switch {
	case se.HTTPStatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, se.Msg)
	case se.HTTPStatusCode == http.StatusTooManyRequests,
		se.HTTPStatusCode >= 500,
		se.Type == stripe.ErrorTypeAPI:
		return domain.Retryable(fmt.Errorf("%w: %s", domain.ErrGatewayUnavailable, se.Msg))
	default:
		return fmt.Errorf("stripe %s: %s", se.Type, se.Msg)
	}
}
