package adapter

import (
	"context"

	"creator-paywall/internal/domain/model"
)

// PaymentGateway is the hex port for the payment provider. Every call is
// remote and may be slow; callers bound them with ctx deadlines.
type PaymentGateway interface {
	Name() string

	// CreateIntent opens a payment attempt for amount minor units tagged
	// with metadata that is echoed back by RetrieveIntent and webhooks.
	CreateIntent(ctx context.Context, amount int64, metadata map[string]string) (*model.Intent, error)
	RetrieveIntent(ctx context.Context, intentRef string) (*model.Intent, error)
	// CreateTransfer pays amount out to destination. Repeating a call with
	// the same idempotencyKey returns the first transfer.
	CreateTransfer(ctx context.Context, amount int64, destination, idempotencyKey string) (*model.Transfer, error)
	// VerifyWebhookSignature authenticates payload and decodes it. It returns
	// domain.ErrInvalidSignature for anything it cannot authenticate.
	VerifyWebhookSignature(payload []byte, signatureHeader string) (*model.GatewayEvent, error)
}
