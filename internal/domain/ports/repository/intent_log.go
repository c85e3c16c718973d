package repository

import (
	"context"
	"time"
)

// PendingIntent is a created but not yet settled payment intent.
type PendingIntent struct {
	IntentRef string
	BuyerID   string
	ContentID string
	CreatedAt time.Time
}

// IntentLog tracks intents between creation and settlement. It is advisory:
// losing it never loses money, it only delays reconciliation.
type IntentLog interface {
	Track(ctx context.Context, pi PendingIntent) error
	// ListStale returns up to limit intents due before olderThan, earliest
	// first. An intent is due at its creation time until it is deferred.
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]PendingIntent, error)
	// Defer makes an intent due again at next without changing CreatedAt.
	Defer(ctx context.Context, intentRef string, next time.Time) error
	Forget(ctx context.Context, intentRef string) error
}
