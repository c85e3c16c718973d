package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type LedgerEventType string

const (
	LedgerEventPurchaseCompleted   LedgerEventType = "purchase.completed"
	LedgerEventWithdrawalRequested LedgerEventType = "withdrawal.requested"
	LedgerEventWithdrawalReversed  LedgerEventType = "withdrawal.reversed"
)

// LedgerEvent is published after a ledger change has committed. Consumers
// must tolerate duplicates; ID is stable for a given change.
type LedgerEvent struct {
	ID          string          `json:"id"`
	Type        LedgerEventType `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     any             `json:"payload"`
}

func NewLedgerEvent(t LedgerEventType, aggregateID string, payload any, at time.Time) LedgerEvent {
	return LedgerEvent{
		ID:          ulid.Make().String(),
		Type:        t,
		AggregateID: aggregateID,
		OccurredAt:  at.UTC(),
		Payload:     payload,
	}
}

// PurchaseCompletedPayload is the body of purchase.completed.
type PurchaseCompletedPayload struct {
	PurchaseID      string `json:"purchase_id"`
	BuyerID         string `json:"buyer_id"`
	ContentID       string `json:"content_id"`
	CreatorID       string `json:"creator_id"`
	Amount          int64  `json:"amount"`
	PlatformFee     int64  `json:"platform_fee"`
	CreatorEarnings int64  `json:"creator_earnings"`
	PaymentRef      string `json:"payment_ref"`
}

// WithdrawalPayload is the body of withdrawal.* events.
type WithdrawalPayload struct {
	WithdrawalID string `json:"withdrawal_id"`
	UserID       string `json:"user_id"`
	Amount       int64  `json:"amount"`
	TransferRef  string `json:"transfer_ref"`
}
