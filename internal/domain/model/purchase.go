package model

import (
	"time"

	"creator-paywall/internal/domain/money"
)

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

// Purchase is the ledger entry granting BuyerID permanent access to ContentID.
// Amount == PlatformFee + CreatorEarnings.
type Purchase struct {
	ID              string
	BuyerID         string
	ContentID       string
	CreatorID       string // copied from the content at confirmation
	Amount          int64
	PlatformFee     int64
	CreatorEarnings int64
	PaymentRef      string // gateway intent id
	Status          PurchaseStatus
	PurchasedAt     time.Time
	UpdatedAt       time.Time
}

// NewCompletedPurchase builds the record written at confirmation time from
// the content as it is now.
func NewCompletedPurchase(buyerID string, c *Content, split money.Split, paymentRef string, now time.Time) *Purchase {
	return &Purchase{
		ID:              NewPurchaseID(),
		BuyerID:         buyerID,
		ContentID:       c.ID,
		CreatorID:       c.CreatorID,
		Amount:          split.Price,
		PlatformFee:     split.PlatformFee,
		CreatorEarnings: split.CreatorEarnings,
		PaymentRef:      paymentRef,
		Status:          PurchaseStatusCompleted,
		PurchasedAt:     now,
		UpdatedAt:       now,
	}
}

func (p *Purchase) Balanced() bool {
	return p.Amount == p.PlatformFee+p.CreatorEarnings
}

// Settlement is what the ledger reports back from a settle attempt. Created is
// false when another request had already settled the same (buyer, content)
// pair and Purchase is that earlier record.
type Settlement struct {
	Purchase *Purchase
	Created  bool
}

// EarningsSummary aggregates completed sales of one creator.
type EarningsSummary struct {
	TotalEarnings int64
	TotalSales    int64
	AveragePrice  int64
}
