package model

import "time"

type WithdrawalStatus string

const (
	WithdrawalStatusRequested WithdrawalStatus = "requested" // transfer accepted by the provider
	WithdrawalStatusReversed  WithdrawalStatus = "reversed"  // provider reversed it; balance re-credited
)

// Withdrawal records a debit of a creator balance and the provider transfer
// that carries it. It is only persisted together with a successful transfer
// request.
type Withdrawal struct {
	ID          string
	UserID      string
	Amount      int64
	Destination string // sealed at rest
	TransferRef string
	Status      WithdrawalStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewWithdrawal(userID string, amount int64, sealedDestination string, now time.Time) *Withdrawal {
	return &Withdrawal{
		ID:          NewWithdrawalID(),
		UserID:      userID,
		Amount:      amount,
		Destination: sealedDestination,
		Status:      WithdrawalStatusRequested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SameRequest reports whether o asks for the same payout as w. Destinations
// are sealed with a fresh nonce and cannot be compared.
func (w *Withdrawal) SameRequest(o *Withdrawal) bool {
	return w.ID == o.ID && w.UserID == o.UserID && w.Amount == o.Amount
}
