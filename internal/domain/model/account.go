package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"creator-paywall/internal/domain"
)

// Account carries the money fields of a user. Any account may buy and sell.
//
// Balance is what the creator can still withdraw; TotalEarnings and
// TotalSpent only ever grow. Balance <= TotalEarnings at all times.
type Account struct {
	ID              string
	Username        string
	PayoutAccountID string // default payout destination at the provider
	Balance         int64
	TotalEarnings   int64
	TotalSpent      int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewAccount(id, username string) (*Account, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(username) == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Account{
		ID:        id,
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (a *Account) IsZero() bool { return a == nil || a.ID == "" }

// Consistent checks the balance invariant.
func (a *Account) Consistent() bool {
	return a.Balance >= 0 && a.Balance <= a.TotalEarnings && a.TotalSpent >= 0
}
