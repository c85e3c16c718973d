package repository

import (
	"context"
	"time"

	"creator-paywall/internal/domain/model"
)

// Page bounds a history listing. Zero Limit means the store default.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// DateRange is an optional, inclusive time window.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// TransferFunc requests the external payout for w while the ledger holds the
// debit open. A non-nil error aborts the withdrawal and nothing is persisted.
type TransferFunc func(ctx context.Context, w *model.Withdrawal) (transferRef string, err error)

// ContentReader is the read side of the content catalog.
type ContentReader interface {
	GetContent(ctx context.Context, contentID string) (*model.Content, error)
}

// LedgerStore is the only writer of purchases and account money fields.
// Every mutating method is atomic: either all of its effects are visible to
// other readers or none are.
type LedgerStore interface {
	ContentReader

	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// FindCompletedPurchase returns domain.ErrNotFound when the pair has none.
	FindCompletedPurchase(ctx context.Context, buyerID, contentID string) (*model.Purchase, error)
	FindPurchaseByPaymentRef(ctx context.Context, paymentRef string) (*model.Purchase, error)

	// SettlePurchase writes p as completed and applies the four ledger
	// effects: content counters, buyer spend, creator balance and earnings.
	// When the (buyer, content) pair or the payment reference is already
	// settled it returns the existing record with Created=false and changes
	// nothing. It fails with domain.ErrPriceChanged when the locked content
	// price differs from p.Amount and domain.ErrContentNotFound when the
	// content is gone or inactive.
	SettlePurchase(ctx context.Context, p *model.Purchase) (*model.Settlement, error)

	// Withdraw locks the user's balance, verifies it covers w.Amount, invokes
	// transfer and only then debits and records w, returning w itself. When
	// w.ID is already recorded it returns the stored withdrawal without
	// calling transfer, or domain.ErrIdempotencyReused if the user or amount
	// differ.
	Withdraw(ctx context.Context, w *model.Withdrawal, transfer TransferFunc) (*model.Withdrawal, error)

	// ReverseWithdrawal flips a requested withdrawal to reversed and
	// re-credits the balance. applied is false when it was already reversed.
	ReverseWithdrawal(ctx context.Context, transferRef string) (w *model.Withdrawal, applied bool, err error)

	ListPurchasesByBuyer(ctx context.Context, buyerID string, page Page) ([]*model.Purchase, error)
	ListSalesByCreator(ctx context.Context, creatorID string, page Page) ([]*model.Purchase, error)
	CreatorEarnings(ctx context.Context, creatorID string, r DateRange) (model.EarningsSummary, error)
	ListWithdrawals(ctx context.Context, userID string, page Page) ([]*model.Withdrawal, error)
}

// CatalogWriter seeds accounts and content. The settlement core never calls
// it; registration and catalog editing live elsewhere.
type CatalogWriter interface {
	SaveAccount(ctx context.Context, a *model.Account) error
	SaveContent(ctx context.Context, c *model.Content) error
}
