package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/repository"
)

var (
	_ repository.LedgerStore   = (*Ledger)(nil)
	_ repository.CatalogWriter = (*Ledger)(nil)
)

// Ledger is the Postgres LedgerStore. Every mutation runs in one
// transaction; the unique indexes on purchases are the final arbiter of
// exactly-once settlement.
type Ledger struct {
	tm          *TxManager
	contents    *contentRepo
	accounts    *accountRepo
	purchases   *purchaseRepo
	withdrawals *withdrawalRepo
	log         *zerolog.Logger
}

func NewLedger(pool *pgxpool.Pool, logger *zerolog.Logger) *Ledger {
	return &Ledger{
		tm:          NewTxManager(pool),
		contents:    newContentRepo(pool),
		accounts:    newAccountRepo(pool),
		purchases:   newPurchaseRepo(pool),
		withdrawals: newWithdrawalRepo(pool),
		log:         logger,
	}
}

var readCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

func (l *Ledger) GetContent(ctx context.Context, contentID string) (*model.Content, error) {
	return l.contents.GetByID(ctx, repository.NoTX, contentID)
}

func (l *Ledger) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	return l.accounts.GetByID(ctx, repository.NoTX, userID)
}

func (l *Ledger) FindCompletedPurchase(ctx context.Context, buyerID, contentID string) (*model.Purchase, error) {
	return l.purchases.FindCompleted(ctx, repository.NoTX, buyerID, contentID)
}

func (l *Ledger) FindPurchaseByPaymentRef(ctx context.Context, paymentRef string) (*model.Purchase, error) {
	return l.purchases.FindByPaymentRef(ctx, repository.NoTX, paymentRef)
}

func (l *Ledger) SettlePurchase(ctx context.Context, p *model.Purchase) (*model.Settlement, error) {
	if !p.Balanced() || p.Amount <= 0 {
		return nil, fmt.Errorf("%w: unbalanced purchase split", domain.ErrInvalidAmount)
	}
	var out *model.Settlement
	err := l.tm.WithTx(ctx, readCommitted, func(ctx context.Context, tx repository.Tx) error {
		// Content lock serializes every settle of this item.
		c, err := l.contents.GetByID(ctx, tx, p.ContentID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrContentNotFound
		}
		if err != nil {
			return err
		}
		if !c.IsActive {
			return domain.ErrContentNotFound
		}

		if existing, err := l.existingSettlement(ctx, tx, p); err != nil || existing != nil {
			out = existing
			return err
		}

		if c.Price != p.Amount || c.CreatorID != p.CreatorID {
			return domain.ErrPriceChanged
		}

		if err := l.lockParties(ctx, tx, p.BuyerID, p.CreatorID); err != nil {
			return err
		}

		inserted, err := l.purchases.InsertIfAbsent(ctx, tx, p)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := l.existingSettlement(ctx, tx, p)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("%w: insert skipped but no winner found", domain.ErrSettlement)
			}
			out = existing
			return nil
		}

		if err := l.contents.IncrementSales(ctx, tx, p.ContentID, p.Amount); err != nil {
			return err
		}
		for _, id := range orderedIDs(p.BuyerID, p.CreatorID) {
			if id == p.BuyerID {
				if err := l.accounts.AddSpent(ctx, tx, id, p.Amount); err != nil {
					return err
				}
			}
			if id == p.CreatorID {
				if err := l.accounts.CreditEarnings(ctx, tx, id, p.CreatorEarnings); err != nil {
					return err
				}
			}
		}
		out = &model.Settlement{Purchase: p, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Created {
		l.log.Debug().Str("purchase_id", p.ID).Str("payment_ref", p.PaymentRef).Msg("purchase row inserted")
	}
	return out, nil
}

// existingSettlement returns nil, nil when neither the pair nor the payment
// reference has been settled.
func (l *Ledger) existingSettlement(ctx context.Context, tx repository.Tx, p *model.Purchase) (*model.Settlement, error) {
	prev, err := l.purchases.FindCompleted(ctx, tx, p.BuyerID, p.ContentID)
	if err == nil {
		return &model.Settlement{Purchase: prev, Created: false}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	prev, err = l.purchases.FindByPaymentRef(ctx, tx, p.PaymentRef)
	if err == nil {
		return &model.Settlement{Purchase: prev, Created: false}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return nil, nil
}

// lockParties takes the account row locks in id order so two settlements
// touching the same pair of accounts in opposite roles cannot deadlock.
func (l *Ledger) lockParties(ctx context.Context, tx repository.Tx, buyerID, creatorID string) error {
	for _, id := range orderedIDs(buyerID, creatorID) {
		if _, err := l.accounts.GetByID(ctx, tx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}
	}
	return nil
}

func orderedIDs(ids ...string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Withdraw keeps the account row locked across the transfer call. If the
// commit fails after the provider accepted the transfer, the payout exists
// without a ledger row; that case is logged at error level for reconciliation.
// A withdrawal whose id is already stored is returned as is.
func (l *Ledger) Withdraw(ctx context.Context, w *model.Withdrawal, transfer repository.TransferFunc) (*model.Withdrawal, error) {
	if w.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	var (
		transferred string
		replayed    *model.Withdrawal
	)
	err := l.tm.WithTx(ctx, readCommitted, func(ctx context.Context, tx repository.Tx) error {
		acct, err := l.accounts.GetByID(ctx, tx, w.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		prior, err := l.withdrawals.FindByID(ctx, tx, w.ID)
		switch {
		case err == nil:
			if !prior.SameRequest(w) {
				return domain.ErrIdempotencyReused
			}
			replayed = prior
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		if acct.Balance < w.Amount {
			return domain.ErrInsufficientBalance
		}

		ref, err := transfer(ctx, w)
		if err != nil {
			return err
		}
		transferred = ref
		w.TransferRef = ref

		if err := l.accounts.Debit(ctx, tx, w.UserID, w.Amount); err != nil {
			return err
		}
		return l.withdrawals.Insert(ctx, tx, w)
	})
	if err != nil {
		if transferred != "" {
			l.log.Error().Err(err).
				Str("withdrawal_id", w.ID).
				Str("transfer_ref", transferred).
				Int64("amount", w.Amount).
				Msg("transfer accepted but ledger commit failed")
		}
		return nil, err
	}
	if replayed != nil {
		return replayed, nil
	}
	return w, nil
}

func (l *Ledger) ReverseWithdrawal(ctx context.Context, transferRef string) (*model.Withdrawal, bool, error) {
	var (
		out     *model.Withdrawal
		applied bool
	)
	err := l.tm.WithTx(ctx, readCommitted, func(ctx context.Context, tx repository.Tx) error {
		w, err := l.withdrawals.FindByTransferRef(ctx, tx, transferRef)
		if err != nil {
			return err
		}
		out = w
		ok, err := l.withdrawals.MarkReversed(ctx, tx, w.ID)
		if err != nil || !ok {
			return err
		}
		if err := l.accounts.Credit(ctx, tx, w.UserID, w.Amount); err != nil {
			return err
		}
		applied = true
		w.Status = model.WithdrawalStatusReversed
		w.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, applied, nil
}

func (l *Ledger) ListPurchasesByBuyer(ctx context.Context, buyerID string, page repository.Page) ([]*model.Purchase, error) {
	return l.purchases.ListByBuyer(ctx, repository.NoTX, buyerID, page.Normalize())
}

func (l *Ledger) ListSalesByCreator(ctx context.Context, creatorID string, page repository.Page) ([]*model.Purchase, error) {
	return l.purchases.ListByCreator(ctx, repository.NoTX, creatorID, page.Normalize())
}

func (l *Ledger) CreatorEarnings(ctx context.Context, creatorID string, r repository.DateRange) (model.EarningsSummary, error) {
	return l.purchases.EarningsSummary(ctx, repository.NoTX, creatorID, r.From, r.To)
}

func (l *Ledger) ListWithdrawals(ctx context.Context, userID string, page repository.Page) ([]*model.Withdrawal, error) {
	return l.withdrawals.ListByUser(ctx, repository.NoTX, userID, page.Normalize())
}

func (l *Ledger) SaveAccount(ctx context.Context, a *model.Account) error {
	return l.accounts.Save(ctx, repository.NoTX, a)
}

func (l *Ledger) SaveContent(ctx context.Context, c *model.Content) error {
	return l.contents.Save(ctx, repository.NoTX, c)
}
