package usecase

import (
	"context"
	"fmt"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/adapter"
	"creator-paywall/internal/domain/ports/repository"
	"creator-paywall/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ HistoryUseCase = (*historyUC)(nil)

// HistoryUseCase serves read-only ledger views to buyers and creators.
type HistoryUseCase interface {
	Purchases(ctx context.Context, buyerID string, page repository.Page) ([]*model.Purchase, error)
	Sales(ctx context.Context, creatorID string, page repository.Page) ([]*model.Purchase, error)
	Earnings(ctx context.Context, creatorID string, r repository.DateRange) (model.EarningsSummary, error)
	Account(ctx context.Context, userID string) (*model.Account, error)
	Withdrawals(ctx context.Context, userID string, page repository.Page) ([]*WithdrawalView, error)
}

// WithdrawalView is a withdrawal with its destination opened and masked.
type WithdrawalView struct {
	*model.Withdrawal
	DestinationMasked string
}

type historyUC struct {
	ledger repository.LedgerStore
	sealer adapter.Sealer
	log    *zerolog.Logger
}

func NewHistoryUseCase(ledger repository.LedgerStore, sealer adapter.Sealer, logger *zerolog.Logger) *historyUC {
	return &historyUC{ledger: ledger, sealer: sealer, log: logger}
}

func (u *historyUC) Purchases(ctx context.Context, buyerID string, page repository.Page) ([]*model.Purchase, error) {
	defer logging.TraceDuration(u.log, "HistoryUC.Purchases")()
	list, err := u.ledger.ListPurchasesByBuyer(ctx, buyerID, page.Normalize())
	if err != nil {
		return nil, domain.Retryable(err)
	}
	return list, nil
}

func (u *historyUC) Sales(ctx context.Context, creatorID string, page repository.Page) ([]*model.Purchase, error) {
	defer logging.TraceDuration(u.log, "HistoryUC.Sales")()
	list, err := u.ledger.ListSalesByCreator(ctx, creatorID, page.Normalize())
	if err != nil {
		return nil, domain.Retryable(err)
	}
	return list, nil
}

func (u *historyUC) Earnings(ctx context.Context, creatorID string, r repository.DateRange) (model.EarningsSummary, error) {
	defer logging.TraceDuration(u.log, "HistoryUC.Earnings")()
	if r.From != nil && r.To != nil && r.From.After(*r.To) {
		return model.EarningsSummary{}, fmt.Errorf("%w: start date after end date", domain.ErrInvalidArgument)
	}
	sum, err := u.ledger.CreatorEarnings(ctx, creatorID, r)
	if err != nil {
		return model.EarningsSummary{}, domain.Retryable(err)
	}
	return sum, nil
}

func (u *historyUC) Account(ctx context.Context, userID string) (*model.Account, error) {
	a, err := u.ledger.GetAccount(ctx, userID)
	if err != nil {
		return nil, storeErr(err, domain.ErrUserNotFound)
	}
	return a, nil
}

func (u *historyUC) Withdrawals(ctx context.Context, userID string, page repository.Page) ([]*WithdrawalView, error) {
	defer logging.TraceDuration(u.log, "HistoryUC.Withdrawals")()
	list, err := u.ledger.ListWithdrawals(ctx, userID, page.Normalize())
	if err != nil {
		return nil, domain.Retryable(err)
	}
	out := make([]*WithdrawalView, 0, len(list))
	for _, w := range list {
		dest, err := u.sealer.Open(w.Destination)
		if err != nil {
			logging.With(ctx, u.log).Warn().Err(err).Str("withdrawal_id", w.ID).Msg("cannot open payout destination")
			dest = ""
		}
		out = append(out, &WithdrawalView{Withdrawal: w, DestinationMasked: logging.Redact(dest, false)})
	}
	return out, nil
}
