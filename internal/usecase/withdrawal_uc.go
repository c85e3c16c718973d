package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/adapter"
	"creator-paywall/internal/domain/ports/repository"
	"creator-paywall/internal/infra/logging"
	"creator-paywall/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ WithdrawalUseCase = (*withdrawalUC)(nil)

type WithdrawalUseCase interface {
	// Withdraw debits amount from the user's balance and requests a payout to
	// destination (or the account's payout account when empty). Calls that
	// repeat idempotencyKey name the same withdrawal: a retry after an
	// uncertain failure pays at most once, and a retry after success returns
	// the stored result.
	Withdraw(ctx context.Context, userID string, amount int64, destination, idempotencyKey string) (*WithdrawalResult, error)
	// ReverseByTransfer re-credits a withdrawal whose transfer the provider
	// reversed. Safe to call repeatedly.
	ReverseByTransfer(ctx context.Context, transferRef string) (*model.Withdrawal, error)
}

type WithdrawalResult struct {
	WithdrawalID string
	TransferRef  string
	Amount       int64
	Replayed     bool
}

const maxIdempotencyKeyLen = 255

type withdrawalUC struct {
	ledger         repository.LedgerStore
	gateway        adapter.PaymentGateway
	locker         adapter.Locker
	sealer         adapter.Sealer
	events         adapter.EventPublisher
	minAmount      int64
	gatewayTimeout time.Duration
	log            *zerolog.Logger
	now            func() time.Time
}

// NewWithdrawalUseCase wires the payout workflow. locker may be nil when the
// store alone serializes balance updates (single-process bolt).
func NewWithdrawalUseCase(
	ledger repository.LedgerStore,
	gateway adapter.PaymentGateway,
	locker adapter.Locker,
	sealer adapter.Sealer,
	events adapter.EventPublisher,
	minAmount int64,
	gatewayTimeout time.Duration,
	logger *zerolog.Logger,
) *withdrawalUC {
	return &withdrawalUC{
		ledger:         ledger,
		gateway:        gateway,
		locker:         locker,
		sealer:         sealer,
		events:         events,
		minAmount:      minAmount,
		gatewayTimeout: gatewayTimeout,
		log:            logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func withdrawLockKey(userID string) string { return "lock:withdraw:" + userID }

func (u *withdrawalUC) Withdraw(ctx context.Context, userID string, amount int64, destination, idempotencyKey string) (*WithdrawalResult, error) {
	defer logging.TraceDuration(u.log, "WithdrawalUC.Withdraw")()
	log := logging.With(ctx, u.log)

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" || len(idempotencyKey) > maxIdempotencyKeyLen {
		metrics.IncWithdrawal("invalid")
		return nil, fmt.Errorf("%w: idempotency key must be 1-%d characters", domain.ErrInvalidArgument, maxIdempotencyKeyLen)
	}

	if amount <= 0 {
		metrics.IncWithdrawal("invalid")
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	if amount < u.minAmount {
		metrics.IncWithdrawal("invalid")
		return nil, fmt.Errorf("%w: minimum withdrawal is %d", domain.ErrInvalidAmount, u.minAmount)
	}

	acct, err := u.ledger.GetAccount(ctx, userID)
	if err != nil {
		metrics.IncWithdrawal("error")
		return nil, storeErr(err, domain.ErrUserNotFound)
	}
	if destination == "" {
		destination = acct.PayoutAccountID
	}
	if destination == "" {
		metrics.IncWithdrawal("invalid")
		return nil, fmt.Errorf("%w: no payout destination", domain.ErrInvalidArgument)
	}

	if u.locker != nil {
		key := withdrawLockKey(userID)
		token, err := u.locker.TryLock(ctx, key, u.lockTTL())
		if err != nil {
			metrics.IncLockContention("withdraw")
			return nil, domain.Retryable(fmt.Errorf("%w: %w", domain.ErrLockNotAcquired, err))
		}
		defer func() {
			if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn().Err(err).Msg("release withdraw lock failed")
			}
		}()
	}

	sealed, err := u.sealer.Seal(destination)
	if err != nil {
		metrics.IncWithdrawal("error")
		return nil, fmt.Errorf("seal destination: %w", err)
	}

	w := model.NewWithdrawal(userID, amount, sealed, u.now())
	// The provider dedupes transfers on this id, so a retry whose first
	// attempt timed out after the provider accepted it cannot pay twice.
	w.ID = model.WithdrawalIDForKey(userID, idempotencyKey)
	saved, err := u.ledger.Withdraw(ctx, w, func(ctx context.Context, w *model.Withdrawal) (string, error) {
		gctx, cancel := boundedCtx(ctx, u.gatewayTimeout)
		defer cancel()
		tr, err := u.gateway.CreateTransfer(gctx, w.Amount, destination, w.ID)
		if err != nil {
			if err = gatewayErr("create transfer", err); domain.IsRetryable(err) {
				return "", err
			}
			return "", fmt.Errorf("%w: %w", domain.ErrTransferRejected, err)
		}
		return tr.Ref, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientBalance):
			metrics.IncWithdrawal("insufficient")
			return nil, err
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUserNotFound):
			metrics.IncWithdrawal("error")
			return nil, domain.ErrUserNotFound
		case errors.Is(err, domain.ErrIdempotencyReused):
			metrics.IncWithdrawal("invalid")
			return nil, err
		case errors.Is(err, domain.ErrGatewayUnavailable) || domain.IsRetryable(err):
			metrics.IncWithdrawal("transfer_failed")
			log.Warn().Err(err).Int64("amount", amount).Msg("withdrawal aborted, balance untouched")
			return nil, domain.Retryable(err)
		default:
			metrics.IncWithdrawal("transfer_failed")
			log.Warn().Err(err).Int64("amount", amount).Msg("withdrawal rejected")
			return nil, err
		}
	}

	// Stores hand back the row they already hold when the id was seen before.
	if saved != w {
		metrics.IncWithdrawal("replayed")
		log.Info().Str("withdrawal_id", saved.ID).Str("transfer_ref", saved.TransferRef).Msg("withdrawal replayed")
		return &WithdrawalResult{
			WithdrawalID: saved.ID,
			TransferRef:  saved.TransferRef,
			Amount:       saved.Amount,
			Replayed:     true,
		}, nil
	}

	metrics.IncWithdrawal("requested")
	metrics.AddWithdrawn(saved.Amount)
	log.Info().
		Str("withdrawal_id", saved.ID).
		Str("transfer_ref", saved.TransferRef).
		Str("destination", logging.Redact(destination, false)).
		Int64("amount", saved.Amount).
		Msg("withdrawal requested")
	u.publish(ctx, withdrawalEvent(model.LedgerEventWithdrawalRequested, saved))

	return &WithdrawalResult{
		WithdrawalID: saved.ID,
		TransferRef:  saved.TransferRef,
		Amount:       saved.Amount,
	}, nil
}

func (u *withdrawalUC) ReverseByTransfer(ctx context.Context, transferRef string) (*model.Withdrawal, error) {
	defer logging.TraceDuration(u.log, "WithdrawalUC.ReverseByTransfer")()
	if transferRef == "" {
		return nil, fmt.Errorf("%w: transfer reference is required", domain.ErrInvalidArgument)
	}

	w, applied, err := u.ledger.ReverseWithdrawal(ctx, transferRef)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.Retryable(fmt.Errorf("reverse withdrawal: %w", err))
	}
	if applied {
		metrics.IncWithdrawal("reversed")
		logging.With(ctx, u.log).Info().
			Str("withdrawal_id", w.ID).
			Str("transfer_ref", transferRef).
			Int64("amount", w.Amount).
			Msg("withdrawal reversed, balance re-credited")
		u.publish(ctx, withdrawalEvent(model.LedgerEventWithdrawalReversed, w))
	}
	return w, nil
}

// The lock must outlive the transfer call it guards.
func (u *withdrawalUC) lockTTL() time.Duration {
	return u.gatewayTimeout + 10*time.Second
}

func (u *withdrawalUC) publish(ctx context.Context, ev model.LedgerEvent) {
	if u.events == nil {
		return
	}
	if err := u.events.Publish(ctx, ev); err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Str("event", string(ev.Type)).Msg("publish ledger event failed")
	}
}

func withdrawalEvent(t model.LedgerEventType, w *model.Withdrawal) model.LedgerEvent {
	return model.NewLedgerEvent(t, w.ID, model.WithdrawalPayload{
		WithdrawalID: w.ID,
		UserID:       w.UserID,
		Amount:       w.Amount,
		TransferRef:  w.TransferRef,
	}, w.UpdatedAt)
}
