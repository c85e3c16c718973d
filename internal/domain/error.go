package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Purchase workflow
	ErrContentNotFound     = errors.New("content not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrSelfPurchase        = errors.New("cannot purchase own content")
	ErrAlreadyPurchased    = errors.New("content already purchased")
	ErrPaymentNotSucceeded = errors.New("payment not succeeded")
	ErrIntentMismatch      = errors.New("payment intent does not belong to this purchase")
	ErrPriceChanged        = errors.New("content price changed during settlement")
	ErrSettlement          = errors.New("settlement failed")

	// Money
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Gateway / webhook
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMalformedEvent     = errors.New("authentic webhook event with unreadable data")
	ErrTransferRejected   = errors.New("payout transfer rejected")
	ErrIdempotencyReused  = errors.New("idempotency key reused for a different request")

	// Coordination
	ErrLockNotAcquired = errors.New("could not acquire lock")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

// RetryableError marks a failure as transient: the whole operation may be
// re-invoked safely because every money-affecting path is idempotent.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err with the retryable marker. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return err
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err (or anything it wraps) is transient.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// IsBusinessRule reports whether err is a terminal rule violation that the
// caller should surface as-is.
func IsBusinessRule(err error) bool {
	return errors.Is(err, ErrSelfPurchase) ||
		errors.Is(err, ErrAlreadyPurchased) ||
		errors.Is(err, ErrContentNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrPaymentNotSucceeded)
}
