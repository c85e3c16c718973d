package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"creator-paywall/internal/domain"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// mapErr folds driver errors into domain errors. Contention and connection
// failures are retryable; everything else becomes ErrOperationFailed.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Retryable(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return domain.Retryable(fmt.Errorf("%w: %s", domain.ErrOperationFailed, pgErr.Message))
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", domain.ErrNotFound, pgErr.ConstraintName)
		case pgCheckViolation:
			return fmt.Errorf("%w: constraint %s", domain.ErrOperationFailed, pgErr.ConstraintName)
		}
		return fmt.Errorf("%w: %s", domain.ErrOperationFailed, pgErr.Message)
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return domain.Retryable(fmt.Errorf("%w: %v", domain.ErrOperationFailed, err))
	}
	return fmt.Errorf("%w: %v", domain.ErrOperationFailed, err)
}
