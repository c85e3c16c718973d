package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/repository"
)

type accountRepo struct {
	pool *pgxpool.Pool
}

func newAccountRepo(pool *pgxpool.Pool) *accountRepo {
	return &accountRepo{pool: pool}
}

func (r *accountRepo) GetByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	q := `
SELECT id, username, payout_account_id, balance, total_earnings, total_spent, created_at, updated_at
FROM accounts WHERE id = $1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var a model.Account
	if err := row.Scan(
		&a.ID, &a.Username, &a.PayoutAccountID, &a.Balance,
		&a.TotalEarnings, &a.TotalSpent, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, mapErr(err)
	}
	return &a, nil
}

// Save upserts profile fields. Money columns are only written on insert.
func (r *accountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, username, payout_account_id, balance, total_earnings, total_spent, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  username = EXCLUDED.username,
  payout_account_id = EXCLUDED.payout_account_id,
  updated_at = EXCLUDED.updated_at`
	_, err := execSQL(ctx, r.pool, tx, q,
		a.ID, a.Username, a.PayoutAccountID, a.Balance,
		a.TotalEarnings, a.TotalSpent, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (r *accountRepo) AddSpent(ctx context.Context, tx repository.Tx, id string, amount int64) error {
	const q = `UPDATE accounts SET total_spent = total_spent + $2, updated_at = NOW() WHERE id = $1`
	return r.updateOne(ctx, tx, q, id, amount)
}

// CreditEarnings adds to both the balance and lifetime earnings.
func (r *accountRepo) CreditEarnings(ctx context.Context, tx repository.Tx, id string, amount int64) error {
	const q = `
UPDATE accounts
SET balance = balance + $2, total_earnings = total_earnings + $2, updated_at = NOW()
WHERE id = $1`
	return r.updateOne(ctx, tx, q, id, amount)
}

// Debit only applies when the balance covers amount.
func (r *accountRepo) Debit(ctx context.Context, tx repository.Tx, id string, amount int64) error {
	const q = `UPDATE accounts SET balance = balance - $2, updated_at = NOW() WHERE id = $1 AND balance >= $2`
	tag, err := execSQL(ctx, r.pool, tx, q, id, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// Credit restores balance without touching lifetime earnings.
func (r *accountRepo) Credit(ctx context.Context, tx repository.Tx, id string, amount int64) error {
	const q = `UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1`
	return r.updateOne(ctx, tx, q, id, amount)
}

func (r *accountRepo) updateOne(ctx context.Context, tx repository.Tx, q, id string, amount int64) error {
	tag, err := execSQL(ctx, r.pool, tx, q, id, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
