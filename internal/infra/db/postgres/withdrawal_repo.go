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

type withdrawalRepo struct {
	pool *pgxpool.Pool
}

func newWithdrawalRepo(pool *pgxpool.Pool) *withdrawalRepo {
	return &withdrawalRepo{pool: pool}
}

const withdrawalColumns = `id, user_id, amount, destination, transfer_ref, status, created_at, updated_at`

func (r *withdrawalRepo) Insert(ctx context.Context, tx repository.Tx, w *model.Withdrawal) error {
	const q = `INSERT INTO withdrawals (` + withdrawalColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := execSQL(ctx, r.pool, tx, q,
		w.ID, w.UserID, w.Amount, w.Destination, w.TransferRef, string(w.Status), w.CreatedAt, w.UpdatedAt,
	)
	return err
}

func (r *withdrawalRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Withdrawal, error) {
	return r.findOne(ctx, tx, `id`, id)
}

func (r *withdrawalRepo) FindByTransferRef(ctx context.Context, tx repository.Tx, ref string) (*model.Withdrawal, error) {
	return r.findOne(ctx, tx, `transfer_ref`, ref)
}

func (r *withdrawalRepo) findOne(ctx context.Context, tx repository.Tx, column, value string) (*model.Withdrawal, error) {
	q := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE ` + column + ` = $1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	row, err := pickRow(ctx, r.pool, tx, q, value)
	if err != nil {
		return nil, err
	}
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, mapErr(err)
	}
	return w, nil
}

// MarkReversed flips requested to reversed and reports whether it did.
func (r *withdrawalRepo) MarkReversed(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE withdrawals SET status = 'reversed', updated_at = NOW() WHERE id = $1 AND status = 'requested'`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *withdrawalRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, page repository.Page) ([]*model.Withdrawal, error) {
	q := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Withdrawal, 0)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, w)
	}
	return out, mapErr(rows.Err())
}

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var w model.Withdrawal
	var status string
	if err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Destination, &w.TransferRef, &status, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Status = model.WithdrawalStatus(status)
	return &w, nil
}
