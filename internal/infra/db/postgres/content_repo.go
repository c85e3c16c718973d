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

type contentRepo struct {
	pool *pgxpool.Pool
}

func newContentRepo(pool *pgxpool.Pool) *contentRepo {
	return &contentRepo{pool: pool}
}

const contentColumns = `id, creator_id, title, price, is_active, views, purchases, total_revenue, created_at, updated_at`

// GetByID locks the row when called inside a transaction so the price read
// stays valid until commit.
func (r *contentRepo) GetByID(ctx context.Context, tx repository.Tx, id string) (*model.Content, error) {
	q := `SELECT ` + contentColumns + ` FROM contents WHERE id = $1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var c model.Content
	if err := row.Scan(
		&c.ID, &c.CreatorID, &c.Title, &c.Price, &c.IsActive,
		&c.Views, &c.Purchases, &c.TotalRevenue, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *contentRepo) Save(ctx context.Context, tx repository.Tx, c *model.Content) error {
	const q = `
INSERT INTO contents (` + contentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  price = EXCLUDED.price,
  is_active = EXCLUDED.is_active,
  updated_at = EXCLUDED.updated_at`
	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.CreatorID, c.Title, c.Price, c.IsActive,
		c.Views, c.Purchases, c.TotalRevenue, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// IncrementSales bumps the purchase counter and revenue by one sale.
func (r *contentRepo) IncrementSales(ctx context.Context, tx repository.Tx, id string, amount int64) error {
	const q = `
UPDATE contents
SET purchases = purchases + 1, total_revenue = total_revenue + $2, updated_at = NOW()
WHERE id = $1`
	tag, err := execSQL(ctx, r.pool, tx, q, id, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
