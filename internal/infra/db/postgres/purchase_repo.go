package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/repository"
)

type purchaseRepo struct {
	pool *pgxpool.Pool
}

func newPurchaseRepo(pool *pgxpool.Pool) *purchaseRepo {
	return &purchaseRepo{pool: pool}
}

const purchaseColumns = `id, buyer_id, content_id, creator_id, amount, platform_fee, creator_earnings, payment_ref, status, purchased_at, updated_at`

// InsertIfAbsent reports false when the pair or payment reference already has
// a row. The unique indexes decide; no error is raised for the loser.
func (r *purchaseRepo) InsertIfAbsent(ctx context.Context, tx repository.Tx, p *model.Purchase) (bool, error) {
	const q = `
INSERT INTO purchases (` + purchaseColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT DO NOTHING`
	tag, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.BuyerID, p.ContentID, p.CreatorID, p.Amount, p.PlatformFee,
		p.CreatorEarnings, p.PaymentRef, string(p.Status), p.PurchasedAt, p.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *purchaseRepo) FindCompleted(ctx context.Context, tx repository.Tx, buyerID, contentID string) (*model.Purchase, error) {
	q := `SELECT ` + purchaseColumns + ` FROM purchases WHERE buyer_id = $1 AND content_id = $2 AND status = 'completed'`
	return r.one(ctx, tx, q, buyerID, contentID)
}

func (r *purchaseRepo) FindByPaymentRef(ctx context.Context, tx repository.Tx, ref string) (*model.Purchase, error) {
	q := `SELECT ` + purchaseColumns + ` FROM purchases WHERE payment_ref = $1`
	return r.one(ctx, tx, q, ref)
}

func (r *purchaseRepo) ListByBuyer(ctx context.Context, tx repository.Tx, buyerID string, page repository.Page) ([]*model.Purchase, error) {
	q := `SELECT ` + purchaseColumns + ` FROM purchases WHERE buyer_id = $1 ORDER BY purchased_at DESC, id DESC LIMIT $2 OFFSET $3`
	return r.many(ctx, tx, q, buyerID, page.Limit, page.Offset)
}

func (r *purchaseRepo) ListByCreator(ctx context.Context, tx repository.Tx, creatorID string, page repository.Page) ([]*model.Purchase, error) {
	q := `SELECT ` + purchaseColumns + ` FROM purchases WHERE creator_id = $1 ORDER BY purchased_at DESC, id DESC LIMIT $2 OFFSET $3`
	return r.many(ctx, tx, q, creatorID, page.Limit, page.Offset)
}

// EarningsSummary sums completed sales; nil bounds are open.
func (r *purchaseRepo) EarningsSummary(ctx context.Context, tx repository.Tx, creatorID string, from, to *time.Time) (model.EarningsSummary, error) {
	const q = `
SELECT COALESCE(SUM(creator_earnings), 0), COUNT(*), COALESCE(SUM(amount), 0)
FROM purchases
WHERE creator_id = $1 AND status = 'completed'
  AND ($2::timestamptz IS NULL OR purchased_at >= $2)
  AND ($3::timestamptz IS NULL OR purchased_at <= $3)`
	row, err := pickRow(ctx, r.pool, tx, q, creatorID, from, to)
	if err != nil {
		return model.EarningsSummary{}, err
	}
	var s model.EarningsSummary
	var gross int64
	if err := row.Scan(&s.TotalEarnings, &s.TotalSales, &gross); err != nil {
		return model.EarningsSummary{}, mapErr(err)
	}
	if s.TotalSales > 0 {
		s.AveragePrice = gross / s.TotalSales
	}
	return s, nil
}

func (r *purchaseRepo) one(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Purchase, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, mapErr(err)
	}
	return p, nil
}

func (r *purchaseRepo) many(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Purchase, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Purchase, 0)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, p)
	}
	return out, mapErr(rows.Err())
}

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var p model.Purchase
	var status string
	if err := row.Scan(
		&p.ID, &p.BuyerID, &p.ContentID, &p.CreatorID, &p.Amount, &p.PlatformFee,
		&p.CreatorEarnings, &p.PaymentRef, &status, &p.PurchasedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = model.PurchaseStatus(status)
	return &p, nil
}
