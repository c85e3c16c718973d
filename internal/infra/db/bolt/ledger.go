package bolt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/repository"
)

func (s *Store) GetContent(ctx context.Context, contentID string) (*model.Content, error) {
	var c model.Content
	err := s.db.View(func(tx *bolt.Tx) error { return get(tx, bucketContents, contentID, &c) })
	if err != nil {
		return nil, wrap(err)
	}
	return &c, nil
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	err := s.db.View(func(tx *bolt.Tx) error { return get(tx, bucketAccounts, userID, &a) })
	if err != nil {
		return nil, wrap(err)
	}
	return &a, nil
}

func (s *Store) FindCompletedPurchase(ctx context.Context, buyerID, contentID string) (*model.Purchase, error) {
	var p *model.Purchase
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		p, err = completedByPair(tx, buyerID, contentID)
		return err
	})
	return p, wrap(err)
}

func (s *Store) FindPurchaseByPaymentRef(ctx context.Context, paymentRef string) (*model.Purchase, error) {
	var p *model.Purchase
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		p, err = purchaseByRef(tx, paymentRef)
		return err
	})
	return p, wrap(err)
}

func completedByPair(tx *bolt.Tx, buyerID, contentID string) (*model.Purchase, error) {
	id := tx.Bucket(bucketPurchasePairs).Get(pairKey(buyerID, contentID))
	if id == nil {
		return nil, domain.ErrNotFound
	}
	var p model.Purchase
	if err := get(tx, bucketPurchases, string(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func purchaseByRef(tx *bolt.Tx, ref string) (*model.Purchase, error) {
	id := tx.Bucket(bucketPurchaseRefs).Get([]byte(ref))
	if id == nil {
		return nil, domain.ErrNotFound
	}
	var p model.Purchase
	if err := get(tx, bucketPurchases, string(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SettlePurchase(ctx context.Context, p *model.Purchase) (*model.Settlement, error) {
	if !p.Balanced() || p.Amount <= 0 {
		return nil, fmt.Errorf("%w: unbalanced purchase split", domain.ErrInvalidAmount)
	}
	var out *model.Settlement
	err := s.db.Update(func(tx *bolt.Tx) error {
		var c model.Content
		if err := get(tx, bucketContents, p.ContentID, &c); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrContentNotFound
			}
			return err
		}
		if !c.IsActive {
			return domain.ErrContentNotFound
		}

		for _, lookup := range []func() (*model.Purchase, error){
			func() (*model.Purchase, error) { return completedByPair(tx, p.BuyerID, p.ContentID) },
			func() (*model.Purchase, error) { return purchaseByRef(tx, p.PaymentRef) },
		} {
			prev, err := lookup()
			if err == nil {
				out = &model.Settlement{Purchase: prev, Created: false}
				return nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}

		if c.Price != p.Amount || c.CreatorID != p.CreatorID {
			return domain.ErrPriceChanged
		}

		var buyer, creator model.Account
		if err := get(tx, bucketAccounts, p.BuyerID, &buyer); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}
		if err := get(tx, bucketAccounts, p.CreatorID, &creator); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}

		now := time.Now().UTC()
		c.Purchases++
		c.TotalRevenue += p.Amount
		c.UpdatedAt = now
		if err := put(tx, bucketContents, c.ID, &c); err != nil {
			return err
		}

		if buyer.ID == creator.ID {
			buyer.TotalSpent += p.Amount
			buyer.Balance += p.CreatorEarnings
			buyer.TotalEarnings += p.CreatorEarnings
			buyer.UpdatedAt = now
			if err := put(tx, bucketAccounts, buyer.ID, &buyer); err != nil {
				return err
			}
		} else {
			buyer.TotalSpent += p.Amount
			buyer.UpdatedAt = now
			creator.Balance += p.CreatorEarnings
			creator.TotalEarnings += p.CreatorEarnings
			creator.UpdatedAt = now
			if err := put(tx, bucketAccounts, buyer.ID, &buyer); err != nil {
				return err
			}
			if err := put(tx, bucketAccounts, creator.ID, &creator); err != nil {
				return err
			}
		}

		if err := put(tx, bucketPurchases, p.ID, p); err != nil {
			return err
		}
		if err := tx.Bucket(bucketPurchasePairs).Put(pairKey(p.BuyerID, p.ContentID), []byte(p.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketPurchaseRefs).Put([]byte(p.PaymentRef), []byte(p.ID)); err != nil {
			return err
		}
		out = &model.Settlement{Purchase: p, Created: true}
		return nil
	})
	if err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

// Withdraw holds the single bolt writer across the transfer call, which
// blocks every other write for that long. Acceptable for the embedded store.
// A withdrawal whose id is already stored is returned as is.
func (s *Store) Withdraw(ctx context.Context, w *model.Withdrawal, transfer repository.TransferFunc) (*model.Withdrawal, error) {
	if w.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	var replayed *model.Withdrawal
	err := s.db.Update(func(tx *bolt.Tx) error {
		var a model.Account
		if err := get(tx, bucketAccounts, w.UserID, &a); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}
		var prior model.Withdrawal
		switch err := get(tx, bucketWithdrawals, w.ID, &prior); {
		case err == nil:
			if !prior.SameRequest(w) {
				return domain.ErrIdempotencyReused
			}
			replayed = &prior
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		if a.Balance < w.Amount {
			return domain.ErrInsufficientBalance
		}
		ref, err := transfer(ctx, w)
		if err != nil {
			return err
		}
		w.TransferRef = ref
		a.Balance -= w.Amount
		a.UpdatedAt = time.Now().UTC()
		if err := put(tx, bucketAccounts, a.ID, &a); err != nil {
			return err
		}
		if err := put(tx, bucketWithdrawals, w.ID, w); err != nil {
			return err
		}
		return tx.Bucket(bucketWithdrawalRefs).Put([]byte(ref), []byte(w.ID))
	})
	if err != nil {
		if w.TransferRef != "" {
			s.log.Error().Err(err).Str("withdrawal_id", w.ID).Str("transfer_ref", w.TransferRef).
				Msg("transfer accepted but ledger commit failed")
		}
		return nil, wrap(err)
	}
	if replayed != nil {
		return replayed, nil
	}
	return w, nil
}

func (s *Store) ReverseWithdrawal(ctx context.Context, transferRef string) (*model.Withdrawal, bool, error) {
	var (
		out     model.Withdrawal
		applied bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketWithdrawalRefs).Get([]byte(transferRef))
		if id == nil {
			return domain.ErrNotFound
		}
		if err := get(tx, bucketWithdrawals, string(id), &out); err != nil {
			return err
		}
		if out.Status == model.WithdrawalStatusReversed {
			return nil
		}
		var a model.Account
		if err := get(tx, bucketAccounts, out.UserID, &a); err != nil {
			return err
		}
		now := time.Now().UTC()
		a.Balance += out.Amount
		a.UpdatedAt = now
		out.Status = model.WithdrawalStatusReversed
		out.UpdatedAt = now
		if err := put(tx, bucketAccounts, a.ID, &a); err != nil {
			return err
		}
		applied = true
		return put(tx, bucketWithdrawals, out.ID, &out)
	})
	if err != nil {
		return nil, false, wrap(err)
	}
	return &out, applied, nil
}

func (s *Store) ListPurchasesByBuyer(ctx context.Context, buyerID string, page repository.Page) ([]*model.Purchase, error) {
	return s.listPurchases(func(p *model.Purchase) bool { return p.BuyerID == buyerID }, page)
}

func (s *Store) ListSalesByCreator(ctx context.Context, creatorID string, page repository.Page) ([]*model.Purchase, error) {
	return s.listPurchases(func(p *model.Purchase) bool { return p.CreatorID == creatorID }, page)
}

func (s *Store) CreatorEarnings(ctx context.Context, creatorID string, r repository.DateRange) (model.EarningsSummary, error) {
	var sum model.EarningsSummary
	var gross int64
	err := s.scanPurchases(func(p *model.Purchase) {
		if p.CreatorID != creatorID || p.Status != model.PurchaseStatusCompleted || !r.Contains(p.PurchasedAt) {
			return
		}
		sum.TotalEarnings += p.CreatorEarnings
		sum.TotalSales++
		gross += p.Amount
	})
	if err != nil {
		return model.EarningsSummary{}, wrap(err)
	}
	if sum.TotalSales > 0 {
		sum.AveragePrice = gross / sum.TotalSales
	}
	return sum, nil
}

func (s *Store) ListWithdrawals(ctx context.Context, userID string, page repository.Page) ([]*model.Withdrawal, error) {
	var out []*model.Withdrawal
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWithdrawals).ForEach(func(k, v []byte) error {
			var w model.Withdrawal
			if err := unmarshal(v, &w); err != nil {
				return err
			}
			if w.UserID == userID {
				out = append(out, &w)
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrap(err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, page), nil
}

func (s *Store) SaveAccount(ctx context.Context, a *model.Account) error {
	return wrap(s.db.Update(func(tx *bolt.Tx) error {
		var prev model.Account
		switch err := get(tx, bucketAccounts, a.ID, &prev); {
		case err == nil:
			// Money fields are owned by the ledger once the account exists.
			prev.Username = a.Username
			prev.PayoutAccountID = a.PayoutAccountID
			prev.UpdatedAt = a.UpdatedAt
			return put(tx, bucketAccounts, a.ID, &prev)
		case errors.Is(err, domain.ErrNotFound):
			return put(tx, bucketAccounts, a.ID, a)
		default:
			return err
		}
	}))
}

func (s *Store) SaveContent(ctx context.Context, c *model.Content) error {
	return wrap(s.db.Update(func(tx *bolt.Tx) error {
		var prev model.Content
		switch err := get(tx, bucketContents, c.ID, &prev); {
		case err == nil:
			prev.Title = c.Title
			prev.Price = c.Price
			prev.IsActive = c.IsActive
			prev.UpdatedAt = c.UpdatedAt
			return put(tx, bucketContents, c.ID, &prev)
		case errors.Is(err, domain.ErrNotFound):
			return put(tx, bucketContents, c.ID, c)
		default:
			return err
		}
	}))
}

func (s *Store) scanPurchases(fn func(p *model.Purchase)) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPurchases).ForEach(func(k, v []byte) error {
			var p model.Purchase
			if err := unmarshal(v, &p); err != nil {
				return err
			}
			fn(&p)
			return nil
		})
	})
}

func (s *Store) listPurchases(keep func(p *model.Purchase) bool, page repository.Page) ([]*model.Purchase, error) {
	var out []*model.Purchase
	err := s.scanPurchases(func(p *model.Purchase) {
		if keep(p) {
			out = append(out, p)
		}
	})
	if err != nil {
		return nil, wrap(err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PurchasedAt.After(out[j].PurchasedAt) })
	return paginate(out, page), nil
}

func paginate[T any](items []T, page repository.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}
