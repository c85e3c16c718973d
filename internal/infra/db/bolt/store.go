// Package bolt is the embedded single-file LedgerStore used for local runs
// and tests. Bolt allows one writer at a time, so every mutation is already
// serialized; uniqueness is kept with index buckets next to the records.
package bolt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/rs/zerolog"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/ports/repository"
)

var (
	_ repository.LedgerStore   = (*Store)(nil)
	_ repository.CatalogWriter = (*Store)(nil)
)

var (
	bucketContents       = []byte("contents")
	bucketAccounts       = []byte("accounts")
	bucketPurchases      = []byte("purchases")
	bucketPurchasePairs  = []byte("purchase_pairs")
	bucketPurchaseRefs   = []byte("purchase_refs")
	bucketWithdrawals    = []byte("withdrawals")
	bucketWithdrawalRefs = []byte("withdrawal_refs")
)

var allBuckets = [][]byte{
	bucketContents, bucketAccounts, bucketPurchases, bucketPurchasePairs,
	bucketPurchaseRefs, bucketWithdrawals, bucketWithdrawalRefs,
}

type Store struct {
	db  *bolt.DB
	log *zerolog.Logger
}

// Open creates the file if needed and makes sure every bucket exists.
func Open(path string, logger *zerolog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, log: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func pairKey(buyerID, contentID string) []byte {
	return bytes.Join([][]byte{[]byte(buyerID), []byte(contentID)}, []byte{0})
}

func get(tx *bolt.Tx, bucket []byte, key string, out interface{}) error {
	v := tx.Bucket(bucket).Get([]byte(key))
	if v == nil {
		return domain.ErrNotFound
	}
	if err := json.Unmarshal(v, out); err != nil {
		return fmt.Errorf("%w: %s/%s: %v", domain.ErrReadDatabaseRow, bucket, key, err)
	}
	return nil
}

func unmarshal(v []byte, out interface{}) error {
	if err := json.Unmarshal(v, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return nil
}

func put(tx *bolt.Tx, bucket []byte, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), b)
}

// wrap leaves domain errors alone and marks bolt failures as operational.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var known bool
	for _, target := range []error{
		domain.ErrNotFound, domain.ErrContentNotFound, domain.ErrUserNotFound,
		domain.ErrPriceChanged, domain.ErrInsufficientBalance, domain.ErrInvalidAmount,
		domain.ErrReadDatabaseRow, domain.ErrSettlement,
	} {
		if errors.Is(err, target) {
			known = true
			break
		}
	}
	if known {
		return err
	}
	if errors.Is(err, bolt.ErrTimeout) || errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return domain.Retryable(fmt.Errorf("%w: %v", domain.ErrOperationFailed, err))
	}
	return err
}
