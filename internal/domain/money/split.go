// Package money holds the platform fee arithmetic. Amounts are integer minor
// units (cents) everywhere inside the service; see decimal.go for the
// boundary conversions.
package money

import (
	"fmt"

	"creator-paywall/internal/domain"
)

const (
	// DefaultFeeBasisPoints is the platform share of every sale (10%).
	DefaultFeeBasisPoints int64 = 1000
	// DefaultMaxPrice is the largest price a content item may carry ($1000.00).
	DefaultMaxPrice int64 = 100_000

	basisPointsScale int64 = 10_000
)

// Split is the result of dividing a sale between platform and creator.
// PlatformFee + CreatorEarnings == Price always holds.
type Split struct {
	Price           int64
	PlatformFee     int64
	CreatorEarnings int64
}

// Policy fixes the fee rate and the allowed price range.
type Policy struct {
	FeeBasisPoints int64
	MaxPrice       int64
}

// DefaultPolicy is the 10% / $1000 policy of the platform.
func DefaultPolicy() Policy {
	return Policy{FeeBasisPoints: DefaultFeeBasisPoints, MaxPrice: DefaultMaxPrice}
}

// Validate rejects fee rates outside [0%, 100%] and non-positive maxima.
func (p Policy) Validate() error {
	if p.FeeBasisPoints < 0 || p.FeeBasisPoints > basisPointsScale {
		return fmt.Errorf("%w: fee basis points %d out of range", domain.ErrInvalidArgument, p.FeeBasisPoints)
	}
	if p.MaxPrice <= 0 {
		return fmt.Errorf("%w: max price must be positive", domain.ErrInvalidArgument)
	}
	return nil
}

// Split divides price into platform fee and creator earnings. The fee is
// rounded half-up to the nearest minor unit; earnings take the remainder so
// nothing leaks to rounding.
func (p Policy) Split(price int64) (Split, error) {
	if price <= 0 || price > p.MaxPrice {
		return Split{}, fmt.Errorf("%w: price %d outside (0, %d]", domain.ErrInvalidAmount, price, p.MaxPrice)
	}
	fee := (price*p.FeeBasisPoints + basisPointsScale/2) / basisPointsScale
	return Split{
		Price:           price,
		PlatformFee:     fee,
		CreatorEarnings: price - fee,
	}, nil
}
