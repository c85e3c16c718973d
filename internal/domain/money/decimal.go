package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"creator-paywall/internal/domain"
)

const minorUnitDigits = 2

var hundred = decimal.NewFromInt(100)

// FromDecimal converts a major-unit decimal ("20.00") to minor units.
// More than two fractional digits is rejected rather than rounded.
func FromDecimal(d decimal.Decimal) (int64, error) {
	cents := d.Mul(hundred)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", domain.ErrInvalidAmount, d.String(), minorUnitDigits)
	}
	if !cents.Equal(decimal.NewFromInt(cents.IntPart())) {
		return 0, fmt.Errorf("%w: %s out of range", domain.ErrInvalidAmount, d.String())
	}
	return cents.IntPart(), nil
}

// Parse converts a decimal string to minor units.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal amount", domain.ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// ToDecimal converts minor units to a major-unit decimal.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -minorUnitDigits)
}

// Format renders minor units as a fixed two-digit decimal string: 2000 -> "20.00".
func Format(cents int64) string {
	return ToDecimal(cents).StringFixed(minorUnitDigits)
}
