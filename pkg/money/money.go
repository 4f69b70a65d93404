// Package money converts between stored cent amounts and decimal strings.
// Balances and amounts are persisted as int64 cents; decimal.Decimal is used
// only at the edges where humans or JSON supply values.
package money

import (
	"fmt"
	"math"
	"strings"

	"jababank/pkg/core"

	"github.com/shopspring/decimal"
)

const scale = 2

var maxCents = decimal.NewFromInt(math.MaxInt64)

// FromDecimal converts d to cents. Values with more than two fractional
// digits are rejected instead of rounded.
func FromDecimal(d decimal.Decimal) (int64, error) {
	cents := d.Shift(scale)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("%w: at most %d decimal places", core.ErrInvalidAmount, scale)
	}
	if cents.Abs().GreaterThan(maxCents) {
		return 0, fmt.Errorf("%w: out of range", core.ErrInvalidAmount)
	}
	return cents.IntPart(), nil
}

// Parse reads "150", "150.5" or "150.00" into cents.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// MustParse is for constants and tests.
func MustParse(s string) int64 {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

func Decimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -scale)
}

// Format renders cents with exactly two decimals, e.g. 5000 -> "50.00".
func Format(cents int64) string {
	return Decimal(cents).StringFixed(scale)
}
