package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest amount a single message may carry:
// ten billion shillings.
const MaxAmount = 1_000_000_000_000

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(MaxAmount)
)

// ParseAmount converts an amount as printed in a message ("1,000.00",
// "450", "Ksh2,500.50") into Money. Currency prefixes and thousands
// separators are ignored; fractions beyond the cent are rounded half-up.
// Zero, negative and values above MaxAmount cents are rejected.
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	for _, prefix := range []string{"KSH.", "KSH", "KES"} {
		if strings.HasPrefix(upper, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Mul(hundred).Round(0)
	if !cents.IsPositive() || !cents.IsInteger() || cents.GreaterThan(maxCents) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount in shillings.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount with two decimals, e.g. "1000.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Add returns m + o, saturating at the int64 bounds.
func (m Money) Add(o Money) Money {
	switch {
	case o.Cents > 0 && m.Cents > math.MaxInt64-o.Cents:
		return Money{Cents: math.MaxInt64}
	case o.Cents < 0 && m.Cents < math.MinInt64-o.Cents:
		return Money{Cents: math.MinInt64}
	}
	return Money{Cents: m.Cents + o.Cents}
}

// Average divides total by count, rounding half-up to the cent.
// A zero count yields zero.
func Average(total Money, count int) Money {
	if count <= 0 {
		return Money{}
	}
	avg := total.Decimal().Div(decimal.NewFromInt(int64(count))).Round(2)
	return Money{Cents: avg.Mul(hundred).IntPart()}
}
