// Package money holds amount arithmetic shared by orders and payments.
package money

import (
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for KES amounts.
const Scale = 2

func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

func FromFloat(f float64) decimal.Decimal {
	return Round(decimal.NewFromFloat(f))
}

// Equal compares two amounts after rounding both to Scale.
func Equal(a, b decimal.Decimal) bool {
	return Round(a).Equal(Round(b))
}

// WholeUnits returns the amount as whole shillings. ok is false when the
// amount has cents, since the gateway would round what the customer pays.
func WholeUnits(d decimal.Decimal) (units int64, ok bool) {
	d = Round(d)
	if !d.Equal(d.Truncate(0)) {
		return 0, false
	}
	return d.IntPart(), true
}

func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return Round(total)
}
