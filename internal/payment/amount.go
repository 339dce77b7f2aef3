package payment

import "github.com/shopspring/decimal"

// NormalizeAmount rounds half-up to a whole currency unit. The currency has
// no subunit, so fractional totals are rounded here and never sent as is.
func NormalizeAmount(total decimal.Decimal) (int64, error) {
	rounded := total.Round(0)
	if !rounded.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return rounded.IntPart(), nil
}
