package ledger

import (
	"math"
	"math/bits"
)

// PlatformFee is floor(totalPrice * feeRate / 100).
func PlatformFee(totalPrice, feeRate int64) (int64, error) {
	if totalPrice < 0 || feeRate < 0 {
		return 0, ErrInvalidQuantity
	}
	fee, ok := mulDiv(totalPrice, feeRate, MaxRate)
	if !ok {
		return 0, ErrInvalidQuantity
	}
	return fee, nil
}

// RefundValue is floor(quantity * unitCost * refundRate / 100). Callers pass
// the unit cost configured at refund time, not the price the units were
// bought at, so the two can diverge after SetUnitCost.
func RefundValue(quantity, unitCost, refundRate int64) (int64, error) {
	if quantity < 0 || unitCost < 0 || refundRate < 0 {
		return 0, ErrInvalidQuantity
	}
	gross, ok := mul(quantity, unitCost)
	if !ok {
		return 0, ErrInvalidQuantity
	}
	v, ok := mulDiv(gross, refundRate, MaxRate)
	if !ok {
		return 0, ErrInvalidQuantity
	}
	return v, nil
}

// mul multiplies two non-negative values, reporting overflow.
func mul(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

// add sums two non-negative values, reporting overflow.
func add(a, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// mulDiv computes floor(a*b/d) for non-negative operands with a 128-bit
// intermediate product.
func mulDiv(a, b, d int64) (int64, bool) {
	if a < 0 || b < 0 || d <= 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(d) {
		return 0, false
	}
	q, _ := bits.Div64(hi, lo, uint64(d))
	if q > math.MaxInt64 {
		return 0, false
	}
	return int64(q), true
}
