package domain

import "math/bits"

// Collateral amounts and share quantities are uint64 in the smallest unit of
// the asset. Every add/sub/mul in fee and payout math goes through these
// helpers so an overflow surfaces as ErrOverflow instead of wrapping.

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// pow10 returns 10^n. Collateral decimals are validated to at most 18 at
// market creation, so the result always fits in uint64.
func pow10(n uint32) uint64 {
	v := uint64(1)
	for i := uint32(0); i < n; i++ {
		v *= 10
	}
	return v
}
