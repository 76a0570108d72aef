package math

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Protocol bounds for the synthetic asset. The single-mint ceiling keeps
// amount*fee products inside the wide intermediate with headroom; the debt
// ceiling bounds the total liability any one position can carry.
const (
	MinMintAmount = 1_000_000              // 1e6 base units
	MaxMintAmount = 60_000_000_000_000_000 // 6e16 base units
	MaxDebt       = 600_000_000_000_000_000
)

// MulDiv computes floor(a*b/c) with a 256-bit intermediate so the product
// cannot overflow before the division. Truncation is always toward zero: fee
// thresholds are never undercharged and collateral is never overvalued.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, fmt.Errorf("muldiv: division by zero")
	}

	prod := new(uint256.Int).Mul(
		uint256.NewInt(a),
		uint256.NewInt(b),
	)
	quot := new(uint256.Int).Div(prod, uint256.NewInt(c))

	if !quot.IsUint64() {
		return 0, fmt.Errorf("muldiv: quotient overflows uint64 (a=%d b=%d c=%d)", a, b, c)
	}
	return quot.Uint64(), nil
}

// Pow10 returns 10^n, failing for exponents that leave uint64 range.
func Pow10(n uint64) (uint64, error) {
	if n > 19 {
		return 0, fmt.Errorf("pow10: exponent %d out of range", n)
	}
	out := uint64(1)
	for i := uint64(0); i < n; i++ {
		out *= 10
	}
	return out, nil
}

// CollateralValue converts a native-unit balance into USD base units:
// floor(balance * price / 10^decimals). Price is USD per native unit scaled
// by decimals, read from the oracle.
func CollateralValue(balance, price, decimals uint64) (uint64, error) {
	scale, err := Pow10(decimals)
	if err != nil {
		return 0, err
	}
	return MulDiv(balance, price, scale)
}

// FeeAmount converts a synthetic-asset amount into the native-unit fee owed:
// floor(amount * feePct * 10^decimals / (1000 * price)). feePct carries two
// implied decimals, hence the 1000 divisor.
func FeeAmount(amount, feePct, price, decimals uint64) (uint64, error) {
	if price == 0 {
		return 0, fmt.Errorf("fee: zero price")
	}
	scale, err := Pow10(decimals)
	if err != nil {
		return 0, err
	}

	num := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(feePct))
	num.Mul(num, uint256.NewInt(scale))
	den := new(uint256.Int).Mul(uint256.NewInt(1000), uint256.NewInt(price))
	quot := new(uint256.Int).Div(num, den)

	if !quot.IsUint64() {
		return 0, fmt.Errorf("fee: quotient overflows uint64")
	}
	return quot.Uint64(), nil
}
