package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// All ledger arithmetic goes through these helpers. Products are formed in
// 256 bits so they cannot overflow; only the narrowing back to uint64 can.

func addU64(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, fmt.Errorf("add %d + %d: %w", a, b, ErrArithmeticOverflow)
	}
	return sum.Uint64(), nil
}

func subU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("sub %d - %d: %w", a, b, ErrArithmeticUnderflow)
	}
	return a - b, nil
}

// mulDivU64 returns floor(a * b / d).
func mulDivU64(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivisionByZero
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	product.Div(product, uint256.NewInt(d))
	if !product.IsUint64() {
		return 0, fmt.Errorf("mul-div %d * %d / %d: %w", a, b, d, ErrArithmeticOverflow)
	}
	return product.Uint64(), nil
}
