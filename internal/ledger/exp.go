package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Fixed-point exponential in WAD (1e18) units. Every step floors, so the
// result never exceeds the exact value. For an exponent with integer part n
// the relative error stays below (n+40)*1e-18.

const (
	wadUnit = 1_000_000_000_000_000_000
	// eWad is floor(e * 1e18).
	eWad = 2_718_281_828_459_045_235

	// e^45 exceeds the uint64 range, so growing any non-zero balance by a
	// larger exponent overflows regardless of the fractional part.
	maxWholeExponent = 44
)

var wad = uint256.NewInt(wadUnit)

// expWad returns floor(exp(x / 1e18) * 1e18).
func expWad(x *uint256.Int) (*uint256.Int, error) {
	whole := new(uint256.Int).Div(x, wad)
	frac := new(uint256.Int).Mod(x, wad)
	if !whole.IsUint64() || whole.Uint64() > maxWholeExponent {
		return nil, fmt.Errorf("exp of %s/1e18: %w", x.ToBig().String(), ErrArithmeticOverflow)
	}

	result := expFracWad(frac)
	e := uint256.NewInt(eWad)
	for i := uint64(0); i < whole.Uint64(); i++ {
		result.Mul(result, e)
		result.Div(result, wad)
	}
	return result, nil
}

// expFracWad sums the Taylor series of exp for 0 <= frac < 1e18 until the
// next term floors to zero.
func expFracWad(frac *uint256.Int) *uint256.Int {
	sum := new(uint256.Int).Set(wad)
	if frac.IsZero() {
		return sum
	}
	term := new(uint256.Int).Set(wad)
	for k := uint64(1); ; k++ {
		term.Mul(term, frac)
		term.Div(term, new(uint256.Int).Mul(wad, uint256.NewInt(k)))
		if term.IsZero() {
			return sum
		}
		sum.Add(sum, term)
	}
}
