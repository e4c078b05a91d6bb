package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"lendingLedger/internal/model"
)

const (
	SecondsPerYear = 31_536_000
	BasisPoints    = 10_000
)

// CompoundFactor returns exp(rateBps/1e4 * elapsed/SecondsPerYear) in WAD.
func CompoundFactor(rateBps, elapsed uint64) (*uint256.Int, error) {
	exponent := new(uint256.Int).Mul(uint256.NewInt(rateBps), uint256.NewInt(elapsed))
	exponent.Mul(exponent, wad)
	exponent.Div(exponent, uint256.NewInt(BasisPoints*SecondsPerYear))
	return expWad(exponent)
}

// Grow applies continuous compounding to amount and floors the result.
func Grow(amount, rateBps, elapsed uint64) (uint64, error) {
	if amount == 0 || rateBps == 0 || elapsed == 0 {
		return amount, nil
	}
	factor, err := CompoundFactor(rateBps, elapsed)
	if err != nil {
		return 0, err
	}
	grown := new(uint256.Int).Mul(uint256.NewInt(amount), factor)
	grown.Div(grown, wad)
	if !grown.IsUint64() {
		return 0, fmt.Errorf("grow %d: %w", amount, ErrArithmeticOverflow)
	}
	return grown.Uint64(), nil
}

// Accrue brings pool.TotalDeposits up to now and stamps LastUpdated.
// Deposit shares are untouched, which is what raises the share price.
// Calling it twice with the same now is a no-op the second time.
func Accrue(pool *model.Pool, now int64) error {
	if now < pool.LastUpdated {
		return fmt.Errorf("accrue %s at %d, last %d: %w", pool.Asset, now, pool.LastUpdated, ErrClockSkew)
	}
	elapsed := uint64(now) - uint64(pool.LastUpdated)
	if elapsed == 0 {
		return nil
	}

	total, err := Grow(pool.TotalDeposits, pool.InterestRate, elapsed)
	if err != nil {
		return fmt.Errorf("accrue %s: %w", pool.Asset, err)
	}
	pool.TotalDeposits = total
	pool.LastUpdated = now
	return nil
}
