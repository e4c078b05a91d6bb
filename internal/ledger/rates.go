package ledger

import (
	"math/big"

	"github.com/holiman/uint256"

	"lendingLedger/internal/model"
)

const ratioScale = 18

// Utilization is TotalBorrowed / TotalDeposits as a decimal string.
func Utilization(pool model.Pool) string {
	return ratio(new(big.Int).SetUint64(pool.TotalBorrowed), new(big.Int).SetUint64(pool.TotalDeposits))
}

// SharePrice is the deposit value of one deposit share. An empty pool
// prices shares at the 1:1 bootstrap rate.
func SharePrice(pool model.Pool) string {
	if pool.TotalDepositShares == 0 {
		return new(big.Rat).SetInt64(1).FloatString(ratioScale)
	}
	return ratio(new(big.Int).SetUint64(pool.TotalDeposits), new(big.Int).SetUint64(pool.TotalDepositShares))
}

// SupplyAPY is the yearly growth of deposits under continuous compounding,
// exp(rate) - 1, floored to WAD precision.
func SupplyAPY(pool model.Pool) (string, error) {
	factor, err := CompoundFactor(pool.InterestRate, SecondsPerYear)
	if err != nil {
		return "", err
	}
	growth := new(uint256.Int).Sub(factor, wad)
	return ratio(growth.ToBig(), wad.ToBig()), nil
}

func ratio(num, denom *big.Int) string {
	if denom.Sign() == 0 {
		return new(big.Rat).FloatString(ratioScale)
	}
	return new(big.Rat).SetFrac(num, denom).FloatString(ratioScale)
}
