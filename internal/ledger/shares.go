package ledger

import (
	"fmt"

	"lendingLedger/internal/model"
)

// SharesForDeposit returns the deposit shares minted for amount. The first
// deposit into an empty pool is priced 1:1.
func SharesForDeposit(pool model.Pool, amount uint64) (uint64, error) {
	shares, err := sharesFor(pool.TotalDeposits, pool.TotalDepositShares, amount)
	if err != nil {
		return 0, fmt.Errorf("deposit shares for %d in %s: %w", amount, pool.Asset, err)
	}
	return shares, nil
}

// AmountForShares values deposit shares at the current share price.
func AmountForShares(pool model.Pool, shares uint64) (uint64, error) {
	amount, err := amountFor(pool.TotalDeposits, pool.TotalDepositShares, shares)
	if err != nil {
		return 0, fmt.Errorf("deposit value of %d shares in %s: %w", shares, pool.Asset, err)
	}
	return amount, nil
}

// SharesToRemove returns the deposit shares burned when amount is withdrawn.
func SharesToRemove(pool model.Pool, amount uint64) (uint64, error) {
	shares, err := sharesToRemove(pool.TotalDeposits, pool.TotalDepositShares, amount)
	if err != nil {
		return 0, fmt.Errorf("deposit shares to remove for %d in %s: %w", amount, pool.Asset, err)
	}
	return shares, nil
}

// BorrowSharesFor returns the borrow shares minted for a new loan of amount.
func BorrowSharesFor(pool model.Pool, amount uint64) (uint64, error) {
	shares, err := sharesFor(pool.TotalBorrowed, pool.TotalBorrowedShares, amount)
	if err != nil {
		return 0, fmt.Errorf("borrow shares for %d in %s: %w", amount, pool.Asset, err)
	}
	return shares, nil
}

// BorrowAmountForShares values borrow shares at the current debt price.
func BorrowAmountForShares(pool model.Pool, shares uint64) (uint64, error) {
	amount, err := amountFor(pool.TotalBorrowed, pool.TotalBorrowedShares, shares)
	if err != nil {
		return 0, fmt.Errorf("debt value of %d shares in %s: %w", shares, pool.Asset, err)
	}
	return amount, nil
}

// BorrowSharesToRemove returns the borrow shares burned when amount is repaid.
func BorrowSharesToRemove(pool model.Pool, amount uint64) (uint64, error) {
	shares, err := sharesToRemove(pool.TotalBorrowed, pool.TotalBorrowedShares, amount)
	if err != nil {
		return 0, fmt.Errorf("borrow shares to remove for %d in %s: %w", amount, pool.Asset, err)
	}
	return shares, nil
}

func sharesFor(total, totalShares, amount uint64) (uint64, error) {
	if totalShares == 0 {
		return amount, nil
	}
	if total == 0 {
		return 0, ErrDivisionByZero
	}
	return mulDivU64(amount, totalShares, total)
}

func amountFor(total, totalShares, shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, nil
	}
	if totalShares == 0 {
		return 0, ErrDivisionByZero
	}
	return mulDivU64(shares, total, totalShares)
}

func sharesToRemove(total, totalShares, amount uint64) (uint64, error) {
	if total == 0 {
		return 0, ErrDivisionByZero
	}
	return mulDivU64(totalShares, amount, total)
}
