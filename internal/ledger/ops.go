package ledger

import (
	"fmt"

	"lendingLedger/internal/model"
)

// Result reports the token amount an operation moves and the shares it
// minted or burned.
type Result struct {
	Amount uint64
	Shares uint64
}

// Every operation below works on copies of the pool and position and writes
// them back only when it succeeds, so a failed call leaves both untouched.

// Reconcile revalues the position's amounts at the pool's current share
// prices. The pool must already be accrued.
func Reconcile(pool model.Pool, pos *model.Position) error {
	deposited, err := AmountForShares(pool, pos.DepositedShares)
	if err != nil {
		return err
	}
	borrowed, err := BorrowAmountForShares(pool, pos.BorrowedShares)
	if err != nil {
		return err
	}
	pos.DepositedAmount = deposited
	pos.BorrowedAmount = borrowed
	return nil
}

// touch accrues the pool and reconciles the position against it.
func touch(pool *model.Pool, pos *model.Position, now int64) error {
	if err := Accrue(pool, now); err != nil {
		return err
	}
	return Reconcile(*pool, pos)
}

// Deposit adds amount to the pool and credits the minted shares to pos.
func Deposit(pool *model.Pool, pos *model.Position, amount uint64, now int64) (Result, error) {
	if amount == 0 {
		return Result{}, ErrInvalidAmount
	}
	p, q := *pool, *pos
	if err := touch(&p, &q, now); err != nil {
		return Result{}, err
	}

	shares, err := SharesForDeposit(p, amount)
	if err != nil {
		return Result{}, err
	}
	if shares == 0 {
		return Result{}, fmt.Errorf("deposit of %d mints no shares: %w", amount, ErrInvalidAmount)
	}

	if p.TotalDeposits, err = addU64(p.TotalDeposits, amount); err != nil {
		return Result{}, err
	}
	if p.TotalDepositShares, err = addU64(p.TotalDepositShares, shares); err != nil {
		return Result{}, err
	}
	if q.DepositedAmount, err = addU64(q.DepositedAmount, amount); err != nil {
		return Result{}, err
	}
	if q.DepositedShares, err = addU64(q.DepositedShares, shares); err != nil {
		return Result{}, err
	}
	q.LastUpdated = now

	*pool, *pos = p, q
	return Result{Amount: amount, Shares: shares}, nil
}

// Withdraw removes amount from the position's deposit and burns the
// proportional shares. Withdrawing the whole balance burns every share the
// position holds.
func Withdraw(pool *model.Pool, pos *model.Position, amount uint64, now int64) (Result, error) {
	if amount == 0 {
		return Result{}, ErrInvalidAmount
	}
	p, q := *pool, *pos
	if err := touch(&p, &q, now); err != nil {
		return Result{}, err
	}
	if amount > q.DepositedAmount {
		return Result{}, fmt.Errorf("withdraw %d of %d: %w", amount, q.DepositedAmount, ErrInsufficientFunds)
	}

	shares, err := SharesToRemove(p, amount)
	if err != nil {
		return Result{}, err
	}
	if amount == q.DepositedAmount {
		shares = q.DepositedShares
	}
	if shares == 0 {
		return Result{}, fmt.Errorf("withdraw of %d burns no shares: %w", amount, ErrInvalidAmount)
	}

	if p.TotalDeposits, err = subU64(p.TotalDeposits, amount); err != nil {
		return Result{}, err
	}
	if p.TotalDepositShares, err = subU64(p.TotalDepositShares, shares); err != nil {
		return Result{}, err
	}
	if q.DepositedAmount, err = subU64(q.DepositedAmount, amount); err != nil {
		return Result{}, err
	}
	if q.DepositedShares, err = subU64(q.DepositedShares, shares); err != nil {
		return Result{}, err
	}
	q.LastUpdated = now

	*pool, *pos = p, q
	return Result{Amount: amount, Shares: shares}, nil
}

// MaxBorrow returns the borrow limit for collateral valued at price
// (borrow-asset units per PriceScale collateral units) under maxLTV bps.
func MaxBorrow(collateral, price, maxLTV uint64) (uint64, error) {
	value, err := mulDivU64(collateral, price, PriceScale)
	if err != nil {
		return 0, err
	}
	return mulDivU64(value, maxLTV, BasisPoints)
}

// Borrow lends requested units from pool against collateral priced by the
// caller. The position's existing debt counts against the limit and the pool
// never lends more than it holds.
func Borrow(pool *model.Pool, pos *model.Position, collateral, price, requested uint64, now int64) (Result, error) {
	if collateral == 0 {
		return Result{}, ErrNoCollateral
	}
	if requested == 0 {
		return Result{}, ErrInvalidAmount
	}
	limit, err := MaxBorrow(collateral, price, pool.MaxLTV)
	if err != nil {
		return Result{}, err
	}

	p, q := *pool, *pos
	if err := touch(&p, &q, now); err != nil {
		return Result{}, err
	}

	projected, err := addU64(q.BorrowedAmount, requested)
	if err != nil {
		return Result{}, err
	}
	if projected > limit {
		return Result{}, fmt.Errorf("borrow %d with %d outstanding, limit %d: %w", requested, q.BorrowedAmount, limit, ErrExceedsBorrowLimit)
	}
	outstanding, err := addU64(p.TotalBorrowed, requested)
	if err != nil {
		return Result{}, err
	}
	if outstanding > p.TotalDeposits {
		return Result{}, fmt.Errorf("borrow %d, pool lends %d of %d: %w", requested, p.TotalBorrowed, p.TotalDeposits, ErrInsufficientLiquidity)
	}

	shares, err := BorrowSharesFor(p, requested)
	if err != nil {
		return Result{}, err
	}
	if shares == 0 {
		return Result{}, fmt.Errorf("borrow of %d mints no shares: %w", requested, ErrInvalidAmount)
	}

	p.TotalBorrowed = outstanding
	if p.TotalBorrowedShares, err = addU64(p.TotalBorrowedShares, shares); err != nil {
		return Result{}, err
	}
	q.BorrowedAmount = projected
	if q.BorrowedShares, err = addU64(q.BorrowedShares, shares); err != nil {
		return Result{}, err
	}
	q.LastUpdated = now

	*pool, *pos = p, q
	return Result{Amount: requested, Shares: shares}, nil
}

// Repay reduces the position's debt by up to amount. Amounts above the
// outstanding debt are capped; Result.Amount is what must be paid in.
func Repay(pool *model.Pool, pos *model.Position, amount uint64, now int64) (Result, error) {
	if amount == 0 {
		return Result{}, ErrInvalidAmount
	}
	p, q := *pool, *pos
	if err := touch(&p, &q, now); err != nil {
		return Result{}, err
	}
	if q.BorrowedAmount == 0 {
		return Result{}, ErrNoDebt
	}
	if amount > q.BorrowedAmount {
		amount = q.BorrowedAmount
	}

	shares, err := BorrowSharesToRemove(p, amount)
	if err != nil {
		return Result{}, err
	}
	if amount == q.BorrowedAmount {
		shares = q.BorrowedShares
	}

	if p.TotalBorrowed, err = subU64(p.TotalBorrowed, amount); err != nil {
		return Result{}, err
	}
	if p.TotalBorrowedShares, err = subU64(p.TotalBorrowedShares, shares); err != nil {
		return Result{}, err
	}
	if q.BorrowedAmount, err = subU64(q.BorrowedAmount, amount); err != nil {
		return Result{}, err
	}
	if q.BorrowedShares, err = subU64(q.BorrowedShares, shares); err != nil {
		return Result{}, err
	}
	q.LastUpdated = now

	*pool, *pos = p, q
	return Result{Amount: amount, Shares: shares}, nil
}
