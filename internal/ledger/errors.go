package ledger

import "errors"

var (
	ErrInvalidAmount         = errors.New("ledger: amount must be positive")
	ErrInvalidParams         = errors.New("ledger: invalid pool parameters")
	ErrInsufficientFunds     = errors.New("ledger: insufficient funds")
	ErrNoCollateral          = errors.New("ledger: no collateral")
	ErrExceedsBorrowLimit    = errors.New("ledger: borrow exceeds limit")
	ErrInsufficientLiquidity = errors.New("ledger: insufficient pool liquidity")
	ErrNoDebt                = errors.New("ledger: no outstanding debt")
	ErrCollateralInUse       = errors.New("ledger: deposit backs outstanding debt")
	ErrClockSkew             = errors.New("ledger: timestamp earlier than last accrual")

	// Internal-consistency faults. These never result from caller input on a
	// pool whose invariants hold.
	ErrArithmeticOverflow  = errors.New("ledger: arithmetic overflow")
	ErrArithmeticUnderflow = errors.New("ledger: arithmetic underflow")
	ErrDivisionByZero      = errors.New("ledger: division by zero")
)

// IsInternalFault reports whether err is an internal-consistency fault rather
// than a rejected request.
func IsInternalFault(err error) bool {
	return errors.Is(err, ErrArithmeticOverflow) ||
		errors.Is(err, ErrArithmeticUnderflow) ||
		errors.Is(err, ErrDivisionByZero)
}
