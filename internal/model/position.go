package model

// Position is the per-user, per-asset ledger record.
type Position struct {
	Owner           string `json:"owner"`
	Asset           string `json:"asset"`
	DepositedAmount uint64 `json:"deposited_amount"`
	DepositedShares uint64 `json:"deposited_shares"`
	BorrowedAmount  uint64 `json:"borrowed_amount"`
	BorrowedShares  uint64 `json:"borrowed_shares"`
	LastUpdated     int64  `json:"last_updated"`
}
