package model

// Pool is the per-asset ledger record. Risk parameters are basis points.
type Pool struct {
	Asset                  string `json:"asset"`
	Authority              string `json:"authority"`
	Custody                string `json:"custody"`
	TotalDeposits          uint64 `json:"total_deposits"`
	TotalDepositShares     uint64 `json:"total_deposit_shares"`
	TotalBorrowed          uint64 `json:"total_borrowed"`
	TotalBorrowedShares    uint64 `json:"total_borrowed_shares"`
	InterestRate           uint64 `json:"interest_rate"`
	LastUpdated            int64  `json:"last_updated"`
	MaxLTV                 uint64 `json:"max_ltv"`
	LiquidationThreshold   uint64 `json:"liquidation_threshold"`
	LiquidationBonus       uint64 `json:"liquidation_bonus"`
	LiquidationCloseFactor uint64 `json:"liquidation_close_factor"`
}

// PoolParams carries the values a pool is created with.
type PoolParams struct {
	Asset                  string `json:"asset"`
	Authority              string `json:"authority"`
	Custody                string `json:"custody"`
	InterestRate           uint64 `json:"interest_rate"`
	MaxLTV                 uint64 `json:"max_ltv"`
	LiquidationThreshold   uint64 `json:"liquidation_threshold"`
	LiquidationBonus       uint64 `json:"liquidation_bonus"`
	LiquidationCloseFactor uint64 `json:"liquidation_close_factor"`
}
