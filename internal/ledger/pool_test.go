package ledger

import (
	"errors"
	"testing"

	"lendingLedger/internal/model"
)

func TestValidateParams(t *testing.T) {
	base := model.PoolParams{Asset: "USDC", Custody: "vault", InterestRate: 500, MaxLTV: 7_500, LiquidationThreshold: 8_000}
	cases := []struct {
		name   string
		mutate func(*model.PoolParams)
		ok     bool
	}{
		{name: "valid", mutate: func(*model.PoolParams) {}, ok: true},
		{name: "rate at cap", mutate: func(p *model.PoolParams) { p.InterestRate = MaxInterestRate }, ok: true},
		{name: "rate above cap", mutate: func(p *model.PoolParams) { p.InterestRate = MaxInterestRate + 1 }},
		{name: "rate past exp domain", mutate: func(p *model.PoolParams) { p.InterestRate = 440_001 }},
		{name: "missing asset", mutate: func(p *model.PoolParams) { p.Asset = " " }},
		{name: "missing custody", mutate: func(p *model.PoolParams) { p.Custody = "" }},
		{name: "ltv above 100%", mutate: func(p *model.PoolParams) { p.MaxLTV = 10_001; p.LiquidationThreshold = 10_001 }},
		{name: "threshold below ltv", mutate: func(p *model.PoolParams) { p.LiquidationThreshold = 7_000 }},
		{name: "close factor above 100%", mutate: func(p *model.PoolParams) { p.LiquidationCloseFactor = 10_001 }},
	}
	for _, tc := range cases {
		params := base
		tc.mutate(&params)
		err := ValidateParams(params)
		if tc.ok && err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidParams) {
			t.Fatalf("%s: expected ErrInvalidParams, got %v", tc.name, err)
		}
	}
}

func TestMaxRatePoolStaysComputable(t *testing.T) {
	pool, err := NewPool(model.PoolParams{Asset: "USDC", Custody: "vault", InterestRate: MaxInterestRate}, 0)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if _, err := SupplyAPY(pool); err != nil {
		t.Fatalf("supply apy: %v", err)
	}
	pool.TotalDeposits, pool.TotalDepositShares = 1_000, 1_000
	if err := Accrue(&pool, SecondsPerYear); err != nil {
		t.Fatalf("accrue one year: %v", err)
	}
	// e^10 ≈ 22026.47
	if pool.TotalDeposits < 22_026_000 || pool.TotalDeposits >= 22_027_000 {
		t.Fatalf("deposits after a year = %d", pool.TotalDeposits)
	}
}
