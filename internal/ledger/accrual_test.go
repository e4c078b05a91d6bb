package ledger

import (
	"errors"
	"math"
	"testing"

	"lendingLedger/internal/model"
)

func TestGrow(t *testing.T) {
	cases := []struct {
		name    string
		amount  uint64
		rate    uint64
		elapsed uint64
		want    uint64
	}{
		{name: "zero rate", amount: 1000, rate: 0, elapsed: SecondsPerYear, want: 1000},
		{name: "zero elapsed", amount: 1000, rate: 954, elapsed: 0, want: 1000},
		{name: "zero amount", amount: 0, rate: 954, elapsed: SecondsPerYear, want: 0},
		{name: "one year at 9.54%", amount: 1000, rate: 954, elapsed: SecondsPerYear, want: 1100},
		{name: "one year at 100% floors", amount: 1_000_000_000_000, rate: BasisPoints, elapsed: SecondsPerYear, want: 2_718_281_828_459},
		{name: "one second at 5%", amount: 1_000_000_000, rate: 500, elapsed: 1, want: 1_000_000_001},
	}
	for _, tc := range cases {
		got, err := Grow(tc.amount, tc.rate, tc.elapsed)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestGrowOverflow(t *testing.T) {
	if _, err := Grow(math.MaxUint64, BasisPoints, SecondsPerYear); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Grow(1, BasisPoints, 50*SecondsPerYear); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow for large exponent, got %v", err)
	}
}

func TestAccrue(t *testing.T) {
	pool := model.Pool{Asset: "USDC", TotalDeposits: 1000, TotalDepositShares: 1000, InterestRate: 954, LastUpdated: 100}
	if err := Accrue(&pool, 100+SecondsPerYear); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if pool.TotalDeposits != 1100 || pool.TotalDepositShares != 1000 {
		t.Fatalf("unexpected totals: %+v", pool)
	}
	if pool.LastUpdated != 100+SecondsPerYear {
		t.Fatalf("last updated = %d", pool.LastUpdated)
	}

	before := pool
	if err := Accrue(&pool, 100+SecondsPerYear); err != nil {
		t.Fatalf("second accrue: %v", err)
	}
	if pool != before {
		t.Fatalf("repeated accrue changed pool: %+v -> %+v", before, pool)
	}
}

func TestAccrueOnlyTouchesDepositsAndClock(t *testing.T) {
	pool := model.Pool{
		Asset: "USDC", TotalDeposits: 5000, TotalDepositShares: 4000,
		TotalBorrowed: 2000, TotalBorrowedShares: 1900, InterestRate: 700, LastUpdated: 0, MaxLTV: 7500,
	}
	want := pool
	if err := Accrue(&pool, 86_400); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	want.TotalDeposits = pool.TotalDeposits
	want.LastUpdated = 86_400
	if pool != want {
		t.Fatalf("unexpected fields changed: %+v", pool)
	}
	if pool.TotalDeposits < 5000 {
		t.Fatalf("deposits shrank: %d", pool.TotalDeposits)
	}
}

func TestAccrueClockSkew(t *testing.T) {
	pool := model.Pool{Asset: "USDC", TotalDeposits: 1000, TotalDepositShares: 1000, InterestRate: 954, LastUpdated: 500}
	before := pool
	if err := Accrue(&pool, 499); !errors.Is(err, ErrClockSkew) {
		t.Fatalf("expected clock skew, got %v", err)
	}
	if pool != before {
		t.Fatalf("pool mutated on error")
	}
}

func TestAccrueOverflowLeavesPool(t *testing.T) {
	pool := model.Pool{Asset: "USDC", TotalDeposits: math.MaxUint64 / 2, TotalDepositShares: 1, InterestRate: BasisPoints}
	before := pool
	if err := Accrue(&pool, SecondsPerYear); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if pool != before {
		t.Fatalf("pool mutated on error")
	}
}
