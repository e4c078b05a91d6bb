package ledger

import (
	"strings"
	"testing"

	"lendingLedger/internal/model"
)

func TestUtilization(t *testing.T) {
	pool := model.Pool{TotalDeposits: 4000, TotalBorrowed: 1000}
	if got := Utilization(pool); got != "0.250000000000000000" {
		t.Fatalf("utilization = %s", got)
	}
	if got := Utilization(model.Pool{}); got != "0.000000000000000000" {
		t.Fatalf("empty utilization = %s", got)
	}
}

func TestSharePrice(t *testing.T) {
	if got := SharePrice(model.Pool{}); got != "1.000000000000000000" {
		t.Fatalf("bootstrap price = %s", got)
	}
	if got := SharePrice(model.Pool{TotalDeposits: 1100, TotalDepositShares: 1000}); got != "1.100000000000000000" {
		t.Fatalf("price = %s", got)
	}
}

func TestSupplyAPY(t *testing.T) {
	got, err := SupplyAPY(model.Pool{InterestRate: BasisPoints})
	if err != nil {
		t.Fatalf("apy: %v", err)
	}
	if got != "1.718281828459045235" {
		t.Fatalf("apy at 100%% = %s", got)
	}

	got, err = SupplyAPY(model.Pool{InterestRate: 954})
	if err != nil {
		t.Fatalf("apy: %v", err)
	}
	if !strings.HasPrefix(got, "0.10009") {
		t.Fatalf("apy at 9.54%% = %s", got)
	}
}
