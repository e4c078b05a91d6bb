package ledger

import (
	"fmt"
	"strings"

	"lendingLedger/internal/model"
)

// PriceScale is the denominator of the caller-supplied collateral price:
// price is the number of borrow-asset units worth PriceScale collateral units.
const PriceScale = 1_000_000

// MaxInterestRate caps the annual rate at 1000% so a year of accrual, and
// the supply APY derived from it, stay well inside the exp domain.
const MaxInterestRate = 100_000

// ValidateParams checks the risk parameters of a new pool.
func ValidateParams(params model.PoolParams) error {
	switch {
	case strings.TrimSpace(params.Asset) == "":
		return fmt.Errorf("asset is required: %w", ErrInvalidParams)
	case strings.TrimSpace(params.Custody) == "":
		return fmt.Errorf("custody is required: %w", ErrInvalidParams)
	case params.InterestRate > MaxInterestRate:
		return fmt.Errorf("interest rate %d bps above %d: %w", params.InterestRate, MaxInterestRate, ErrInvalidParams)
	case params.MaxLTV > BasisPoints:
		return fmt.Errorf("max ltv %d bps above 100%%: %w", params.MaxLTV, ErrInvalidParams)
	case params.LiquidationThreshold > BasisPoints:
		return fmt.Errorf("liquidation threshold %d bps above 100%%: %w", params.LiquidationThreshold, ErrInvalidParams)
	case params.LiquidationThreshold < params.MaxLTV:
		return fmt.Errorf("liquidation threshold %d below max ltv %d: %w", params.LiquidationThreshold, params.MaxLTV, ErrInvalidParams)
	case params.LiquidationCloseFactor > BasisPoints:
		return fmt.Errorf("close factor %d bps above 100%%: %w", params.LiquidationCloseFactor, ErrInvalidParams)
	}
	return nil
}

// NewPool builds an empty pool whose accrual clock starts at now.
func NewPool(params model.PoolParams, now int64) (model.Pool, error) {
	if err := ValidateParams(params); err != nil {
		return model.Pool{}, err
	}
	return model.Pool{
		Asset:                  strings.TrimSpace(params.Asset),
		Authority:              strings.TrimSpace(params.Authority),
		Custody:                strings.TrimSpace(params.Custody),
		InterestRate:           params.InterestRate,
		LastUpdated:            now,
		MaxLTV:                 params.MaxLTV,
		LiquidationThreshold:   params.LiquidationThreshold,
		LiquidationBonus:       params.LiquidationBonus,
		LiquidationCloseFactor: params.LiquidationCloseFactor,
	}, nil
}

// NewPosition builds an empty position for owner in asset.
func NewPosition(owner, asset string, now int64) (model.Position, error) {
	owner = strings.TrimSpace(owner)
	asset = strings.TrimSpace(asset)
	if owner == "" || asset == "" {
		return model.Position{}, fmt.Errorf("owner and asset are required: %w", ErrInvalidParams)
	}
	return model.Position{Owner: owner, Asset: asset, LastUpdated: now}, nil
}
