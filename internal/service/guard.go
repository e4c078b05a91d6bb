package service

import (
	"context"
	"errors"
	"fmt"

	"lendingLedger/internal/ledger"
	"lendingLedger/internal/model"
	"lendingLedger/internal/store"
)

// CollateralGuard keeps withdrawals from undercutting open loans. Debt in the
// withdrawn pool must stay within MaxLTV of the remaining deposit. Debt in
// any other pool blocks the withdrawal outright, since the price it was
// borrowed at is not on record.
func CollateralGuard(st store.Store) WithdrawGuard {
	return func(ctx context.Context, pool model.Pool, pos model.Position, amount uint64) error {
		if pos.BorrowedAmount > 0 {
			limit, err := ledger.MaxBorrow(pos.DepositedAmount, ledger.PriceScale, pool.MaxLTV)
			if err != nil {
				return err
			}
			if pos.BorrowedAmount > limit {
				return fmt.Errorf("debt %d exceeds limit %d of remaining deposit: %w",
					pos.BorrowedAmount, limit, ledger.ErrCollateralInUse)
			}
		}

		pools, err := st.ListPools(ctx)
		if err != nil {
			return fmt.Errorf("list pools: %w", err)
		}
		for _, other := range pools {
			if other.Asset == pool.Asset {
				continue
			}
			debt, err := st.LoadPosition(ctx, other.Asset, pos.Owner)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("load %s position: %w", other.Asset, err)
			}
			if debt.BorrowedShares > 0 {
				return fmt.Errorf("debt outstanding in %s: %w", other.Asset, ledger.ErrCollateralInUse)
			}
		}
		return nil
	}
}
