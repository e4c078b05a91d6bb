package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lendingLedger/internal/ledger"
)

func TestDefaultGuardKeepsCollateralForLoan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, Options{})
	h.initPool(t, usdc, custody, 0, 5_000)

	h.fund(t, bob, usdc, 1_000)
	_, err := h.svc.Deposit(ctx, bob, usdc, 1_000)
	require.NoError(t, err)
	h.fund(t, alice, usdc, 1_000)
	_, err = h.svc.Deposit(ctx, alice, usdc, 1_000)
	require.NoError(t, err)
	_, err = h.svc.Borrow(ctx, BorrowRequest{Owner: alice, Asset: usdc, Price: ledger.PriceScale, Amount: 400})
	require.NoError(t, err)

	_, err = h.svc.Withdraw(ctx, alice, usdc, 1_000)
	require.ErrorIs(t, err, ledger.ErrCollateralInUse)
	require.Equal(t, uint64(400), h.book.Balance(alice, usdc))

	out, err := h.svc.Withdraw(ctx, alice, usdc, 200)
	require.NoError(t, err, "800 at 50% still covers 400")
	require.Equal(t, uint64(800), out.Position.DepositedAmount)

	_, err = h.svc.Withdraw(ctx, alice, usdc, 1)
	require.ErrorIs(t, err, ledger.ErrCollateralInUse)

	_, err = h.svc.Repay(ctx, alice, usdc, 400)
	require.NoError(t, err)
	_, err = h.svc.Withdraw(ctx, alice, usdc, 800)
	require.NoError(t, err)
	require.Equal(t, uint64(800), h.book.Balance(alice, usdc))
}

func TestDefaultGuardBlocksCrossAssetCollateral(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, Options{})
	h.initPool(t, usdc, custody, 0, 7_500)
	h.initPool(t, eth, "pool-eth", 0, 7_500)

	h.fund(t, bob, usdc, 1_000)
	_, err := h.svc.Deposit(ctx, bob, usdc, 1_000)
	require.NoError(t, err)
	h.fund(t, alice, eth, 100)
	_, err = h.svc.Deposit(ctx, alice, eth, 100)
	require.NoError(t, err)
	_, err = h.svc.OpenPosition(ctx, alice, usdc)
	require.NoError(t, err)
	_, err = h.svc.Borrow(ctx, BorrowRequest{Owner: alice, Asset: usdc, CollateralAsset: eth, Price: 2 * ledger.PriceScale, Amount: 100})
	require.NoError(t, err)

	_, err = h.svc.Withdraw(ctx, alice, eth, 1)
	require.ErrorIs(t, err, ledger.ErrCollateralInUse)
	require.Zero(t, h.book.Balance(alice, eth))

	_, err = h.svc.Repay(ctx, alice, usdc, 100)
	require.NoError(t, err)
	_, err = h.svc.Withdraw(ctx, alice, eth, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(100), h.book.Balance(alice, eth))
}
