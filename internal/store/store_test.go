package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"lendingLedger/internal/model"
)

var errRejected = errors.New("rejected")

// exerciseStore runs the behaviour every Store implementation shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.LoadPool(ctx, "USDC")
	require.ErrorIs(t, err, ErrNotFound)

	err = s.CreatePosition(ctx, model.Position{Owner: "alice", Asset: "USDC"})
	require.ErrorIs(t, err, ErrNotFound)

	usdc := model.Pool{Asset: "USDC", Custody: "vault", InterestRate: 500, MaxLTV: 7500, LiquidationThreshold: 8000, LastUpdated: 10}
	require.NoError(t, s.CreatePool(ctx, usdc))
	require.ErrorIs(t, s.CreatePool(ctx, usdc), ErrExists)
	require.NoError(t, s.CreatePool(ctx, model.Pool{Asset: "ETH", Custody: "vault"}))

	pools, err := s.ListPools(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 2)
	require.Equal(t, "ETH", pools[0].Asset)
	require.Equal(t, usdc, pools[1])

	alice := model.Position{Owner: "alice", Asset: "USDC", LastUpdated: 10}
	require.NoError(t, s.CreatePosition(ctx, alice))
	require.ErrorIs(t, s.CreatePosition(ctx, alice), ErrExists)

	_, err = s.LoadPosition(ctx, "USDC", "bob")
	require.ErrorIs(t, err, ErrNotFound)

	err = s.Update(ctx, "USDC", "alice", func(pool *model.Pool, pos *model.Position) error {
		pool.TotalDeposits, pool.TotalDepositShares, pool.LastUpdated = 1000, 1000, 20
		pos.DepositedAmount, pos.DepositedShares, pos.LastUpdated = 1000, 1000, 20
		return nil
	})
	require.NoError(t, err)

	pool, err := s.LoadPool(ctx, "USDC")
	require.NoError(t, err)
	require.Equal(t, uint64(1000), pool.TotalDeposits)
	require.Equal(t, int64(20), pool.LastUpdated)
	pos, err := s.LoadPosition(ctx, "USDC", "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(1000), pos.DepositedShares)

	err = s.Update(ctx, "USDC", "alice", func(pool *model.Pool, pos *model.Position) error {
		pool.TotalDeposits = 1
		pos.DepositedAmount = 1
		return errRejected
	})
	require.ErrorIs(t, err, errRejected)
	pool, err = s.LoadPool(ctx, "USDC")
	require.NoError(t, err)
	require.Equal(t, uint64(1000), pool.TotalDeposits)

	err = s.Update(ctx, "USDC", "bob", func(*model.Pool, *model.Position) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)
}
