package service

import (
	"context"
	"errors"
	"fmt"

	"lendingLedger/internal/ledger"
	"lendingLedger/internal/model"
	"lendingLedger/internal/transfer"
)

// PoolView is a pool accrued to the current time plus derived rates.
type PoolView struct {
	model.Pool
	Utilization string `json:"utilization"`
	SharePrice  string `json:"share_price"`
	SupplyAPY   string `json:"supply_apy"`
}

// accrued returns pool grown to now without persisting it. A clock behind
// the last accrual leaves the stored values as they are.
func (s *Service) accrued(pool model.Pool) model.Pool {
	grown := pool
	if err := ledger.Accrue(&grown, s.clock.Now()); err != nil {
		return pool
	}
	return grown
}

func (s *Service) view(pool model.Pool) (PoolView, error) {
	pool = s.accrued(pool)
	apy, err := ledger.SupplyAPY(pool)
	if err != nil {
		return PoolView{}, fmt.Errorf("supply apy for %s: %w", pool.Asset, err)
	}
	return PoolView{
		Pool:        pool,
		Utilization: ledger.Utilization(pool),
		SharePrice:  ledger.SharePrice(pool),
		SupplyAPY:   apy,
	}, nil
}

func (s *Service) Pool(ctx context.Context, asset string) (PoolView, error) {
	pool, err := s.store.LoadPool(ctx, asset)
	if err != nil {
		return PoolView{}, err
	}
	return s.view(pool)
}

func (s *Service) Pools(ctx context.Context) ([]PoolView, error) {
	pools, err := s.store.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]PoolView, 0, len(pools))
	for _, pool := range pools {
		v, err := s.view(pool)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Position returns the owner's position valued at the current share prices.
func (s *Service) Position(ctx context.Context, asset, owner string) (model.Position, error) {
	pool, err := s.store.LoadPool(ctx, asset)
	if err != nil {
		return model.Position{}, err
	}
	pos, err := s.store.LoadPosition(ctx, asset, owner)
	if err != nil {
		return model.Position{}, err
	}
	if err := ledger.Reconcile(s.accrued(pool), &pos); err != nil {
		return model.Position{}, err
	}
	return pos, nil
}

// ErrMintUnsupported is returned when the transfer backend cannot mint.
var ErrMintUnsupported = errors.New("service: transfer backend cannot mint")

// Mint funds an account on backends that support it.
func (s *Service) Mint(ctx context.Context, account, asset string, amount uint64) error {
	minter, ok := s.transfers.(transfer.Minter)
	if !ok {
		return ErrMintUnsupported
	}
	if err := minter.Mint(ctx, account, asset, amount); err != nil {
		return err
	}
	return nil
}
