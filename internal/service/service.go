package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lendingLedger/internal/ledger"
	"lendingLedger/internal/metrics"
	"lendingLedger/internal/model"
	"lendingLedger/internal/store"
	"lendingLedger/internal/transfer"
)

// ErrCommit reports that a transfer executed but the ledger write after it
// failed. The error also says whether the compensating transfer succeeded.
var ErrCommit = errors.New("service: commit failed after transfer")

// WithdrawGuard vets a withdrawal against the pool and position as they
// would be after it. Returning an error cancels the withdrawal. New installs
// CollateralGuard when none is given.
type WithdrawGuard func(ctx context.Context, pool model.Pool, pos model.Position, amount uint64) error

// Options carries the optional collaborators of a Service.
type Options struct {
	Clock         ledger.Clock
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	WithdrawGuard WithdrawGuard
}

// Service runs ledger operations against a store and a transfer backend.
// Each operation holds its asset's lock, runs inside one store transaction
// and executes the transfer before committing.
type Service struct {
	store     store.Store
	transfers transfer.Service
	clock     ledger.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics
	guard     WithdrawGuard
	locks     *keyedLocks
}

func New(st store.Store, transfers transfer.Service, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = ledger.SystemClock{}
	}
	if opts.WithdrawGuard == nil {
		opts.WithdrawGuard = CollateralGuard(st)
	}
	return &Service{
		store:     st,
		transfers: transfers,
		clock:     opts.Clock,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		guard:     opts.WithdrawGuard,
		locks:     newKeyedLocks(),
	}
}

// Outcome is the committed state after a balance-changing operation.
type Outcome struct {
	Pool      model.Pool     `json:"pool"`
	Position  model.Position `json:"position"`
	Amount    uint64         `json:"amount"`
	Shares    uint64         `json:"shares"`
	Reference string         `json:"reference,omitempty"`
	// Pending is set when the transfer was broadcast but not yet confirmed.
	// The ledger records it as executed.
	Pending bool `json:"pending,omitempty"`
}

// BorrowRequest describes a loan against a deposit in CollateralAsset.
// Price is borrow-asset units per ledger.PriceScale collateral units.
type BorrowRequest struct {
	Owner           string `json:"owner"`
	Asset           string `json:"asset"`
	CollateralAsset string `json:"collateral_asset"`
	Price           uint64 `json:"price"`
	Amount          uint64 `json:"amount"`
}

func (s *Service) InitPool(ctx context.Context, params model.PoolParams) (model.Pool, error) {
	start := time.Now()
	pool, err := ledger.NewPool(params, s.clock.Now())
	if err == nil {
		unlock := s.locks.lock(pool.Asset)
		err = s.store.CreatePool(ctx, pool)
		unlock()
	}
	s.observe("init_pool", params.Asset, "", start, err)
	if err != nil {
		return model.Pool{}, err
	}
	s.logger.Info("pool created",
		zap.String("asset", pool.Asset),
		zap.String("custody", pool.Custody),
		zap.Uint64("interest_rate_bps", pool.InterestRate),
		zap.Uint64("max_ltv_bps", pool.MaxLTV),
	)
	return pool, nil
}

func (s *Service) OpenPosition(ctx context.Context, owner, asset string) (model.Position, error) {
	start := time.Now()
	pos, err := ledger.NewPosition(owner, asset, s.clock.Now())
	if err == nil {
		unlock := s.locks.lock(pos.Asset)
		err = s.store.CreatePosition(ctx, pos)
		unlock()
	}
	s.observe("open_position", asset, owner, start, err)
	if err != nil {
		return model.Position{}, err
	}
	return pos, nil
}

func (s *Service) Deposit(ctx context.Context, owner, asset string, amount uint64) (Outcome, error) {
	return s.execute(ctx, "deposit", asset, owner, nil,
		func(ctx context.Context, pool *model.Pool, pos *model.Position, now int64) (ledger.Result, transfer.Request, error) {
			res, err := ledger.Deposit(pool, pos, amount, now)
			return res, transfer.Request{
				From:      owner,
				To:        pool.Custody,
				Authority: transfer.OwnerAuthority(owner),
			}, err
		})
}

func (s *Service) Withdraw(ctx context.Context, owner, asset string, amount uint64) (Outcome, error) {
	return s.execute(ctx, "withdraw", asset, owner, nil,
		func(ctx context.Context, pool *model.Pool, pos *model.Position, now int64) (ledger.Result, transfer.Request, error) {
			p, q := *pool, *pos
			res, err := ledger.Withdraw(&p, &q, amount, now)
			if err != nil {
				return res, transfer.Request{}, err
			}
			if s.guard != nil {
				if err := s.guard(ctx, p, q, amount); err != nil {
					return res, transfer.Request{}, fmt.Errorf("withdraw guard: %w", err)
				}
			}
			*pool, *pos = p, q
			return res, transfer.Request{
				From:      pool.Custody,
				To:        owner,
				Authority: transfer.PoolAuthority(pool.Asset, pool.Custody),
			}, nil
		})
}

func (s *Service) Borrow(ctx context.Context, req BorrowRequest) (Outcome, error) {
	collateralAsset := req.CollateralAsset
	if collateralAsset == "" {
		collateralAsset = req.Asset
	}
	return s.execute(ctx, "borrow", req.Asset, req.Owner, []string{collateralAsset},
		func(ctx context.Context, pool *model.Pool, pos *model.Position, now int64) (ledger.Result, transfer.Request, error) {
			collateral, err := s.collateral(ctx, collateralAsset, *pool, *pos, now)
			if err != nil {
				return ledger.Result{}, transfer.Request{}, err
			}
			res, err := ledger.Borrow(pool, pos, collateral, req.Price, req.Amount, now)
			return res, transfer.Request{
				From:      pool.Custody,
				To:        req.Owner,
				Authority: transfer.PoolAuthority(pool.Asset, pool.Custody),
			}, err
		})
}

func (s *Service) Repay(ctx context.Context, owner, asset string, amount uint64) (Outcome, error) {
	return s.execute(ctx, "repay", asset, owner, nil,
		func(ctx context.Context, pool *model.Pool, pos *model.Position, now int64) (ledger.Result, transfer.Request, error) {
			res, err := ledger.Repay(pool, pos, amount, now)
			return res, transfer.Request{
				From:      owner,
				To:        pool.Custody,
				Authority: transfer.OwnerAuthority(owner),
			}, err
		})
}

// collateral values the owner's deposit in asset at now. When asset is the
// pool being borrowed from, the locked records are used directly.
func (s *Service) collateral(ctx context.Context, asset string, pool model.Pool, pos model.Position, now int64) (uint64, error) {
	if asset != pool.Asset {
		var err error
		if pool, err = s.store.LoadPool(ctx, asset); err != nil {
			return 0, fmt.Errorf("load collateral pool: %w", err)
		}
		pos, err = s.store.LoadPosition(ctx, asset, pos.Owner)
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("load collateral position: %w", err)
		}
	}
	if err := ledger.Accrue(&pool, now); err != nil {
		return 0, err
	}
	if err := ledger.Reconcile(pool, &pos); err != nil {
		return 0, err
	}
	return pos.DepositedAmount, nil
}

type applyFunc func(ctx context.Context, pool *model.Pool, pos *model.Position, now int64) (ledger.Result, transfer.Request, error)

func (s *Service) execute(ctx context.Context, op, asset, owner string, extraLocks []string, apply applyFunc) (Outcome, error) {
	start := time.Now()
	unlock := s.locks.lock(append([]string{asset}, extraLocks...)...)
	defer unlock()

	var (
		out      Outcome
		executed *transfer.Request
	)
	now := s.clock.Now()
	err := s.store.Update(ctx, asset, owner, func(pool *model.Pool, pos *model.Position) error {
		res, req, err := apply(ctx, pool, pos, now)
		if err != nil {
			return err
		}
		req.Operation = op
		req.Asset = asset
		req.Amount = res.Amount
		receipt, err := s.transfers.Transfer(ctx, req)
		pending := errors.Is(err, transfer.ErrTransferPending)
		if err != nil && !pending {
			return err
		}
		executed = &req
		out = Outcome{Pool: *pool, Position: *pos, Amount: res.Amount, Shares: res.Shares, Reference: receipt.Reference, Pending: pending}
		if pending {
			s.logger.Warn("transfer pending, recording it as executed",
				zap.String("operation", op),
				zap.String("asset", asset),
				zap.String("owner", owner),
				zap.String("reference", receipt.Reference),
				zap.Error(err),
			)
		}
		return nil
	})
	if err != nil && executed != nil {
		err = s.compensate(ctx, *executed, err)
	}
	outcome := classify(err)
	if err == nil && out.Pending {
		outcome = metrics.OutcomePending
	}
	s.record(op, asset, owner, outcome, start, err)
	if err != nil {
		return Outcome{}, err
	}

	s.metrics.SetPoolTotals(asset, out.Pool.TotalDeposits, out.Pool.TotalBorrowed)
	s.logger.Info(op,
		zap.String("asset", asset),
		zap.String("owner", owner),
		zap.Uint64("amount", out.Amount),
		zap.Uint64("shares", out.Shares),
		zap.Uint64("total_deposits", out.Pool.TotalDeposits),
		zap.Uint64("total_borrowed", out.Pool.TotalBorrowed),
		zap.String("reference", out.Reference),
	)
	return out, nil
}

// compensate reverses a transfer whose ledger commit failed.
func (s *Service) compensate(ctx context.Context, executed transfer.Request, commitErr error) error {
	reverse := executed.Reverse()
	_, revErr := s.transfers.Transfer(context.WithoutCancel(ctx), reverse)
	s.metrics.ObserveCompensation(executed.Operation, revErr == nil)
	if revErr != nil {
		s.logger.Error("compensating transfer not confirmed",
			zap.String("operation", executed.Operation),
			zap.String("asset", executed.Asset),
			zap.String("from", reverse.From),
			zap.String("to", reverse.To),
			zap.Uint64("amount", reverse.Amount),
			zap.NamedError("commit_error", commitErr),
			zap.Error(revErr),
		)
		if errors.Is(revErr, transfer.ErrTransferPending) {
			return fmt.Errorf("%w: %w; compensating transfer pending: %w", ErrCommit, commitErr, revErr)
		}
		return fmt.Errorf("%w: %w; compensating transfer failed: %w", ErrCommit, commitErr, revErr)
	}
	s.logger.Warn("transfer reversed after failed commit",
		zap.String("operation", executed.Operation),
		zap.String("asset", executed.Asset),
		zap.Uint64("amount", executed.Amount),
		zap.Error(commitErr),
	)
	return fmt.Errorf("%w: %w; transfer reversed", ErrCommit, commitErr)
}

func classify(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case ledger.IsInternalFault(err), errors.Is(err, ErrCommit):
		return metrics.OutcomeFault
	case errors.Is(err, transfer.ErrTransfer):
		return metrics.OutcomeTransfer
	default:
		return metrics.OutcomeRejected
	}
}

func (s *Service) observe(op, asset, owner string, start time.Time, err error) {
	s.record(op, asset, owner, classify(err), start, err)
}

func (s *Service) record(op, asset, owner, outcome string, start time.Time, err error) {
	s.metrics.ObserveOperation(op, outcome, time.Since(start))
	switch outcome {
	case metrics.OutcomeOK, metrics.OutcomePending:
	case metrics.OutcomeRejected:
		s.logger.Warn(op+" rejected", zap.String("asset", asset), zap.String("owner", owner), zap.Error(err))
	default:
		s.logger.Error(op+" failed",
			zap.String("asset", asset),
			zap.String("owner", owner),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
	}
}
