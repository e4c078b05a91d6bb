package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lendingLedger/internal/chain"
	"lendingLedger/internal/config"
	"lendingLedger/internal/metrics"
	"lendingLedger/internal/service"
	"lendingLedger/internal/store"
	"lendingLedger/internal/store/postgres"
	"lendingLedger/internal/transfer"
)

// app holds the wired components of one command invocation.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	svc     *service.Service
	closers []func() error
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	clock, err := a.cfg.Clock()
	if err != nil {
		return err
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	transfers, err := a.openTransfers(ctx)
	if err != nil {
		return err
	}
	a.svc = service.New(st, transfers, service.Options{
		Clock:         clock,
		Logger:        a.logger,
		Metrics:       a.metrics,
		WithdrawGuard: service.CollateralGuard(st),
	})
	return nil
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch a.cfg.Store {
	case config.StoreFile:
		st, err = store.OpenFileStore(a.cfg.StorePath)
	case config.StoreLevelDB:
		st, err = store.OpenLevelStore(a.cfg.StorePath)
	case config.StorePostgres:
		var pg *postgres.Store
		pg, err = postgres.NewStore(ctx, a.cfg.PGDSN)
		if err == nil {
			if serr := pg.EnsureSchema(ctx); serr != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("ensure schema: %w", serr)
			}
			st = pg
		}
	default:
		return nil, fmt.Errorf("unknown store %q", a.cfg.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Store, err)
	}
	a.closers = append(a.closers, st.Close)
	a.logger.Debug("store opened", zap.String("store", a.cfg.Store), zap.String("path", a.cfg.StorePath))
	return st, nil
}

func (a *app) openTransfers(ctx context.Context) (transfer.Service, error) {
	var backend transfer.Service
	switch a.cfg.Transfer {
	case config.TransferBook:
		book, err := transfer.OpenBook(a.cfg.BookPath)
		if err != nil {
			return nil, err
		}
		backend = book
	case config.TransferChain:
		keys, err := transfer.LoadKeyring(a.cfg.Keyring)
		if err != nil {
			return nil, err
		}
		client, err := chain.NewClient(ctx, a.cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		a.closers = append(a.closers, func() error {
			client.Close()
			return nil
		})
		backend = transfer.NewERC20(client, keys, transfer.ERC20Options{
			Confirmations: a.cfg.Confirmations,
			MaxRetries:    a.cfg.MaxRetries,
			RetryBackoff:  a.cfg.RetryBackoff,
		}, a.logger)
		a.logger.Info("chain transfers enabled",
			zap.String("rpc", a.cfg.RPCURL),
			zap.Int("keys", len(keys.Addresses())),
			zap.Uint64("confirmations", a.cfg.Confirmations),
		)
	default:
		return nil, fmt.Errorf("unknown transfer backend %q", a.cfg.Transfer)
	}

	if a.cfg.Journal != "" {
		backend = transfer.NewJournal(backend, a.cfg.Journal, a.logger)
	}
	return backend, nil
}

// Close releases every opened resource in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
