package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lendingLedger/internal/api"
	"lendingLedger/internal/model"
	"lendingLedger/internal/service"
)

// withApp wires the components for a command and closes them afterwards.
func withApp(run func(ctx context.Context, a *app, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(ctx, a, cmd)
	}
}

func ownerAssetFlags(cmd *cobra.Command) {
	cmd.Flags().String("owner", "", "position owner")
	cmd.Flags().String("asset", "", "pool asset")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("asset")
}

func ownerAsset(cmd *cobra.Command) (string, string) {
	owner, _ := cmd.Flags().GetString("owner")
	asset, _ := cmd.Flags().GetString("asset")
	return owner, asset
}

func initPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-pool",
		Short: "Create a lending pool for an asset",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			f := cmd.Flags()
			var params model.PoolParams
			params.Asset, _ = f.GetString("asset")
			params.Authority, _ = f.GetString("authority")
			params.Custody, _ = f.GetString("custody")
			params.InterestRate, _ = f.GetUint64("interest-rate")
			params.MaxLTV, _ = f.GetUint64("max-ltv")
			params.LiquidationThreshold, _ = f.GetUint64("liquidation-threshold")
			params.LiquidationBonus, _ = f.GetUint64("liquidation-bonus")
			params.LiquidationCloseFactor, _ = f.GetUint64("close-factor")

			pool, err := a.svc.InitPool(ctx, params)
			if err != nil {
				return err
			}
			return printJSON(pool)
		}),
	}
	cmd.Flags().String("asset", "", "pool asset")
	cmd.Flags().String("authority", "", "pool administrator")
	cmd.Flags().String("custody", "", "custody account holding pool funds")
	cmd.Flags().Uint64("interest-rate", 0, "annual deposit growth rate (bps)")
	cmd.Flags().Uint64("max-ltv", 5_000, "maximum loan-to-value (bps)")
	cmd.Flags().Uint64("liquidation-threshold", 8_000, "liquidation threshold (bps)")
	cmd.Flags().Uint64("liquidation-bonus", 500, "liquidation bonus (bps)")
	cmd.Flags().Uint64("close-factor", 5_000, "liquidation close factor (bps)")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("custody")
	return cmd
}

func openPositionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open-position",
		Short: "Open an empty position in a pool",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			owner, asset := ownerAsset(cmd)
			pos, err := a.svc.OpenPosition(ctx, owner, asset)
			if err != nil {
				return err
			}
			return printJSON(pos)
		}),
	}
	ownerAssetFlags(cmd)
	return cmd
}

func (a *app) deposit(ctx context.Context, owner, asset string, amount uint64) (service.Outcome, error) {
	return a.svc.Deposit(ctx, owner, asset, amount)
}

func (a *app) withdraw(ctx context.Context, owner, asset string, amount uint64) (service.Outcome, error) {
	return a.svc.Withdraw(ctx, owner, asset, amount)
}

func (a *app) repay(ctx context.Context, owner, asset string, amount uint64) (service.Outcome, error) {
	return a.svc.Repay(ctx, owner, asset, amount)
}

func amountCmd(use, short string, op func(*app, context.Context, string, string, uint64) (service.Outcome, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			owner, asset := ownerAsset(cmd)
			amount, _ := cmd.Flags().GetUint64("amount")
			out, err := op(a, ctx, owner, asset, amount)
			if err != nil {
				return err
			}
			return printJSON(out)
		}),
	}
	ownerAssetFlags(cmd)
	cmd.Flags().Uint64("amount", 0, "amount in asset base units")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func borrowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "borrow",
		Short: "Borrow against a deposit",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			owner, asset := ownerAsset(cmd)
			req := service.BorrowRequest{Owner: owner, Asset: asset}
			req.CollateralAsset, _ = cmd.Flags().GetString("collateral-asset")
			req.Price, _ = cmd.Flags().GetUint64("price")
			req.Amount, _ = cmd.Flags().GetUint64("amount")
			out, err := a.svc.Borrow(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(out)
		}),
	}
	ownerAssetFlags(cmd)
	cmd.Flags().Uint64("amount", 0, "amount to borrow in asset base units")
	cmd.Flags().String("collateral-asset", "", "asset of the collateral deposit (defaults to --asset)")
	cmd.Flags().Uint64("price", 1_000_000, "borrow-asset units per 1e6 collateral units")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func mintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Fund an account on the custody book",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			owner, asset := ownerAsset(cmd)
			amount, _ := cmd.Flags().GetUint64("amount")
			if err := a.svc.Mint(ctx, owner, asset, amount); err != nil {
				return err
			}
			a.logger.Info("minted", zap.String("account", owner), zap.String("asset", asset), zap.Uint64("amount", amount))
			return nil
		}),
	}
	ownerAssetFlags(cmd)
	cmd.Flags().Uint64("amount", 0, "amount in asset base units")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print pools, one pool, or one position",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			owner, asset := ownerAsset(cmd)
			switch {
			case asset == "":
				pools, err := a.svc.Pools(ctx)
				if err != nil {
					return err
				}
				return printJSON(pools)
			case owner == "":
				pool, err := a.svc.Pool(ctx, asset)
				if err != nil {
					return err
				}
				return printJSON(pool)
			default:
				pos, err := a.svc.Position(ctx, asset, owner)
				if err != nil {
					return err
				}
				return printJSON(pos)
			}
		}),
	}
	cmd.Flags().String("owner", "", "position owner")
	cmd.Flags().String("asset", "", "pool asset")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command) error {
			if a.cfg.Listen == "" {
				return fmt.Errorf("listen address is required")
			}
			srv := &http.Server{
				Addr:              a.cfg.Listen,
				Handler:           api.NewHandler(a.svc, api.Options{Logger: a.logger, Metrics: a.metrics}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("http api listening",
					zap.String("listen", a.cfg.Listen),
					zap.String("store", a.cfg.Store),
					zap.String("transfer", a.cfg.Transfer),
				)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.logger.Info("http api shutting down")
			return srv.Shutdown(shutdownCtx)
		}),
	}
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	return cmd
}
