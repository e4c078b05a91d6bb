package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	root := &cobra.Command{
		Use:          "lending",
		Short:        "Share-based lending pool ledger",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file path")
	pf.String("store", "file", "account store (file, leveldb, postgres)")
	pf.String("store-path", "./data/ledger.json", "file or leveldb store location")
	pf.String("pg-dsn", "", "Postgres DSN")
	pf.String("transfer", "book", "transfer backend (book, chain)")
	pf.String("book-path", "./data/book.json", "custody book snapshot path")
	pf.String("journal", "", "optional JSONL transfer journal path")
	pf.String("rpc", "", "EVM RPC URL for the chain backend")
	pf.String("keyring", "", "keyring file with hex private keys")
	pf.Uint64("confirmations", 1, "blocks to wait for a transfer receipt")
	pf.Int("max-retries", 5, "maximum retry attempts")
	pf.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-file", "", "rotate logs into this file instead of stderr")
	pf.String("now", "", "fixed clock (unix seconds or RFC3339)")

	root.AddCommand(
		initPoolCmd(),
		openPositionCmd(),
		amountCmd("deposit", "Deposit assets into a pool", (*app).deposit),
		amountCmd("withdraw", "Withdraw deposited assets", (*app).withdraw),
		borrowCmd(),
		amountCmd("repay", "Repay borrowed assets", (*app).repay),
		mintCmd(),
		showCmd(),
		serveCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level, file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if file == "" {
		return cfg.Build()
	}
	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), sink, cfg.Level)
	return zap.New(core, zap.AddCaller()), nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}
