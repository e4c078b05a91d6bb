package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"lendingLedger/internal/ledger"
)

// Store backends.
const (
	StoreFile     = "file"
	StoreLevelDB  = "leveldb"
	StorePostgres = "postgres"
)

// Transfer backends.
const (
	TransferBook  = "book"
	TransferChain = "chain"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Store         string
	StorePath     string
	PGDSN         string
	Transfer      string
	BookPath      string
	Journal       string
	RPCURL        string
	Keyring       string
	Confirmations uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	Listen        string
	LogLevel      string
	LogFile       string
	Now           string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LENDING")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", StoreFile)
	v.SetDefault("store-path", "./data/ledger.json")
	v.SetDefault("transfer", TransferBook)
	v.SetDefault("book-path", "./data/book.json")
	v.SetDefault("confirmations", uint64(1))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("listen", ":8080")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Store:         strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		StorePath:     v.GetString("store-path"),
		PGDSN:         v.GetString("pg-dsn"),
		Transfer:      strings.ToLower(strings.TrimSpace(v.GetString("transfer"))),
		BookPath:      v.GetString("book-path"),
		Journal:       v.GetString("journal"),
		RPCURL:        v.GetString("rpc"),
		Keyring:       v.GetString("keyring"),
		Confirmations: v.GetUint64("confirmations"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		Listen:        v.GetString("listen"),
		LogLevel:      v.GetString("log-level"),
		LogFile:       v.GetString("log-file"),
		Now:           v.GetString("now"),
	}

	return cfg, cfg.Validate()
}

// Validate checks backend selections and the settings they require.
func (c Config) Validate() error {
	switch c.Store {
	case StoreFile:
	case StoreLevelDB:
		if c.StorePath == "" {
			return fmt.Errorf("store-path is required for the leveldb store")
		}
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	switch c.Transfer {
	case TransferBook:
	case TransferChain:
		if c.RPCURL == "" {
			return fmt.Errorf("rpc is required for the chain transfer backend")
		}
		if c.Keyring == "" {
			return fmt.Errorf("keyring is required for the chain transfer backend")
		}
	default:
		return fmt.Errorf("unknown transfer backend %q", c.Transfer)
	}

	if _, err := ParseTimestamp(c.Now); err != nil {
		return fmt.Errorf("parse now: %w", err)
	}
	return nil
}

// Clock returns a fixed clock when Now is set and the system clock otherwise.
func (c Config) Clock() (ledger.Clock, error) {
	if strings.TrimSpace(c.Now) == "" {
		return ledger.SystemClock{}, nil
	}
	ts, err := ParseTimestamp(c.Now)
	if err != nil {
		return nil, fmt.Errorf("parse now: %w", err)
	}
	return ledger.FixedClock(ts), nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (int64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return tm.Unix(), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
