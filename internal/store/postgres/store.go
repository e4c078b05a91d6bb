package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"lendingLedger/internal/model"
	"lendingLedger/internal/store"
)

// Amounts are unsigned 64-bit, which BIGINT cannot hold, so they live in
// NUMERIC(20,0) columns and cross the wire as text.
const schema = `
CREATE TABLE IF NOT EXISTS lending_pools (
	asset TEXT PRIMARY KEY,
	authority TEXT NOT NULL,
	custody TEXT NOT NULL,
	total_deposits NUMERIC(20,0) NOT NULL,
	total_deposit_shares NUMERIC(20,0) NOT NULL,
	total_borrowed NUMERIC(20,0) NOT NULL,
	total_borrowed_shares NUMERIC(20,0) NOT NULL,
	interest_rate NUMERIC(20,0) NOT NULL,
	last_updated BIGINT NOT NULL,
	max_ltv NUMERIC(20,0) NOT NULL,
	liquidation_threshold NUMERIC(20,0) NOT NULL,
	liquidation_bonus NUMERIC(20,0) NOT NULL,
	liquidation_close_factor NUMERIC(20,0) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS lending_positions (
	asset TEXT NOT NULL REFERENCES lending_pools (asset),
	owner TEXT NOT NULL,
	deposited_amount NUMERIC(20,0) NOT NULL,
	deposited_shares NUMERIC(20,0) NOT NULL,
	borrowed_amount NUMERIC(20,0) NOT NULL,
	borrowed_shares NUMERIC(20,0) NOT NULL,
	last_updated BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (asset, owner)
);
`

const poolColumns = `asset, authority, custody,
	total_deposits::text, total_deposit_shares::text, total_borrowed::text, total_borrowed_shares::text,
	interest_rate::text, last_updated, max_ltv::text, liquidation_threshold::text,
	liquidation_bonus::text, liquidation_close_factor::text`

const positionColumns = `asset, owner,
	deposited_amount::text, deposited_shares::text, borrowed_amount::text, borrowed_shares::text, last_updated`

const uniqueViolation = "23505"

// Store provides Postgres persistence for pools and positions.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the ledger tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPool(row rowScanner) (model.Pool, error) {
	var (
		pool model.Pool
		nums [9]string
	)
	err := row.Scan(&pool.Asset, &pool.Authority, &pool.Custody,
		&nums[0], &nums[1], &nums[2], &nums[3], &nums[4], &pool.LastUpdated,
		&nums[5], &nums[6], &nums[7], &nums[8])
	if err != nil {
		return model.Pool{}, err
	}
	targets := []*uint64{
		&pool.TotalDeposits, &pool.TotalDepositShares, &pool.TotalBorrowed, &pool.TotalBorrowedShares,
		&pool.InterestRate, &pool.MaxLTV, &pool.LiquidationThreshold, &pool.LiquidationBonus, &pool.LiquidationCloseFactor,
	}
	for i, target := range targets {
		if *target, err = strconv.ParseUint(nums[i], 10, 64); err != nil {
			return model.Pool{}, fmt.Errorf("parse pool %s column %d: %w", pool.Asset, i, err)
		}
	}
	return pool, nil
}

func scanPosition(row rowScanner) (model.Position, error) {
	var (
		pos  model.Position
		nums [4]string
	)
	if err := row.Scan(&pos.Asset, &pos.Owner, &nums[0], &nums[1], &nums[2], &nums[3], &pos.LastUpdated); err != nil {
		return model.Position{}, err
	}
	targets := []*uint64{&pos.DepositedAmount, &pos.DepositedShares, &pos.BorrowedAmount, &pos.BorrowedShares}
	for i, target := range targets {
		var err error
		if *target, err = strconv.ParseUint(nums[i], 10, 64); err != nil {
			return model.Position{}, fmt.Errorf("parse position %s/%s column %d: %w", pos.Asset, pos.Owner, i, err)
		}
	}
	return pos, nil
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func (s *Store) LoadPool(ctx context.Context, asset string) (model.Pool, error) {
	pool, err := scanPool(s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM lending_pools WHERE asset=$1`, asset))
	if err != nil {
		return model.Pool{}, notFound(err, "pool "+asset)
	}
	return pool, nil
}

func (s *Store) LoadPosition(ctx context.Context, asset, owner string) (model.Position, error) {
	pos, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM lending_positions WHERE asset=$1 AND owner=$2`, asset, owner))
	if err != nil {
		return model.Position{}, notFound(err, "position "+asset+"/"+owner)
	}
	return pos, nil
}

func (s *Store) ListPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM lending_pools ORDER BY asset`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	pools := make([]model.Pool, 0)
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		pools = append(pools, pool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return pools, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *Store) CreatePool(ctx context.Context, pool model.Pool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lending_pools (
			asset, authority, custody, total_deposits, total_deposit_shares, total_borrowed, total_borrowed_shares,
			interest_rate, last_updated, max_ltv, liquidation_threshold, liquidation_bonus, liquidation_close_factor
		) VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7::text::numeric,
			$8::text::numeric, $9, $10::text::numeric, $11::text::numeric, $12::text::numeric, $13::text::numeric)
	`,
		pool.Asset, pool.Authority, pool.Custody,
		u64(pool.TotalDeposits), u64(pool.TotalDepositShares), u64(pool.TotalBorrowed), u64(pool.TotalBorrowedShares),
		u64(pool.InterestRate), pool.LastUpdated, u64(pool.MaxLTV), u64(pool.LiquidationThreshold),
		u64(pool.LiquidationBonus), u64(pool.LiquidationCloseFactor),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("pool %s: %w", pool.Asset, store.ErrExists)
	}
	if err != nil {
		return fmt.Errorf("insert pool: %w", err)
	}
	return nil
}

func (s *Store) CreatePosition(ctx context.Context, pos model.Position) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var asset string
		if err := tx.QueryRow(ctx, `SELECT asset FROM lending_pools WHERE asset=$1`, pos.Asset).Scan(&asset); err != nil {
			return notFound(err, "pool "+pos.Asset)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO lending_positions (
				asset, owner, deposited_amount, deposited_shares, borrowed_amount, borrowed_shares, last_updated
			) VALUES ($1, $2, $3::text::numeric, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7)
		`,
			pos.Asset, pos.Owner,
			u64(pos.DepositedAmount), u64(pos.DepositedShares), u64(pos.BorrowedAmount), u64(pos.BorrowedShares),
			pos.LastUpdated,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("position %s/%s: %w", pos.Asset, pos.Owner, store.ErrExists)
		}
		if err != nil {
			return fmt.Errorf("insert position: %w", err)
		}
		return nil
	})
}

// Update locks the pool and position rows for the duration of fn.
func (s *Store) Update(ctx context.Context, asset, owner string, fn store.UpdateFunc) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		pool, err := scanPool(tx.QueryRow(ctx,
			`SELECT `+poolColumns+` FROM lending_pools WHERE asset=$1 FOR UPDATE`, asset))
		if err != nil {
			return notFound(err, "pool "+asset)
		}
		pos, err := scanPosition(tx.QueryRow(ctx,
			`SELECT `+positionColumns+` FROM lending_positions WHERE asset=$1 AND owner=$2 FOR UPDATE`, asset, owner))
		if err != nil {
			return notFound(err, "position "+asset+"/"+owner)
		}

		if err := fn(&pool, &pos); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		batch.Queue(`
			UPDATE lending_pools SET
				total_deposits = $2::text::numeric,
				total_deposit_shares = $3::text::numeric,
				total_borrowed = $4::text::numeric,
				total_borrowed_shares = $5::text::numeric,
				last_updated = $6,
				updated_at = now()
			WHERE asset = $1
		`, asset, u64(pool.TotalDeposits), u64(pool.TotalDepositShares), u64(pool.TotalBorrowed), u64(pool.TotalBorrowedShares), pool.LastUpdated)
		batch.Queue(`
			UPDATE lending_positions SET
				deposited_amount = $3::text::numeric,
				deposited_shares = $4::text::numeric,
				borrowed_amount = $5::text::numeric,
				borrowed_shares = $6::text::numeric,
				last_updated = $7,
				updated_at = now()
			WHERE asset = $1 AND owner = $2
		`, asset, owner, u64(pos.DepositedAmount), u64(pos.DepositedShares), u64(pos.BorrowedAmount), u64(pos.BorrowedShares), pos.LastUpdated)

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("write update: %w", err)
			}
		}
		return br.Close()
	})
}
