package store

import (
	"context"
	"errors"

	"lendingLedger/internal/model"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrExists   = errors.New("store: record already exists")
)

// UpdateFunc mutates one pool and one position. Returning an error discards
// every change.
type UpdateFunc func(pool *model.Pool, pos *model.Position) error

// Store persists pools and positions.
type Store interface {
	LoadPool(ctx context.Context, asset string) (model.Pool, error)
	LoadPosition(ctx context.Context, asset, owner string) (model.Position, error)
	ListPools(ctx context.Context) ([]model.Pool, error)
	CreatePool(ctx context.Context, pool model.Pool) error
	CreatePosition(ctx context.Context, pos model.Position) error
	// Update loads the pool and the owner's position, runs fn and writes
	// both back in one transaction if fn succeeds.
	Update(ctx context.Context, asset, owner string, fn UpdateFunc) error
	Close() error
}

func positionKey(asset, owner string) string {
	return asset + "\x00" + owner
}
