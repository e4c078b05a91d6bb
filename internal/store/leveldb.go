package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"lendingLedger/internal/model"
)

const (
	poolKeyPrefix     = "pool:"
	positionKeyPrefix = "position:"
)

// LevelStore persists records in LevelDB. Each Update is written as a single
// synced batch.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore opens (or creates) a LevelDB database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("leveldb store path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb store: %w", err)
	}
	return NewLevelStore(db), nil
}

// NewLevelStore wraps an already open database.
func NewLevelStore(db *leveldb.DB) *LevelStore {
	return &LevelStore{db: db}
}

func levelPoolKey(asset string) []byte {
	return []byte(poolKeyPrefix + asset)
}

func levelPositionKey(asset, owner string) []byte {
	return []byte(positionKeyPrefix + positionKey(asset, owner))
}

func (s *LevelStore) get(key []byte, out any, what string) error {
	data, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", what, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}

func (s *LevelStore) has(key []byte) (bool, error) {
	ok, err := s.db.Has(key, nil)
	if err != nil {
		return false, fmt.Errorf("check key: %w", err)
	}
	return ok, nil
}

func (s *LevelStore) LoadPool(ctx context.Context, asset string) (model.Pool, error) {
	var pool model.Pool
	if err := s.get(levelPoolKey(asset), &pool, "pool "+asset); err != nil {
		return model.Pool{}, err
	}
	return pool, nil
}

func (s *LevelStore) LoadPosition(ctx context.Context, asset, owner string) (model.Position, error) {
	var pos model.Position
	if err := s.get(levelPositionKey(asset, owner), &pos, "position "+asset+"/"+owner); err != nil {
		return model.Position{}, err
	}
	return pos, nil
}

func (s *LevelStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(poolKeyPrefix)), nil)
	defer iter.Release()

	pools := make([]model.Pool, 0)
	for iter.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		var pool model.Pool
		if err := json.Unmarshal(iter.Value(), &pool); err != nil {
			return nil, fmt.Errorf("decode pool %s: %w", strings.TrimPrefix(string(iter.Key()), poolKeyPrefix), err)
		}
		pools = append(pools, pool)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate pools: %w", err)
	}
	return pools, nil
}

// CreatePool and CreatePosition check-then-put without a transaction; the
// service serializes them per asset.
func (s *LevelStore) CreatePool(ctx context.Context, pool model.Pool) error {
	key := levelPoolKey(pool.Asset)
	exists, err := s.has(key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("pool %s: %w", pool.Asset, ErrExists)
	}
	data, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("encode pool: %w", err)
	}
	if err := s.db.Put(key, data, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("store pool: %w", err)
	}
	return nil
}

func (s *LevelStore) CreatePosition(ctx context.Context, pos model.Position) error {
	poolExists, err := s.has(levelPoolKey(pos.Asset))
	if err != nil {
		return err
	}
	if !poolExists {
		return fmt.Errorf("pool %s: %w", pos.Asset, ErrNotFound)
	}
	key := levelPositionKey(pos.Asset, pos.Owner)
	exists, err := s.has(key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("position %s/%s: %w", pos.Asset, pos.Owner, ErrExists)
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}
	if err := s.db.Put(key, data, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("store position: %w", err)
	}
	return nil
}

func (s *LevelStore) Update(ctx context.Context, asset, owner string, fn UpdateFunc) error {
	pool, err := s.LoadPool(ctx, asset)
	if err != nil {
		return err
	}
	pos, err := s.LoadPosition(ctx, asset, owner)
	if err != nil {
		return err
	}
	if err := fn(&pool, &pos); err != nil {
		return err
	}

	poolData, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("encode pool: %w", err)
	}
	posData, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Put(levelPoolKey(asset), poolData)
	batch.Put(levelPositionKey(asset, owner), posData)
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// Close releases the underlying LevelDB resources.
func (s *LevelStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
