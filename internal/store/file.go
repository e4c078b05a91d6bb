package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"lendingLedger/internal/model"
)

// FileStore keeps every record in memory and snapshots them to a JSON file
// after each write. An empty path keeps the store purely in memory.
type FileStore struct {
	path string

	mu        sync.RWMutex
	pools     map[string]model.Pool
	positions map[string]model.Position
}

type snapshot struct {
	Pools     []model.Pool     `json:"pools"`
	Positions []model.Position `json:"positions"`
	UpdatedAt string           `json:"updated_at"`
}

// OpenFileStore loads the snapshot at path if it exists.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:      path,
		pools:     make(map[string]model.Pool),
		positions: make(map[string]model.Position),
	}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse store: %w", err)
	}
	for _, pool := range snap.Pools {
		s.pools[pool.Asset] = pool
	}
	for _, pos := range snap.Positions {
		s.positions[positionKey(pos.Asset, pos.Owner)] = pos
	}
	return s, nil
}

func (s *FileStore) LoadPool(ctx context.Context, asset string) (model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[asset]
	if !ok {
		return model.Pool{}, fmt.Errorf("pool %s: %w", asset, ErrNotFound)
	}
	return pool, nil
}

func (s *FileStore) LoadPosition(ctx context.Context, asset, owner string) (model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[positionKey(asset, owner)]
	if !ok {
		return model.Position{}, fmt.Errorf("position %s/%s: %w", asset, owner, ErrNotFound)
	}
	return pos, nil
}

func (s *FileStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Pool, 0, len(s.pools))
	for _, pool := range s.pools {
		out = append(out, pool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

func (s *FileStore) CreatePool(ctx context.Context, pool model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[pool.Asset]; ok {
		return fmt.Errorf("pool %s: %w", pool.Asset, ErrExists)
	}
	s.pools[pool.Asset] = pool
	if err := s.persistLocked(); err != nil {
		delete(s.pools, pool.Asset)
		return err
	}
	return nil
}

func (s *FileStore) CreatePosition(ctx context.Context, pos model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[pos.Asset]; !ok {
		return fmt.Errorf("pool %s: %w", pos.Asset, ErrNotFound)
	}
	key := positionKey(pos.Asset, pos.Owner)
	if _, ok := s.positions[key]; ok {
		return fmt.Errorf("position %s/%s: %w", pos.Asset, pos.Owner, ErrExists)
	}
	s.positions[key] = pos
	if err := s.persistLocked(); err != nil {
		delete(s.positions, key)
		return err
	}
	return nil
}

// Update runs fn without holding the store lock; callers serialize updates to
// the same asset.
func (s *FileStore) Update(ctx context.Context, asset, owner string, fn UpdateFunc) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	key := positionKey(asset, owner)
	prevPool, prevPos := s.pools[asset], s.positions[key]
	s.pools[asset] = pool
	s.positions[key] = pos
	if err := s.persistLocked(); err != nil {
		s.pools[asset] = prevPool
		s.positions[key] = prevPos
		return err
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) persistLocked() error {
	if s.path == "" {
		return nil
	}
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}

	snap := snapshot{
		Pools:     make([]model.Pool, 0, len(s.pools)),
		Positions: make([]model.Position, 0, len(s.positions)),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, pool := range s.pools {
		snap.Pools = append(snap.Pools, pool)
	}
	for _, pos := range s.positions {
		snap.Positions = append(snap.Positions, pos)
	}
	sort.Slice(snap.Pools, func(i, j int) bool { return snap.Pools[i].Asset < snap.Pools[j].Asset })
	sort.Slice(snap.Positions, func(i, j int) bool {
		return positionKey(snap.Positions[i].Asset, snap.Positions[i].Owner) < positionKey(snap.Positions[j].Asset, snap.Positions[j].Owner)
	})

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write store tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename store: %w", err)
	}
	return nil
}
