package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// Book is an in-process custody ledger: per-asset account balances,
// optionally snapshotted to a JSON file after every change.
type Book struct {
	path string
	seq  atomic.Uint64

	mu       sync.Mutex
	balances map[string]map[string]uint64
}

var (
	_ Service = (*Book)(nil)
	_ Minter  = (*Book)(nil)
)

type bookEntry struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

// OpenBook loads balances from path if it exists. An empty path keeps the
// book in memory.
func OpenBook(path string) (*Book, error) {
	b := &Book{path: path, balances: make(map[string]map[string]uint64)}
	if path == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("read book: %w", err)
	}
	var entries []bookEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse book: %w", err)
	}
	for _, e := range entries {
		b.accountsLocked(e.Asset)[e.Account] = e.Balance
	}
	return b, nil
}

func (b *Book) accountsLocked(asset string) map[string]uint64 {
	accounts, ok := b.balances[asset]
	if !ok {
		accounts = make(map[string]uint64)
		b.balances[asset] = accounts
	}
	return accounts
}

// Balance returns the account's holding of asset.
func (b *Book) Balance(account, asset string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[asset][account]
}

func (b *Book) Mint(ctx context.Context, account, asset string, amount uint64) error {
	if account == "" || asset == "" || amount == 0 {
		return fmt.Errorf("%w: mint needs account, asset and a positive amount", ErrTransfer)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	accounts := b.accountsLocked(asset)
	prev := accounts[account]
	if amount > math.MaxUint64-prev {
		return fmt.Errorf("%w: mint %d to %s overflows balance", ErrTransfer, amount, account)
	}
	accounts[account] = prev + amount
	if err := b.persistLocked(); err != nil {
		accounts[account] = prev
		return err
	}
	return nil
}

func (b *Book) Transfer(ctx context.Context, req Request) (Receipt, error) {
	if err := req.Validate(); err != nil {
		return Receipt{}, err
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrTransfer, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	accounts := b.accountsLocked(req.Asset)
	fromPrev, toPrev := accounts[req.From], accounts[req.To]
	if fromPrev < req.Amount {
		return Receipt{}, fmt.Errorf("%w: %w: %s holds %d %s, needs %d",
			ErrTransfer, ErrInsufficientBalance, req.From, fromPrev, req.Asset, req.Amount)
	}
	if req.From != req.To {
		if req.Amount > math.MaxUint64-toPrev {
			return Receipt{}, fmt.Errorf("%w: credit to %s overflows balance", ErrTransfer, req.To)
		}
		accounts[req.From] = fromPrev - req.Amount
		accounts[req.To] = toPrev + req.Amount
	}
	if err := b.persistLocked(); err != nil {
		accounts[req.From], accounts[req.To] = fromPrev, toPrev
		return Receipt{}, err
	}
	return Receipt{
		Signer:    req.Authority.Signer(),
		Reference: "book-" + strconv.FormatUint(b.seq.Add(1), 10),
	}, nil
}

func (b *Book) persistLocked() error {
	if b.path == "" {
		return nil
	}
	dir := filepath.Dir(b.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create book dir: %w", ErrTransfer, err)
		}
	}
	entries := make([]bookEntry, 0)
	for asset, accounts := range b.balances {
		for account, balance := range accounts {
			entries = append(entries, bookEntry{Asset: asset, Account: account, Balance: balance})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Asset != entries[j].Asset {
			return entries[i].Asset < entries[j].Asset
		}
		return entries[i].Account < entries[j].Account
	})
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal book: %w", ErrTransfer, err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write book tmp: %w", ErrTransfer, err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("%w: rename book: %w", ErrTransfer, err)
	}
	return nil
}
