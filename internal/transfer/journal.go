package transfer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"lendingLedger/internal/model"
)

// Journal record statuses.
const (
	StatusDone    = "done"
	StatusPending = "pending"
)

// Journal appends every transfer its backend executes to a JSONL file.
// A failed append is logged; the transfer it describes has already happened.
type Journal struct {
	next   Service
	path   string
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewJournal(next Service, path string, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{next: next, path: path, logger: logger, now: time.Now}
}

func (j *Journal) Transfer(ctx context.Context, req Request) (Receipt, error) {
	receipt, err := j.next.Transfer(ctx, req)
	status := StatusDone
	switch {
	case errors.Is(err, ErrTransferPending):
		status = StatusPending
	case err != nil:
		return receipt, err
	}
	record := model.TransferRecord{
		Operation:  req.Operation,
		Asset:      req.Asset,
		From:       req.From,
		To:         req.To,
		Amount:     req.Amount,
		Authority:  req.Authority.Kind.String(),
		Signer:     receipt.Signer,
		Reference:  receipt.Reference,
		Status:     status,
		ExecutedAt: j.now().UTC().Format(time.RFC3339Nano),
	}
	if werr := j.append(record); werr != nil {
		j.logger.Error("journal transfer failed",
			zap.String("operation", req.Operation),
			zap.String("asset", req.Asset),
			zap.String("reference", receipt.Reference),
			zap.Error(werr),
		)
	}
	return receipt, err
}

// Mint passes through to the wrapped backend when it supports minting.
func (j *Journal) Mint(ctx context.Context, account, asset string, amount uint64) error {
	minter, ok := j.next.(Minter)
	if !ok {
		return fmt.Errorf("%w: backend does not support minting", ErrTransfer)
	}
	if err := minter.Mint(ctx, account, asset, amount); err != nil {
		return err
	}
	record := model.TransferRecord{
		Operation:  "mint",
		Asset:      asset,
		To:         account,
		Amount:     amount,
		Status:     StatusDone,
		ExecutedAt: j.now().UTC().Format(time.RFC3339Nano),
	}
	if werr := j.append(record); werr != nil {
		j.logger.Error("journal mint failed", zap.String("asset", asset), zap.Error(werr))
	}
	return nil
}

func (j *Journal) append(record model.TransferRecord) error {
	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal transfer record: %w", err)
	}
	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write transfer record: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}
