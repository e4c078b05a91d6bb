package transfer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lendingLedger/internal/model"
)

func readJournal(t *testing.T, path string) []model.TransferRecord {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer file.Close()
	var records []model.TransferRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.TransferRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		records = append(records, rec)
	}
	return records
}

func TestJournalRecordsExecutedTransfers(t *testing.T) {
	ctx := context.Background()
	book, _ := OpenBook("")
	path := filepath.Join(t.TempDir(), "out", "transfers.jsonl")
	journal := NewJournal(book, path, nil)
	journal.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	if err := journal.Mint(ctx, "alice", "USDC", 50); err != nil {
		t.Fatalf("mint: %v", err)
	}
	req := Request{Operation: "deposit", From: "alice", To: "vault", Asset: "USDC", Amount: 20, Authority: OwnerAuthority("alice")}
	if _, err := journal.Transfer(ctx, req); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	req.Amount = 500
	if _, err := journal.Transfer(ctx, req); err == nil {
		t.Fatalf("expected failure for overdraft")
	}

	records := readJournal(t, path)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	got := records[1]
	want := model.TransferRecord{
		Operation:  "deposit",
		Asset:      "USDC",
		From:       "alice",
		To:         "vault",
		Amount:     20,
		Authority:  "owner",
		Signer:     "alice",
		Reference:  got.Reference,
		Status:     StatusDone,
		ExecutedAt: "2023-11-14T22:13:20Z",
	}
	if got != want || got.Reference == "" {
		t.Fatalf("record = %+v, want %+v", got, want)
	}
	if records[0].Operation != "mint" || records[0].Amount != 50 {
		t.Fatalf("mint record = %+v", records[0])
	}
}

func TestJournalMintNeedsMinter(t *testing.T) {
	journal := NewJournal(&ERC20{}, filepath.Join(t.TempDir(), "j.jsonl"), nil)
	if err := journal.Mint(context.Background(), "a", "b", 1); err == nil {
		t.Fatalf("expected error for backend without minting")
	}
}

type unconfirmed struct{}

func (unconfirmed) Transfer(ctx context.Context, req Request) (Receipt, error) {
	return Receipt{Signer: req.From, Reference: "0xabc"}, fmt.Errorf("%w: %w: not mined", ErrTransfer, ErrTransferPending)
}

func TestJournalRecordsPendingTransfers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfers.jsonl")
	journal := NewJournal(unconfirmed{}, path, nil)
	req := Request{Operation: "withdraw", From: "vault", To: "alice", Asset: "USDC", Amount: 5, Authority: PoolAuthority("USDC", "vault")}

	receipt, err := journal.Transfer(context.Background(), req)
	if !errors.Is(err, ErrTransferPending) {
		t.Fatalf("expected pending error, got %v", err)
	}
	if receipt.Reference != "0xabc" {
		t.Fatalf("receipt = %+v", receipt)
	}
	records := readJournal(t, path)
	if len(records) != 1 || records[0].Status != StatusPending || records[0].Reference != "0xabc" {
		t.Fatalf("records = %+v", records)
	}
}
