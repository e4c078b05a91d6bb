package transfer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestRequestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		err  error
	}{
		{name: "owner signs own funds", req: Request{From: "alice", To: "vault", Asset: "USDC", Amount: 1, Authority: OwnerAuthority("alice")}},
		{name: "pool signs custody", req: Request{From: "vault", To: "alice", Asset: "USDC", Amount: 1, Authority: PoolAuthority("USDC", "vault")}},
		{name: "owner signs for someone else", req: Request{From: "bob", To: "vault", Asset: "USDC", Amount: 1, Authority: OwnerAuthority("alice")}, err: ErrUnauthorized},
		{name: "pool authority for other asset", req: Request{From: "vault", To: "alice", Asset: "ETH", Amount: 1, Authority: PoolAuthority("USDC", "vault")}, err: ErrUnauthorized},
		{name: "pool authority for other custody", req: Request{From: "vault2", To: "alice", Asset: "USDC", Amount: 1, Authority: PoolAuthority("USDC", "vault")}, err: ErrUnauthorized},
		{name: "no authority", req: Request{From: "alice", To: "vault", Asset: "USDC", Amount: 1}, err: ErrUnauthorized},
		{name: "zero amount", req: Request{From: "alice", To: "vault", Asset: "USDC", Authority: OwnerAuthority("alice")}, err: ErrTransfer},
	}
	for _, tc := range cases {
		err := tc.req.Validate()
		if tc.err == nil {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.err) || !errors.Is(err, ErrTransfer) {
			t.Fatalf("%s: expected %v wrapped in transfer error, got %v", tc.name, tc.err, err)
		}
	}
}

func TestRequestReverse(t *testing.T) {
	deposit := Request{Operation: "deposit", From: "alice", To: "vault", Asset: "USDC", Amount: 5, Authority: OwnerAuthority("alice")}
	rev := deposit.Reverse()
	if rev.From != "vault" || rev.To != "alice" || rev.Authority != PoolAuthority("USDC", "vault") {
		t.Fatalf("unexpected reversal %+v", rev)
	}
	if err := rev.Validate(); err != nil {
		t.Fatalf("reversal invalid: %v", err)
	}

	withdraw := Request{Operation: "withdraw", From: "vault", To: "alice", Asset: "USDC", Amount: 5, Authority: PoolAuthority("USDC", "vault")}
	rev = withdraw.Reverse()
	if rev.Authority != OwnerAuthority("alice") || rev.Operation != "withdraw-reversal" {
		t.Fatalf("unexpected reversal %+v", rev)
	}
	if err := rev.Validate(); err != nil {
		t.Fatalf("reversal invalid: %v", err)
	}
}

func TestBookTransfer(t *testing.T) {
	ctx := context.Background()
	book, err := OpenBook("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := book.Mint(ctx, "alice", "USDC", 100); err != nil {
		t.Fatalf("mint: %v", err)
	}

	receipt, err := book.Transfer(ctx, Request{From: "alice", To: "vault", Asset: "USDC", Amount: 60, Authority: OwnerAuthority("alice")})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if receipt.Signer != "alice" || receipt.Reference == "" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if got := book.Balance("alice", "USDC"); got != 40 {
		t.Fatalf("alice balance = %d", got)
	}
	if got := book.Balance("vault", "USDC"); got != 60 {
		t.Fatalf("vault balance = %d", got)
	}

	_, err = book.Transfer(ctx, Request{From: "alice", To: "vault", Asset: "USDC", Amount: 41, Authority: OwnerAuthority("alice")})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	_, err = book.Transfer(ctx, Request{From: "vault", To: "bob", Asset: "USDC", Amount: 1, Authority: OwnerAuthority("bob")})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if got := book.Balance("alice", "USDC"); got != 40 {
		t.Fatalf("failed transfers changed balance: %d", got)
	}
}

func TestBookPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "book.json")
	book, err := OpenBook(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := book.Mint(ctx, "alice", "USDC", 100); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := book.Transfer(ctx, Request{From: "alice", To: "vault", Asset: "USDC", Amount: 30, Authority: OwnerAuthority("alice")}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	reopened, err := OpenBook(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Balance("alice", "USDC") != 70 || reopened.Balance("vault", "USDC") != 30 {
		t.Fatalf("balances not persisted")
	}
}

func TestBookMintRejectsOverflow(t *testing.T) {
	book, _ := OpenBook("")
	if err := book.Mint(context.Background(), "alice", "USDC", ^uint64(0)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := book.Mint(context.Background(), "alice", "USDC", 1); !errors.Is(err, ErrTransfer) {
		t.Fatalf("expected overflow error, got %v", err)
	}
}
