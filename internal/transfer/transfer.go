package transfer

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransfer is wrapped by every failure a backend reports.
	ErrTransfer            = errors.New("transfer: failed")
	ErrUnauthorized        = errors.New("transfer: authority does not cover source account")
	ErrInsufficientBalance = errors.New("transfer: insufficient balance")

	// ErrTransferPending means the transfer was broadcast but its outcome is
	// not yet known. It always wraps ErrTransfer and comes with a Receipt
	// whose Reference identifies the broadcast.
	ErrTransferPending = errors.New("transfer: broadcast, outcome pending")
)

// AuthorityKind says who signs a transfer.
type AuthorityKind int

const (
	// OwnerSigned transfers move funds out of the owner's own account.
	OwnerSigned AuthorityKind = iota + 1
	// PoolSigned transfers move funds out of a pool's custody account.
	PoolSigned
)

func (k AuthorityKind) String() string {
	switch k {
	case OwnerSigned:
		return "owner"
	case PoolSigned:
		return "pool"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Authority is the signing capability attached to a transfer. Pool authority
// is scoped to one asset and one custody account.
type Authority struct {
	Kind  AuthorityKind
	Owner string
	Asset string
	Pool  string
}

func OwnerAuthority(owner string) Authority {
	return Authority{Kind: OwnerSigned, Owner: owner}
}

func PoolAuthority(asset, custody string) Authority {
	return Authority{Kind: PoolSigned, Asset: asset, Pool: custody}
}

// Signer returns the account whose signature the authority stands for.
func (a Authority) Signer() string {
	if a.Kind == PoolSigned {
		return a.Pool
	}
	return a.Owner
}

// Request moves Amount units of Asset from From to To.
type Request struct {
	Operation string
	From      string
	To        string
	Asset     string
	Amount    uint64
	Authority Authority
}

// Reverse returns the request that undoes r. The authority flips to whoever
// holds the funds after r executed.
func (r Request) Reverse() Request {
	rev := Request{
		Operation: r.Operation + "-reversal",
		From:      r.To,
		To:        r.From,
		Asset:     r.Asset,
		Amount:    r.Amount,
	}
	if r.Authority.Kind == OwnerSigned {
		rev.Authority = PoolAuthority(r.Asset, r.To)
	} else {
		rev.Authority = OwnerAuthority(r.To)
	}
	return rev
}

// Validate checks the request shape and that the authority covers From.
func (r Request) Validate() error {
	if r.Amount == 0 {
		return fmt.Errorf("%w: zero amount", ErrTransfer)
	}
	if r.From == "" || r.To == "" || r.Asset == "" {
		return fmt.Errorf("%w: from, to and asset are required", ErrTransfer)
	}
	switch r.Authority.Kind {
	case OwnerSigned:
		if r.Authority.Owner != r.From {
			return fmt.Errorf("%w: %w: owner %s signing for %s", ErrTransfer, ErrUnauthorized, r.Authority.Owner, r.From)
		}
	case PoolSigned:
		if r.Authority.Asset != r.Asset || r.Authority.Pool != r.From {
			return fmt.Errorf("%w: %w: pool %s/%s signing for %s/%s", ErrTransfer, ErrUnauthorized,
				r.Authority.Asset, r.Authority.Pool, r.Asset, r.From)
		}
	default:
		return fmt.Errorf("%w: %w: authority kind %s", ErrTransfer, ErrUnauthorized, r.Authority.Kind)
	}
	return nil
}

// Receipt describes an executed transfer.
type Receipt struct {
	Signer    string
	Reference string
}

// Service executes asset transfers.
type Service interface {
	Transfer(ctx context.Context, req Request) (Receipt, error)
}

// Minter credits new units to an account. Only local backends support it.
type Minter interface {
	Mint(ctx context.Context, account, asset string, amount uint64) error
}
