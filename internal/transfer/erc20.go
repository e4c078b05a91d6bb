package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Backend is the subset of an Ethereum RPC client the ERC20 service needs.
// *chain.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ERC20Options tunes confirmation polling.
type ERC20Options struct {
	Confirmations uint64
	MaxRetries    int
	RetryBackoff  time.Duration
}

// ERC20 executes transfers as signed ERC-20 transfer calls. Assets are token
// contract addresses and accounts are externally owned addresses.
type ERC20 struct {
	backend Backend
	keys    *Keyring
	opts    ERC20Options
	logger  *zap.Logger
}

var _ Service = (*ERC20)(nil)

func NewERC20(backend Backend, keys *Keyring, opts ERC20Options, logger *zap.Logger) *ERC20 {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Confirmations == 0 {
		opts.Confirmations = 1
	}
	return &ERC20{backend: backend, keys: keys, opts: opts, logger: logger}
}

func (e *ERC20) Transfer(ctx context.Context, req Request) (Receipt, error) {
	if err := req.Validate(); err != nil {
		return Receipt{}, err
	}
	token, err := ParseAddress(req.Asset)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: asset: %w", ErrTransfer, err)
	}
	from, err := ParseAddress(req.From)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: from: %w", ErrTransfer, err)
	}
	to, err := ParseAddress(req.To)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: to: %w", ErrTransfer, err)
	}
	key, err := e.keys.KeyFor(req.Authority, from)
	if err != nil {
		return Receipt{}, err
	}

	amount := new(big.Int).SetUint64(req.Amount)
	balance, err := e.BalanceOf(ctx, token, from)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrTransfer, err)
	}
	if balance.Cmp(amount) < 0 {
		return Receipt{}, fmt.Errorf("%w: %w: %s holds %s, needs %s",
			ErrTransfer, ErrInsufficientBalance, from.Hex(), balance, amount)
	}

	tx, err := e.buildTx(ctx, token, from, to, amount)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrTransfer, err)
	}
	chainID, err := e.backend.ChainID(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: chain id: %w", ErrTransfer, err)
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: sign tx: %w", ErrTransfer, err)
	}
	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		return Receipt{}, fmt.Errorf("%w: send tx: %w", ErrTransfer, err)
	}
	e.logger.Info("transfer submitted",
		zap.String("operation", req.Operation),
		zap.String("token", token.Hex()),
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("amount", req.Amount),
		zap.String("tx", signed.Hash().Hex()),
	)

	receipt := Receipt{Signer: from.Hex(), Reference: signed.Hash().Hex()}
	if err := e.awaitReceipt(ctx, signed.Hash()); err != nil {
		if errors.Is(err, errReverted) {
			return Receipt{}, fmt.Errorf("%w: tx %s: %w", ErrTransfer, receipt.Reference, err)
		}
		// The transaction is out and may still be mined.
		e.logger.Warn("transfer unconfirmed",
			zap.String("operation", req.Operation),
			zap.String("tx", receipt.Reference),
			zap.Error(err),
		)
		return receipt, fmt.Errorf("%w: %w: tx %s: %w", ErrTransfer, ErrTransferPending, receipt.Reference, err)
	}
	return receipt, nil
}

func (e *ERC20) buildTx(ctx context.Context, token, from, to common.Address, amount *big.Int) (*types.Transaction, error) {
	erc20, err := erc20ABIInstance()
	if err != nil {
		return nil, err
	}
	data, err := erc20.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("pack transfer: %w", err)
	}
	nonce, err := e.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	gas, err := e.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &token,
		Data:     data,
	}), nil
}

var errReverted = errors.New("reverted")

// awaitReceipt polls until the transaction is mined with the configured
// number of confirmations. A reverted receipt ends the wait immediately.
func (e *ERC20) awaitReceipt(ctx context.Context, hash common.Hash) error {
	return newPoller(e.opts.MaxRetries, e.opts.RetryBackoff).until(ctx, func(ctx context.Context) error {
		receipt, err := e.backend.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return errors.New("not mined")
		}
		if err != nil {
			return fmt.Errorf("receipt: %w", err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return permanent(fmt.Errorf("%w in block %s", errReverted, receipt.BlockNumber))
		}

		mined := receipt.BlockNumber.Uint64()
		head, err := e.backend.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("block number: %w", err)
		}
		if head+1 < mined+e.opts.Confirmations {
			return fmt.Errorf("mined in %d, head %d, want %d confirmations", mined, head, e.opts.Confirmations)
		}
		return nil
	})
}

// BalanceOf reads owner's token balance at the latest block.
func (e *ERC20) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	erc20, err := erc20ABIInstance()
	if err != nil {
		return nil, err
	}

	data, err := erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	msg := ethereum.CallMsg{To: &token, Data: data}
	resp, err := e.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}

	values, err := erc20.Unpack("balanceOf", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("balanceOf return size %d", len(values))
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf unexpected type %T", values[0])
	}
	return bal, nil
}
