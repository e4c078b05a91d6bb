package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"lendingLedger/internal/ledger"
	"lendingLedger/internal/metrics"
	"lendingLedger/internal/model"
	"lendingLedger/internal/service"
	"lendingLedger/internal/store"
	"lendingLedger/internal/transfer"
)

const requestLimit = 1 << 20 // 1 MiB

// Ledger is the service surface the API exposes.
type Ledger interface {
	InitPool(ctx context.Context, params model.PoolParams) (model.Pool, error)
	OpenPosition(ctx context.Context, owner, asset string) (model.Position, error)
	Deposit(ctx context.Context, owner, asset string, amount uint64) (service.Outcome, error)
	Withdraw(ctx context.Context, owner, asset string, amount uint64) (service.Outcome, error)
	Borrow(ctx context.Context, req service.BorrowRequest) (service.Outcome, error)
	Repay(ctx context.Context, owner, asset string, amount uint64) (service.Outcome, error)
	Mint(ctx context.Context, account, asset string, amount uint64) error
	Pool(ctx context.Context, asset string) (service.PoolView, error)
	Pools(ctx context.Context) ([]service.PoolView, error)
	Position(ctx context.Context, asset, owner string) (model.Position, error)
}

var _ Ledger = (*service.Service)(nil)

// Options configures the HTTP handler.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Timeout time.Duration
}

type routes struct {
	ledger  Ledger
	logger  *zap.Logger
	timeout time.Duration
}

// NewHandler mounts the ledger routes, /metrics and /healthz on a chi router.
func NewHandler(l Ledger, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	rt := &routes{ledger: l, logger: opts.Logger, timeout: opts.Timeout}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}
	r.Route("/v1", func(r chi.Router) {
		r.Get("/pools", rt.listPools)
		r.Post("/pools", rt.initPool)
		r.Get("/pools/{asset}", rt.getPool)
		r.Post("/positions", rt.openPosition)
		r.Get("/positions/{asset}/{owner}", rt.getPosition)
		r.Post("/deposit", rt.deposit)
		r.Post("/withdraw", rt.withdraw)
		r.Post("/borrow", rt.borrow)
		r.Post("/repay", rt.repay)
		r.Post("/mint", rt.mint)
	})
	return r
}

type positionRequest struct {
	Owner string `json:"owner"`
	Asset string `json:"asset"`
}

type amountRequest struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

func (rt *routes) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, rt.timeout)
}

func (rt *routes) listPools(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rt.context(r.Context())
	defer cancel()
	pools, err := rt.ledger.Pools(ctx)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (rt *routes) getPool(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rt.context(r.Context())
	defer cancel()
	pool, err := rt.ledger.Pool(ctx, chi.URLParam(r, "asset"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (rt *routes) getPosition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rt.context(r.Context())
	defer cancel()
	pos, err := rt.ledger.Position(ctx, chi.URLParam(r, "asset"), chi.URLParam(r, "owner"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (rt *routes) initPool(w http.ResponseWriter, r *http.Request) {
	var params model.PoolParams
	if err := decodeRequest(r, &params); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := rt.context(r.Context())
	defer cancel()
	pool, err := rt.ledger.InitPool(ctx, params)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

func (rt *routes) openPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := rt.context(r.Context())
	defer cancel()
	pos, err := rt.ledger.OpenPosition(ctx, req.Owner, req.Asset)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

type amountOp func(ctx context.Context, owner, asset string, amount uint64) (service.Outcome, error)

func (rt *routes) amountHandler(op amountOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req amountRequest
		if err := decodeRequest(r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		ctx, cancel := rt.context(r.Context())
		defer cancel()
		out, err := op(ctx, req.Owner, req.Asset, req.Amount)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, outcomeStatus(out), out)
	}
}

func (rt *routes) deposit(w http.ResponseWriter, r *http.Request) {
	rt.amountHandler(rt.ledger.Deposit)(w, r)
}

func (rt *routes) withdraw(w http.ResponseWriter, r *http.Request) {
	rt.amountHandler(rt.ledger.Withdraw)(w, r)
}

func (rt *routes) repay(w http.ResponseWriter, r *http.Request) {
	rt.amountHandler(rt.ledger.Repay)(w, r)
}

func (rt *routes) borrow(w http.ResponseWriter, r *http.Request) {
	var req service.BorrowRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := rt.context(r.Context())
	defer cancel()
	out, err := rt.ledger.Borrow(ctx, req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, outcomeStatus(out), out)
}

// outcomeStatus answers 202 while the transfer awaits confirmation.
func outcomeStatus(out service.Outcome) int {
	if out.Pending {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func (rt *routes) mint(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := rt.context(r.Context())
	defer cancel()
	if err := rt.ledger.Mint(ctx, req.Owner, req.Asset, req.Amount); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": req.Owner, "asset": req.Asset, "amount": req.Amount})
}

func decodeRequest(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrCommit), ledger.IsInternalFault(err):
		return http.StatusInternalServerError
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrExists):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrNoCollateral),
		errors.Is(err, ledger.ErrExceedsBorrowLimit),
		errors.Is(err, ledger.ErrInsufficientLiquidity),
		errors.Is(err, ledger.ErrNoDebt),
		errors.Is(err, ledger.ErrCollateralInUse),
		errors.Is(err, ledger.ErrClockSkew):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrMintUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, transfer.ErrTransfer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (rt *routes) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeJSONError(w, status, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	payload, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
