package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lendingLedger/internal/ledger"
	"lendingLedger/internal/metrics"
	"lendingLedger/internal/service"
	"lendingLedger/internal/store"
	"lendingLedger/internal/transfer"
)

func newTestServer(t *testing.T) (*httptest.Server, *transfer.Book) {
	t.Helper()
	st, err := store.OpenFileStore("")
	require.NoError(t, err)
	book, err := transfer.OpenBook("")
	require.NoError(t, err)
	m := metrics.New()
	svc := service.New(st, book, service.Options{Clock: ledger.FixedClock(1_700_000_000), Metrics: m})
	srv := httptest.NewServer(NewHandler(svc, Options{Metrics: m}))
	t.Cleanup(srv.Close)
	return srv, book
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestLendingRoutes(t *testing.T) {
	srv, book := newTestServer(t)

	status, _ := do(t, srv, http.MethodPost, "/v1/pools", map[string]any{
		"asset": "USDC", "custody": "pool-usdc", "interest_rate": 500,
		"max_ltv": 5000, "liquidation_threshold": 8000,
	})
	require.Equal(t, http.StatusCreated, status)

	status, _ = do(t, srv, http.MethodPost, "/v1/positions", map[string]any{"owner": "alice", "asset": "USDC"})
	require.Equal(t, http.StatusCreated, status)

	status, _ = do(t, srv, http.MethodPost, "/v1/mint", map[string]any{"owner": "alice", "asset": "USDC", "amount": 1000})
	require.Equal(t, http.StatusOK, status)

	status, body := do(t, srv, http.MethodPost, "/v1/deposit", map[string]any{"owner": "alice", "asset": "USDC", "amount": 1000})
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1000, body["shares"])

	status, body = do(t, srv, http.MethodPost, "/v1/borrow", map[string]any{
		"owner": "alice", "asset": "USDC", "price": ledger.PriceScale, "amount": 500,
	})
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 500, body["amount"])
	require.Equal(t, uint64(500), book.Balance("alice", "USDC"))

	status, _ = do(t, srv, http.MethodPost, "/v1/repay", map[string]any{"owner": "alice", "asset": "USDC", "amount": 500})
	require.Equal(t, http.StatusOK, status)

	status, body = do(t, srv, http.MethodGet, "/v1/pools/USDC", nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1000, body["total_deposits"])
	require.Equal(t, "0.000000000000000000", body["utilization"])
	require.Equal(t, "1.000000000000000000", body["share_price"])

	status, body = do(t, srv, http.MethodGet, "/v1/positions/USDC/alice", nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1000, body["deposited_amount"])

	status, body = do(t, srv, http.MethodPost, "/v1/withdraw", map[string]any{"owner": "alice", "asset": "USDC", "amount": 1000})
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 0, body["position"].(map[string]any)["deposited_shares"])
}

func TestListPools(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, asset := range []string{"USDC", "ETH"} {
		status, _ := do(t, srv, http.MethodPost, "/v1/pools", map[string]any{"asset": asset, "custody": "pool-" + asset})
		require.Equal(t, http.StatusCreated, status)
	}

	resp, err := srv.Client().Get(srv.URL + "/v1/pools")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pools []service.PoolView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pools))
	require.Len(t, pools, 2)
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	pool := map[string]any{"asset": "USDC", "custody": "pool-usdc", "max_ltv": 5000, "liquidation_threshold": 8000}
	status, _ := do(t, srv, http.MethodPost, "/v1/pools", pool)
	require.Equal(t, http.StatusCreated, status)
	status, _ = do(t, srv, http.MethodPost, "/v1/positions", map[string]any{"owner": "alice", "asset": "USDC"})
	require.Equal(t, http.StatusCreated, status)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"duplicate pool", http.MethodPost, "/v1/pools", pool, http.StatusConflict},
		{"bad params", http.MethodPost, "/v1/pools", map[string]any{"asset": "DAI"}, http.StatusBadRequest},
		{"zero deposit", http.MethodPost, "/v1/deposit", map[string]any{"owner": "alice", "asset": "USDC", "amount": 0}, http.StatusBadRequest},
		{"unknown pool", http.MethodGet, "/v1/pools/DAI", nil, http.StatusNotFound},
		{"unknown position", http.MethodGet, "/v1/positions/USDC/bob", nil, http.StatusNotFound},
		{"overdraw", http.MethodPost, "/v1/withdraw", map[string]any{"owner": "alice", "asset": "USDC", "amount": 1}, http.StatusUnprocessableEntity},
		{"no debt", http.MethodPost, "/v1/repay", map[string]any{"owner": "alice", "asset": "USDC", "amount": 1}, http.StatusUnprocessableEntity},
		{"unfunded", http.MethodPost, "/v1/deposit", map[string]any{"owner": "alice", "asset": "USDC", "amount": 5}, http.StatusBadGateway},
		{"missing body", http.MethodPost, "/v1/deposit", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		status, body := do(t, srv, tc.method, tc.path, tc.body)
		require.Equal(t, tc.want, status, tc.name)
		require.NotEmpty(t, body["error"], tc.name)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: %w", service.ErrCommit, transfer.ErrTransfer), http.StatusInternalServerError},
		{ledger.ErrArithmeticOverflow, http.StatusInternalServerError},
		{ledger.ErrClockSkew, http.StatusUnprocessableEntity},
		{ledger.ErrInsufficientLiquidity, http.StatusUnprocessableEntity},
		{fmt.Errorf("withdraw: %w", ledger.ErrCollateralInUse), http.StatusUnprocessableEntity},
		{service.ErrMintUnsupported, http.StatusNotImplemented},
		{fmt.Errorf("%w: %w", transfer.ErrTransfer, context.DeadlineExceeded), http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), "%v", tc.err)
	}
}

func TestOutcomeStatus(t *testing.T) {
	require.Equal(t, http.StatusOK, outcomeStatus(service.Outcome{}))
	require.Equal(t, http.StatusAccepted, outcomeStatus(service.Outcome{Pending: true}))
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, srv, http.MethodPost, "/v1/pools", map[string]any{"asset": "USDC", "custody": "pool-usdc"})

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(raw), `lending_operations_total{operation="init_pool",outcome="ok"} 1`))
}
