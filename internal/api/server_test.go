package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stockfolio/internal/ledger"
	"stockfolio/internal/obs"
	"stockfolio/internal/oracle"
	"stockfolio/internal/order"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server *Server
	store  *ledger.Memory
	prices *oracle.Static
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := ledger.NewMemory()
	prices := oracle.NewStatic(map[string]decimal.Decimal{
		"AAPL": decimal.RequireFromString("150"),
		"MSFT": decimal.RequireFromString("300"),
	})
	_, err := store.CreateAccount(context.Background(), "1", decimal.RequireFromString("1000"))
	require.NoError(t, err)

	metrics := obs.NewMetrics()
	orders := order.NewUsecase(store, prices, metrics, order.Config{})
	return fixture{server: New(orders, metrics), store: store, prices: prices}
}

func (f fixture) do(t *testing.T, method, target, contentType, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if len(body) != 0 {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if len(contentType) != 0 {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) != 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, http.MethodGet, "/api/test", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "API is working!", body["message"])
}

func TestBuyThenInfo(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/buy_stock", "application/json",
		`{"user_id": 1, "symbol": "aapl", "shares": 2, "price": 1}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Stock purchased successfully", body["message"])
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, "150", body["price"])
	assert.Equal(t, "700", body["new_balance"])

	status, body = f.do(t, http.MethodGet, "/api/info?user_id=1", "", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "700", body["balance"])
	assert.Equal(t, "1000", body["total_value"])

	holdings, ok := body["portfolio"].([]any)
	require.True(t, ok)
	require.Len(t, holdings, 1)
	holding := holdings[0].(map[string]any)
	assert.Equal(t, "AAPL", holding["symbol"])
	assert.Equal(t, "2", holding["shares"])
	assert.Equal(t, "150", holding["price"])
}

func TestSellThenTransactions(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodPost, "/api/buy_stock", "application/json",
		`{"user_id": "1", "symbol": "MSFT", "shares": "3"}`)
	require.Equal(t, http.StatusOK, status)

	f.prices.Set("MSFT", decimal.RequireFromString("310"))
	status, body := f.do(t, http.MethodPost, "/api/sell_stock", "application/json",
		`{"user_id": "1", "symbol": "MSFT", "shares": 1}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Stock sold successfully!", body["message"])
	assert.Equal(t, "410", body["new_balance"])

	status, body = f.do(t, http.MethodGet, "/api/transactions?user_id=1", "", "")
	require.Equal(t, http.StatusOK, status)
	records, ok := body["transactions"].([]any)
	require.True(t, ok)
	require.Len(t, records, 2)
	assert.Equal(t, "BUY", records[0].(map[string]any)["type"])
	assert.Equal(t, "SELL", records[1].(map[string]any)["type"])
	assert.Equal(t, "310", records[1].(map[string]any)["price"])
}

func TestTradeRejections(t *testing.T) {
	testCases := []struct {
		desc        string
		target      string
		contentType string
		body        string
		status      int
	}{
		{desc: "buy without json", target: "/api/buy_stock", contentType: "text/plain", body: `user_id=1`, status: http.StatusUnsupportedMediaType},
		{desc: "sell without json", target: "/api/sell_stock", contentType: "", body: `{}`, status: http.StatusUnsupportedMediaType},
		{desc: "malformed body", target: "/api/buy_stock", contentType: "application/json", body: `{"user_id":`, status: http.StatusBadRequest},
		{desc: "user id of wrong type", target: "/api/buy_stock", contentType: "application/json", body: `{"user_id": true, "symbol": "AAPL", "shares": 1}`, status: http.StatusBadRequest},
		{desc: "missing symbol", target: "/api/buy_stock", contentType: "application/json", body: `{"user_id": 1, "shares": 1}`, status: http.StatusBadRequest},
		{desc: "missing shares", target: "/api/sell_stock", contentType: "application/json", body: `{"user_id": 1, "symbol": "AAPL"}`, status: http.StatusBadRequest},
		{desc: "zero shares", target: "/api/buy_stock", contentType: "application/json", body: `{"user_id": 1, "symbol": "AAPL", "shares": 0}`, status: http.StatusBadRequest},
		{desc: "negative shares", target: "/api/buy_stock", contentType: "application/json", body: `{"user_id": 1, "symbol": "AAPL", "shares": -1}`, status: http.StatusBadRequest},
		{desc: "shares beyond 18 places", target: "/api/buy_stock", contentType: "application/json", body: `{"user_id": 1, "symbol": "AAPL", "shares": 1e-20000000}`, status: http.StatusBadRequest},
		{desc: "shares beyond 36 digits", target: "/api/sell_stock", contentType: "application/json", body: `{"user_id": 1, "symbol": "AAPL", "shares": "1e40"}`, status: http.StatusBadRequest},
		{desc: "insufficient funds", target: "/api/buy_stock", contentType: "application/json", body: `{"user_id": 1, "symbol": "AAPL", "shares": 7}`, status: http.StatusBadRequest},
		{desc: "insufficient shares", target: "/api/sell_stock", contentType: "application/json", body: `{"user_id": 1, "symbol": "AAPL", "shares": 1}`, status: http.StatusBadRequest},
		{desc: "unknown symbol", target: "/api/buy_stock", contentType: "application/json", body: `{"user_id": 1, "symbol": "NOPE", "shares": 1}`, status: http.StatusBadRequest},
		{desc: "unknown user", target: "/api/buy_stock", contentType: "application/json", body: `{"user_id": 42, "symbol": "AAPL", "shares": 1}`, status: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			f := newFixture(t)
			status, body := f.do(t, http.MethodPost, tc.target, tc.contentType, tc.body)
			assert.Equal(t, tc.status, status, body)
			assert.NotEmpty(t, body["error"])

			account, err := f.store.GetAccount(context.Background(), "1")
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString("1000").Equal(account.Balance))
			records, err := f.store.ListTransactions(context.Background(), "1")
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestQueryRejections(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodGet, "/api/info", "", "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = f.do(t, http.MethodGet, "/api/info?user_id=42", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = f.do(t, http.MethodGet, "/api/transactions", "", "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = f.do(t, http.MethodGet, "/api/transactions?user_id=42", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, body := f.do(t, http.MethodGet, "/api/nothing", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not Found", body["error"])
}

func TestEmptyPortfolio(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, http.MethodGet, "/api/info?user_id=1", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["portfolio"])

	status, body = f.do(t, http.MethodGet, "/api/transactions?user_id=1", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["transactions"])
}

func TestOpenAccount(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/accounts", "application/json", `{"user_id": 7, "balance": "250.5"}`)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "7", body["user_id"])
	assert.Equal(t, "250.5", body["balance"])

	status, _ = f.do(t, http.MethodPost, "/api/accounts", "application/json", `{"user_id": 7}`)
	assert.Equal(t, http.StatusConflict, status)
	status, _ = f.do(t, http.MethodPost, "/api/accounts", "application/json", `{"balance": 1}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = f.do(t, http.MethodPost, "/api/accounts", "application/json", `{"user_id": 8, "balance": -1}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = f.do(t, http.MethodPost, "/api/accounts", "text/plain", `user_id=9`)
	assert.Equal(t, http.StatusUnsupportedMediaType, status)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/buy_stock", "application/json", `{"user_id": 1, "symbol": "AAPL", "shares": 1}`)
	f.do(t, http.MethodPost, "/api/buy_stock", "application/json", `{"user_id": 1, "symbol": "AAPL", "shares": 100}`)

	status, body := f.do(t, http.MethodGet, "/api/metrics", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body)
}

func TestCORS(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestUserIDDecoding(t *testing.T) {
	testCases := []struct {
		desc  string
		input string
		want  userID
		err   bool
	}{
		{desc: "string", input: `"abc"`, want: "abc"},
		{desc: "integer", input: `12`, want: "12"},
		{desc: "null", input: `null`, want: ""},
		{desc: "bool", input: `true`, err: true},
		{desc: "object", input: `{}`, err: true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var got userID
			err := json.Unmarshal([]byte(tc.input), &got)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
