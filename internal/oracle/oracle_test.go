package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"stockfolio/pkg/exception"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	o := NewStatic(map[string]decimal.Decimal{
		"aapl": decimal.RequireFromString("189.5"),
		"ZERO": decimal.Zero,
	})

	price, err := o.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("189.5").Equal(price))

	testCases := []struct {
		desc   string
		symbol string
	}{
		{"unknown", "ZZZZ"},
		{"zero price is never valid", "ZERO"},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := o.Quote(context.Background(), tc.symbol)
			assert.ErrorIs(t, err, exception.ErrQuoteUnavailable)
		})
	}

	o.Set("NEG", decimal.NewFromInt(-1))
	_, err = o.Quote(context.Background(), "NEG")
	assert.ErrorIs(t, err, exception.ErrQuoteUnavailable)

	o.Delete("AAPL")
	_, err = o.Quote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, exception.ErrQuoteUnavailable)
}

func TestWithTimeout(t *testing.T) {
	stalled := Func(func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return decimal.NewFromInt(1), nil
	})

	start := time.Now()
	_, err := WithTimeout(stalled, 20*time.Millisecond).Quote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, exception.ErrQuoteUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	failing := Func(func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		return decimal.Decimal{}, errors.New("feed outage")
	})
	_, err = WithTimeout(failing, time.Second).Quote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, exception.ErrQuoteUnavailable)

	zero := Func(func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		return decimal.Zero, nil
	})
	_, err = WithTimeout(zero, time.Second).Quote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, exception.ErrQuoteUnavailable)

	static := NewStatic(map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(5)})
	assert.Same(t, static, WithTimeout(static, 0))
}

func TestFinnhub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" || r.URL.Query().Get("token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("symbol") {
		case "AAPL":
			fmt.Fprint(w, `{"c":189.25,"d":1.2,"dp":0.6,"h":190,"l":187,"o":188,"pc":188.05,"t":1714560000}`)
		case "ZZZZ":
			fmt.Fprint(w, `{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`)
		case "BAD":
			fmt.Fprint(w, `not json`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewFinnhub(srv.Client(), srv.URL+"/", "secret")

	price, err := f.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("189.25").Equal(price))

	testCases := []struct {
		desc   string
		client *Finnhub
		symbol string
	}{
		{"unknown symbol has zero price", f, "ZZZZ"},
		{"malformed payload", f, "BAD"},
		{"server error", f, "MSFT"},
		{"unauthorized", NewFinnhub(srv.Client(), srv.URL, "wrong"), "AAPL"},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := tc.client.Quote(context.Background(), tc.symbol)
			assert.ErrorIs(t, err, exception.ErrQuoteUnavailable)
		})
	}
}

func TestFinnhubUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewFinnhub(nil, url, "").Quote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, exception.ErrQuoteUnavailable)
}

func TestCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var calls atomic.Int32
	source := Func(func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		calls.Add(1)
		if symbol == "ZZZZ" {
			return decimal.Decimal{}, exception.ErrQuoteUnavailable
		}
		return decimal.RequireFromString("42.5"), nil
	})
	c := NewCached(source, rdb, 2*time.Second)
	ctx := context.Background()

	for range 3 {
		price, err := c.Quote(ctx, "AAPL")
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("42.5").Equal(price))
	}
	assert.Equal(t, int32(1), calls.Load())

	cached, err := mr.Get(defaultCachePrefix + "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "42.5", cached)

	mr.FastForward(3 * time.Second)
	_, err = c.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	_, err = c.Quote(ctx, "ZZZZ")
	assert.ErrorIs(t, err, exception.ErrQuoteUnavailable)
	assert.False(t, mr.Exists(defaultCachePrefix+"ZZZZ"), "failures are not cached")

	require.NoError(t, mr.Set(defaultCachePrefix+"MSFT", "garbage"))
	price, err := c.Quote(ctx, "MSFT")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("42.5").Equal(price))
}

func TestCachedFallsThroughWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	c := NewCached(NewStatic(map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(7)}), rdb, time.Second)
	price, err := c.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(7).Equal(price))
}
