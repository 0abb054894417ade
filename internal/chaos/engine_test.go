package chaos

import (
	"context"
	"testing"
	"time"

	"stockfolio/internal/errors"
	"stockfolio/internal/ledger"
	"stockfolio/internal/model"
	"stockfolio/internal/model/enum"
	"stockfolio/internal/oracle"
	"stockfolio/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		desc string
		cfg  Config
		err  bool
	}{
		{desc: "zero", cfg: Config{}},
		{desc: "valid", cfg: Config{StoreFailureRate: 0.5, QuoteFailureRate: 1, MaxDelay: time.Millisecond}},
		{desc: "negative store rate", cfg: Config{StoreFailureRate: -0.1}, err: true},
		{desc: "store rate above one", cfg: Config{StoreFailureRate: 1.1}, err: true},
		{desc: "quote rate above one", cfg: Config{QuoteFailureRate: 2}, err: true},
		{desc: "negative delay", cfg: Config{MaxDelay: -time.Second}, err: true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := NewEngine(tc.cfg)
			if tc.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEnabled(t *testing.T) {
	assert.False(t, Config{Seed: 1}.Enabled())
	assert.True(t, Config{QuoteFailureRate: 0.1}.Enabled())
	assert.True(t, Config{MaxDelay: time.Millisecond}.Enabled())
}

func newStore(t *testing.T) *ledger.Memory {
	t.Helper()
	store := ledger.NewMemory()
	_, err := store.CreateAccount(context.Background(), "1", decimal.RequireFromString("100"))
	require.NoError(t, err)
	return store
}

func buy(shares string) model.Trade {
	return model.Trade{
		UserID: "1",
		Symbol: "AAPL",
		Shares: decimal.RequireFromString(shares),
		Price:  decimal.RequireFromString("10"),
		Kind:   enum.TradeKindBuy,
	}
}

func TestStoreAlwaysFails(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(Config{Seed: 1, StoreFailureRate: 1})
	require.NoError(t, err)
	inner := newStore(t)
	store := engine.Store(inner)

	_, err = store.ApplyTrade(ctx, buy("1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrStoreFailure))

	_, err = store.UpdateCachedPrice(ctx, "AAPL", decimal.RequireFromString("11"))
	assert.True(t, errors.Is(err, exception.ErrStoreFailure))

	account, err := store.GetAccount(ctx, "1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100").Equal(account.Balance))
	records, err := inner.ListTransactions(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStoreNeverFails(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(Config{Seed: 1})
	require.NoError(t, err)
	store := engine.Store(newStore(t))

	balance, err := store.ApplyTrade(ctx, buy("2"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("80").Equal(balance))
}

func TestSeedIsDeterministic(t *testing.T) {
	outcomes := func() []bool {
		engine, err := NewEngine(Config{Seed: 42, StoreFailureRate: 0.5})
		require.NoError(t, err)
		out := make([]bool, 32)
		for i := range out {
			out[i] = engine.roll(engine.cfg.StoreFailureRate)
		}
		return out
	}
	assert.Equal(t, outcomes(), outcomes())
}

func TestOracleFaults(t *testing.T) {
	ctx := context.Background()
	base := oracle.NewStatic(map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("10")})

	engine, err := NewEngine(Config{Seed: 1, QuoteFailureRate: 1})
	require.NoError(t, err)
	_, err = engine.Oracle(base).Quote(ctx, "AAPL")
	assert.True(t, errors.Is(err, exception.ErrQuoteUnavailable))

	engine, err = NewEngine(Config{Seed: 1})
	require.NoError(t, err)
	price, err := engine.Oracle(base).Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10").Equal(price))
}

func TestDelayHonorsContext(t *testing.T) {
	engine, err := NewEngine(Config{Seed: 1, MaxDelay: time.Hour})
	require.NoError(t, err)
	base := oracle.NewStatic(map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("10")})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = engine.Oracle(base).Quote(ctx, "AAPL")
	assert.Less(t, time.Since(start), time.Second)
	if err != nil {
		assert.True(t, errors.Is(err, exception.ErrQuoteUnavailable))
	}
}

func TestNilEngine(t *testing.T) {
	var engine *Engine
	inner := newStore(t)
	assert.Same(t, inner, engine.Store(inner))

	base := oracle.NewStatic(nil)
	assert.Equal(t, oracle.Oracle(base), engine.Oracle(base))
}
