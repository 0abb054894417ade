// Package ledgertest holds the behavior every ledger.Store backend must share.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"stockfolio/internal/ledger"
	"stockfolio/internal/model"
	"stockfolio/internal/model/enum"
	"stockfolio/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. Each call must return an isolated store.
type Factory func(t *testing.T) ledger.Store

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func trade(userID, symbol, shares, price string, kind enum.TradeKind) model.Trade {
	return model.Trade{UserID: userID, Symbol: symbol, Shares: dec(shares), Price: dec(price), Kind: kind}
}

// Run executes the shared suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("buy then sell", func(t *testing.T) { testBuyThenSell(t, newStore(t)) })
	t.Run("insufficient funds leaves no trace", func(t *testing.T) { testInsufficientFunds(t, newStore(t)) })
	t.Run("insufficient shares leaves no trace", func(t *testing.T) { testInsufficientShares(t, newStore(t)) })
	t.Run("unknown user", func(t *testing.T) { testUnknownUser(t, newStore(t)) })
	t.Run("duplicate account", func(t *testing.T) { testDuplicateAccount(t, newStore(t)) })
	t.Run("cached price update", func(t *testing.T) { testUpdateCachedPrice(t, newStore(t)) })
	t.Run("concurrent buys never overdraw", func(t *testing.T) { testConcurrentBuys(t, newStore(t)) })
	t.Run("concurrent sells never oversell", func(t *testing.T) { testConcurrentSells(t, newStore(t)) })
	t.Run("refresh racing trades keeps shares", func(t *testing.T) { testRefreshRacingTrades(t, newStore(t)) })
	t.Run("replay round trip", func(t *testing.T) { testReplay(t, newStore(t)) })
}

func testBuyThenSell(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	_, err := store.CreateAccount(ctx, "u1", dec("1000"))
	require.NoError(t, err)

	balance, err := store.ApplyTrade(ctx, trade("u1", "AAPL", "4", "100", enum.TradeKindBuy))
	require.NoError(t, err)
	assert.True(t, dec("600").Equal(balance), "balance %s", balance)

	h, ok, err := store.GetHolding(ctx, "u1", "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, dec("4").Equal(h.Shares))
	assert.True(t, dec("100").Equal(h.LastPrice))

	balance, err = store.ApplyTrade(ctx, trade("u1", "AAPL", "1", "120", enum.TradeKindSell))
	require.NoError(t, err)
	assert.True(t, dec("720").Equal(balance), "balance %s", balance)

	balance, err = store.ApplyTrade(ctx, trade("u1", "AAPL", "3", "90", enum.TradeKindSell))
	require.NoError(t, err)
	assert.True(t, dec("990").Equal(balance), "balance %s", balance)

	_, ok, err = store.GetHolding(ctx, "u1", "AAPL")
	require.NoError(t, err)
	assert.False(t, ok, "a holding sold down to zero must not exist")

	holdings, err := store.ListHoldings(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, holdings)

	symbols, err := store.ListDistinctHeldSymbols(ctx)
	require.NoError(t, err)
	assert.Empty(t, symbols)

	records, err := store.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, enum.TradeKindBuy, records[0].Kind)
	assert.True(t, dec("100").Equal(records[0].Price))
	assert.Equal(t, enum.TradeKindSell, records[1].Kind)
	assert.True(t, dec("120").Equal(records[1].Price))
	for i := 1; i < len(records); i++ {
		assert.False(t, records[i].Timestamp.Before(records[i-1].Timestamp), "timestamps must not go backwards")
	}
}

func testInsufficientFunds(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	_, err := store.CreateAccount(ctx, "u1", dec("100"))
	require.NoError(t, err)

	_, err = store.ApplyTrade(ctx, trade("u1", "AAPL", "10", "11", enum.TradeKindBuy))
	require.ErrorIs(t, err, exception.ErrInsufficientFunds)

	account, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(account.Balance))

	_, ok, err := store.GetHolding(ctx, "u1", "AAPL")
	require.NoError(t, err)
	assert.False(t, ok)

	records, err := store.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func testInsufficientShares(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	_, err := store.CreateAccount(ctx, "u1", dec("100"))
	require.NoError(t, err)
	_, err = store.ApplyTrade(ctx, trade("u1", "AAPL", "5", "10", enum.TradeKindBuy))
	require.NoError(t, err)

	_, err = store.ApplyTrade(ctx, trade("u1", "AAPL", "6", "10", enum.TradeKindSell))
	require.ErrorIs(t, err, exception.ErrInsufficientShares)

	_, err = store.ApplyTrade(ctx, trade("u1", "MSFT", "1", "10", enum.TradeKindSell))
	require.ErrorIs(t, err, exception.ErrInsufficientShares)

	h, ok, err := store.GetHolding(ctx, "u1", "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, dec("5").Equal(h.Shares))

	account, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(account.Balance))

	records, err := store.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func testUnknownUser(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	_, err := store.GetAccount(ctx, "ghost")
	require.ErrorIs(t, err, exception.ErrUserNotFound)

	_, err = store.ApplyTrade(ctx, trade("ghost", "AAPL", "1", "1", enum.TradeKindBuy))
	require.ErrorIs(t, err, exception.ErrUserNotFound)
}

func testDuplicateAccount(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	_, err := store.CreateAccount(ctx, "u1", dec("1"))
	require.NoError(t, err)
	_, err = store.CreateAccount(ctx, "u1", dec("2"))
	require.ErrorIs(t, err, exception.ErrAccountExists)

	_, err = store.CreateAccount(ctx, "u2", dec("-1"))
	require.ErrorIs(t, err, exception.ErrInvalidInput)
}

func testUpdateCachedPrice(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	for _, user := range []string{"u1", "u2"} {
		_, err := store.CreateAccount(ctx, user, dec("1000"))
		require.NoError(t, err)
		_, err = store.ApplyTrade(ctx, trade(user, "AAPL", "2", "100", enum.TradeKindBuy))
		require.NoError(t, err)
	}
	_, err := store.ApplyTrade(ctx, trade("u1", "MSFT", "1", "50", enum.TradeKindBuy))
	require.NoError(t, err)

	symbols, err := store.ListDistinctHeldSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)

	before, err := store.ListTransactions(ctx, "u1")
	require.NoError(t, err)

	for range 2 {
		n, err := store.UpdateCachedPrice(ctx, "AAPL", dec("130"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}

	for _, user := range []string{"u1", "u2"} {
		h, ok, err := store.GetHolding(ctx, user, "AAPL")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, dec("130").Equal(h.LastPrice))
		assert.True(t, dec("2").Equal(h.Shares))
	}

	msft, _, err := store.GetHolding(ctx, "u1", "MSFT")
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(msft.LastPrice), "other symbols keep their price")

	account, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, dec("750").Equal(account.Balance))

	after, err := store.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.True(t, before[i].Price.Equal(after[i].Price), "recorded trade prices are never rewritten")
	}

	n, err := store.UpdateCachedPrice(ctx, "NONE", dec("1"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testConcurrentBuys(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	_, err := store.CreateAccount(ctx, "u1", dec("1000"))
	require.NoError(t, err)

	const workers = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		rejected int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ApplyTrade(ctx, trade("u1", "AAPL", "1", "100", enum.TradeKindBuy))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case assert.ErrorIs(t, err, exception.ErrInsufficientFunds):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, success)
	assert.Equal(t, workers-10, rejected)

	account, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero(), "balance %s", account.Balance)

	h, ok, err := store.GetHolding(ctx, "u1", "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, dec("10").Equal(h.Shares))
}

func testConcurrentSells(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	_, err := store.CreateAccount(ctx, "u1", dec("100"))
	require.NoError(t, err)
	_, err = store.ApplyTrade(ctx, trade("u1", "AAPL", "5", "20", enum.TradeKindBuy))
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ApplyTrade(ctx, trade("u1", "AAPL", "1", "20", enum.TradeKindSell)); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, exception.ErrInsufficientShares)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, success)
	_, ok, err := store.GetHolding(ctx, "u1", "AAPL")
	require.NoError(t, err)
	assert.False(t, ok)

	account, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(account.Balance))
}

func testRefreshRacingTrades(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	_, err := store.CreateAccount(ctx, "u1", dec("100000"))
	require.NoError(t, err)
	_, err = store.ApplyTrade(ctx, trade("u1", "AAPL", "1", "10", enum.TradeKindBuy))
	require.NoError(t, err)

	const trades = 40
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range trades {
			_, err := store.ApplyTrade(ctx, trade("u1", "AAPL", "1", "10", enum.TradeKindBuy))
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := range trades {
			_, err := store.UpdateCachedPrice(ctx, "AAPL", dec(fmt.Sprintf("%d", 11+i)))
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	h, ok, err := store.GetHolding(ctx, "u1", "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, dec(fmt.Sprintf("%d", trades+1)).Equal(h.Shares), "shares %s", h.Shares)
}

func testReplay(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	_, err := store.CreateAccount(ctx, "u1", dec("500"))
	require.NoError(t, err)

	steps := []model.Trade{
		trade("u1", "AAPL", "2", "100", enum.TradeKindBuy),
		trade("u1", "MSFT", "0.5", "200", enum.TradeKindBuy),
		trade("u1", "AAPL", "1", "150", enum.TradeKindSell),
		trade("u1", "MSFT", "0.5", "210", enum.TradeKindSell),
		trade("u1", "AAPL", "1.25", "90", enum.TradeKindBuy),
	}
	for _, step := range steps {
		_, err := store.ApplyTrade(ctx, step)
		require.NoError(t, err)
	}
	_, err = store.UpdateCachedPrice(ctx, "AAPL", dec("1000"))
	require.NoError(t, err)

	snapshot, err := ledger.Verify(ctx, store, "u1")
	require.NoError(t, err)

	account, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(snapshot.Balance))
	require.Len(t, snapshot.Holdings, 1)
	assert.True(t, dec("2.25").Equal(snapshot.Holdings["AAPL"]))
}
