package ledger

import (
	"context"

	"stockfolio/internal/model"

	"github.com/shopspring/decimal"
)

// Store is the single source of truth for accounts, holdings and the transaction log.
//
// ApplyTrade and UpdateCachedPrice are atomic per affected row: trades on the same user are
// totally ordered, and a price refresh never interleaves with a trade on the same holding row.
type Store interface {
	// CreateAccount funds a new account. It returns ErrAccountExists for a known user.
	CreateAccount(ctx context.Context, userID string, openingBalance decimal.Decimal) (model.Account, error)

	// GetAccount returns ErrUserNotFound for an unknown user.
	GetAccount(ctx context.Context, userID string) (model.Account, error)

	// GetHolding reports false when the user holds none of the symbol.
	GetHolding(ctx context.Context, userID, symbol string) (model.Holding, bool, error)

	// ListHoldings returns the user's holdings ordered by symbol.
	ListHoldings(ctx context.Context, userID string) ([]model.Holding, error)

	// ListDistinctHeldSymbols returns every symbol held by any user, ordered.
	ListDistinctHeldSymbols(ctx context.Context) ([]string, error)

	// ListTransactions returns the user's transaction log, oldest first.
	ListTransactions(ctx context.Context, userID string) ([]model.TransactionRecord, error)

	// ApplyTrade commits a priced trade as one atomic unit and returns the new balance.
	ApplyTrade(ctx context.Context, trade model.Trade) (decimal.Decimal, error)

	// UpdateCachedPrice overwrites last_price of every holding of symbol and returns the
	// number of rows touched. It never changes balances, shares or the log.
	UpdateCachedPrice(ctx context.Context, symbol string, price decimal.Decimal) (int, error)
}
