package model

import (
	"time"

	"stockfolio/internal/errors"
	"stockfolio/internal/model/enum"
	"stockfolio/pkg/exception"

	"github.com/google/uuid"
)

// Effect is the complete set of writes a trade commits.
type Effect struct {
	Account Account

	// Holding is the row after the trade, nil when the row must not exist.
	Holding *Holding

	Record TransactionRecord
}

// Apply computes the effect of trade on the current account and holding rows.
// holding is nil when the user holds none of the symbol. Apply never mutates its arguments, so a
// rejected trade leaves the caller's state untouched.
func Apply(account Account, holding *Holding, trade Trade, now time.Time) (Effect, error) {
	if err := trade.Validate(); err != nil {
		return Effect{}, err
	}

	if holding != nil && holding.Symbol != trade.Symbol {
		return Effect{}, errors.Wrapf(exception.ErrInternal, "holding %s does not match trade symbol %s", holding.Symbol, trade.Symbol)
	}

	notional := trade.Notional()
	var next *Holding

	switch trade.Kind {
	case enum.TradeKindBuy:
		if account.Balance.LessThan(notional) {
			return Effect{}, errors.Wrapf(exception.ErrInsufficientFunds, "balance %s, cost %s", account.Balance, notional)
		}
		account.Balance = account.Balance.Sub(notional)

		h := Holding{UserID: trade.UserID, Symbol: trade.Symbol, Shares: trade.Shares}
		if holding != nil {
			h.Shares = holding.Shares.Add(trade.Shares)
		}
		h.LastPrice = trade.Price
		next = &h
	case enum.TradeKindSell:
		if holding == nil || holding.Shares.LessThan(trade.Shares) {
			held := "0"
			if holding != nil {
				held = holding.Shares.String()
			}
			return Effect{}, errors.Wrapf(exception.ErrInsufficientShares, "holding %s, selling %s", held, trade.Shares)
		}
		account.Balance = account.Balance.Add(notional)

		remaining := holding.Shares.Sub(trade.Shares)
		if !remaining.IsZero() {
			h := *holding
			h.Shares = remaining
			next = &h
		}
	}

	ts := now.UTC()
	if ts.Before(account.LastTradeAt) {
		ts = account.LastTradeAt
	}
	account.LastTradeAt = ts

	return Effect{
		Account: account,
		Holding: next,
		Record: TransactionRecord{
			ID:        uuid.New(),
			UserID:    trade.UserID,
			Symbol:    trade.Symbol,
			Shares:    trade.Shares,
			Price:     trade.Price,
			Kind:      trade.Kind,
			Timestamp: ts,
		},
	}, nil
}
