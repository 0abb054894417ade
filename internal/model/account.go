package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a user's cash balance.
type Account struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`

	// OpeningBalance is the cash the account was funded with, the starting point of a log replay.
	OpeningBalance decimal.Decimal `json:"opening_balance"`

	// LastTradeAt is the timestamp of the newest transaction record of the user.
	LastTradeAt time.Time `json:"last_trade_at"`
}

// Holding is a user's position in one symbol. A holding never carries zero shares.
type Holding struct {
	UserID    string          `json:"-"`
	Symbol    string          `json:"symbol"`
	Shares    decimal.Decimal `json:"shares"`
	LastPrice decimal.Decimal `json:"price"`
}

// MarketValue is the informational value of the position at the cached price.
func (h Holding) MarketValue() decimal.Decimal {
	return h.Shares.Mul(h.LastPrice)
}

// Portfolio is the read model returned to the request layer.
type Portfolio struct {
	Balance  decimal.Decimal `json:"balance"`
	Holdings []Holding       `json:"portfolio"`
}

// TotalValue is the cash balance plus the market value of every holding.
func (p Portfolio) TotalValue() decimal.Decimal {
	total := p.Balance
	for _, h := range p.Holdings {
		total = total.Add(h.MarketValue())
	}
	return total
}
