package oracle

import (
	"context"
	"sync"

	"stockfolio/internal/errors"
	"stockfolio/internal/model"
	"stockfolio/pkg/exception"

	"github.com/shopspring/decimal"
)

// Static serves prices from an in-memory table. Paper trading and tests use it.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStatic copies prices into a new table.
func NewStatic(prices map[string]decimal.Decimal) *Static {
	s := &Static{prices: make(map[string]decimal.Decimal, len(prices))}
	for symbol, price := range prices {
		s.prices[model.NormalizeSymbol(symbol)] = price
	}
	return s
}

// Set replaces the price of symbol.
func (s *Static) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[model.NormalizeSymbol(symbol)] = price
}

// Delete makes symbol unresolvable.
func (s *Static) Delete(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, model.NormalizeSymbol(symbol))
}

func (s *Static) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Decimal{}, unavailable(err, symbol)
	}

	s.mu.RLock()
	price, ok := s.prices[model.NormalizeSymbol(symbol)]
	s.mu.RUnlock()
	if !ok {
		return decimal.Decimal{}, errors.Wrapf(exception.ErrQuoteUnavailable, "quote %s: unknown symbol", symbol)
	}
	return checkPrice(price, symbol)
}
