package oracle

import (
	"context"
	"time"

	"stockfolio/internal/errors"
	"stockfolio/pkg/exception"

	"github.com/shopspring/decimal"
)

// Oracle resolves the latest market price of a symbol.
// A returned price is always > 0; every failure matches exception.ErrQuoteUnavailable.
type Oracle interface {
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, symbol string) (decimal.Decimal, error)

func (f Func) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f(ctx, symbol)
}

// unavailable tags cause as a quote failure.
func unavailable(cause error, symbol string) error {
	return errors.Mark(exception.ErrQuoteUnavailable, errors.Wrapf(cause, "quote %s", symbol))
}

// checkPrice rejects zero and negative prices.
func checkPrice(price decimal.Decimal, symbol string) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Decimal{}, errors.Wrapf(exception.ErrQuoteUnavailable, "quote %s: non-positive price %s", symbol, price)
	}
	return price, nil
}

type timeoutOracle struct {
	next    Oracle
	timeout time.Duration
}

// WithTimeout bounds every lookup of next; a lookup past timeout fails as unavailable.
func WithTimeout(next Oracle, timeout time.Duration) Oracle {
	if timeout <= 0 {
		return next
	}
	return &timeoutOracle{next: next, timeout: timeout}
}

func (o *timeoutOracle) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	type result struct {
		price decimal.Decimal
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		price, err := o.next.Quote(ctx, symbol)
		ch <- result{price: price, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return decimal.Decimal{}, errors.Mark(exception.ErrQuoteUnavailable, r.err)
		}
		return checkPrice(r.price, symbol)
	case <-ctx.Done():
		return decimal.Decimal{}, unavailable(ctx.Err(), symbol)
	}
}
