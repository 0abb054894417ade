package chaos

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"stockfolio/internal/errors"
	"stockfolio/internal/ledger"
	"stockfolio/internal/model"
	"stockfolio/internal/oracle"
	"stockfolio/pkg/exception"

	"github.com/shopspring/decimal"
)

var (
	errInjectedStore = errors.New("chaos: injected store failure")
	errInjectedQuote = errors.New("chaos: injected quote failure")
)

// Config controls fault injection. Faults are injected before the wrapped call so an
// injected store failure never leaves a partial write behind.
type Config struct {
	Seed             int64
	StoreFailureRate float64
	QuoteFailureRate float64
	MaxDelay         time.Duration
}

// Enabled reports whether any fault is configured.
func (c Config) Enabled() bool {
	return c.StoreFailureRate > 0 || c.QuoteFailureRate > 0 || c.MaxDelay > 0
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.StoreFailureRate < 0 || c.StoreFailureRate > 1 {
		return fmt.Errorf("storeFailureRate must be between 0 and 1")
	}
	if c.QuoteFailureRate < 0 || c.QuoteFailureRate > 1 {
		return fmt.Errorf("quoteFailureRate must be between 0 and 1")
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("maxDelay must be >= 0")
	}
	return nil
}

// Engine rolls the dice for every wrapped call.
type Engine struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (e *Engine) roll(rate float64) bool {
	if rate <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64() < rate
}

func (e *Engine) delay(ctx context.Context) error {
	if e.cfg.MaxDelay <= 0 {
		return nil
	}
	e.mu.Lock()
	d := time.Duration(e.rng.Int63n(e.cfg.MaxDelay.Nanoseconds() + 1))
	e.mu.Unlock()
	if d == 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Store wraps next so writes fail at StoreFailureRate with ErrStoreFailure.
// A nil engine returns next unchanged.
func (e *Engine) Store(next ledger.Store) ledger.Store {
	if e == nil {
		return next
	}
	return &store{Store: next, engine: e}
}

// Oracle wraps next so quotes fail at QuoteFailureRate with ErrQuoteUnavailable.
// A nil engine returns next unchanged.
func (e *Engine) Oracle(next oracle.Oracle) oracle.Oracle {
	if e == nil {
		return next
	}
	return oracle.Func(func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		if err := e.delay(ctx); err != nil {
			return decimal.Zero, errors.Mark(exception.ErrQuoteUnavailable, err)
		}
		if e.roll(e.cfg.QuoteFailureRate) {
			return decimal.Zero, errors.Mark(exception.ErrQuoteUnavailable, errInjectedQuote)
		}
		return next.Quote(ctx, symbol)
	})
}

type store struct {
	ledger.Store
	engine *Engine
}

func (s *store) inject(ctx context.Context) error {
	if err := s.engine.delay(ctx); err != nil {
		return errors.Mark(exception.ErrStoreFailure, err)
	}
	if s.engine.roll(s.engine.cfg.StoreFailureRate) {
		return errors.Mark(exception.ErrStoreFailure, errInjectedStore)
	}
	return nil
}

func (s *store) ApplyTrade(ctx context.Context, trade model.Trade) (decimal.Decimal, error) {
	if err := s.inject(ctx); err != nil {
		return decimal.Zero, err
	}
	return s.Store.ApplyTrade(ctx, trade)
}

func (s *store) UpdateCachedPrice(ctx context.Context, symbol string, price decimal.Decimal) (int, error) {
	if err := s.inject(ctx); err != nil {
		return 0, err
	}
	return s.Store.UpdateCachedPrice(ctx, symbol, price)
}
