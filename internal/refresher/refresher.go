/*
Refresher keeps the cached last_price of every held symbol close to the market.

# Cycle
 1. list the distinct symbols held by any user
 2. quote each symbol with its own timeout
 3. write each successful quote with one short atomic update

A failed symbol is logged and skipped; it is retried on the next tick. No lock is held across
a cycle, so trades only ever wait for a single symbol update.
*/
package refresher

import (
	"context"
	"sync/atomic"
	"time"

	"stockfolio/internal/ledger"
	"stockfolio/internal/obs"
	"stockfolio/internal/oracle"
	"stockfolio/pkg/exception"

	"github.com/yanun0323/logs"
)

const (
	defaultInterval     = 5 * time.Second
	defaultQuoteTimeout = 3 * time.Second
	defaultStoreTimeout = 5 * time.Second
)

// Ticker is the part of time.Ticker the refresher uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the production ticker factory.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Config tunes the refresher. Zero values take defaults.
type Config struct {
	Interval     time.Duration
	QuoteTimeout time.Duration
	StoreTimeout time.Duration

	// NewTicker replaces the wall clock, mainly in tests.
	NewTicker func(time.Duration) Ticker
}

// Report summarizes one cycle.
type Report struct {
	Symbols   int
	Refreshed int
	Rows      int
	Failed    []string
}

// Refresher is the background price refresh task.
type Refresher struct {
	store   ledger.Store
	oracle  oracle.Oracle
	metrics *obs.Metrics

	interval     time.Duration
	quoteTimeout time.Duration
	storeTimeout time.Duration
	newTicker    func(time.Duration) Ticker

	running atomic.Bool
}

// New builds a refresher. metrics may be nil.
func New(store ledger.Store, o oracle.Oracle, metrics *obs.Metrics, cfg Config) *Refresher {
	r := &Refresher{
		store:        store,
		oracle:       o,
		metrics:      metrics,
		interval:     cfg.Interval,
		quoteTimeout: cfg.QuoteTimeout,
		storeTimeout: cfg.StoreTimeout,
		newTicker:    cfg.NewTicker,
	}
	if r.interval <= 0 {
		r.interval = defaultInterval
	}
	if r.quoteTimeout <= 0 {
		r.quoteTimeout = defaultQuoteTimeout
	}
	if r.storeTimeout <= 0 {
		r.storeTimeout = defaultStoreTimeout
	}
	if r.newTicker == nil {
		r.newTicker = NewTimeTicker
	}
	return r
}

// Run refreshes once immediately and then on every tick until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	if r == nil || r.store == nil || r.oracle == nil {
		return exception.ErrNilInstance
	}
	if r.running.Swap(true) {
		return exception.ErrRefresherRunning
	}
	defer r.running.Store(false)

	ticker := r.newTicker(r.interval)
	defer ticker.Stop()

	logs.Infof("price refresher started, interval: %s", r.interval)
	r.RefreshOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			logs.Info("price refresher stopped")
			return nil
		case <-ticker.C():
			r.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce runs a single cycle. Failures never escape it.
func (r *Refresher) RefreshOnce(ctx context.Context) Report {
	start := time.Now()
	var report Report
	defer func() {
		r.metrics.ObserveRefresh(report.Symbols, len(report.Failed), report.Rows, time.Since(start))
	}()

	lctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	symbols, err := r.store.ListDistinctHeldSymbols(lctx)
	cancel()
	if err != nil {
		logs.Errorf("list held symbols, err: %+v", err)
		return report
	}
	report.Symbols = len(symbols)

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return report
		}

		rows, err := r.refreshSymbol(ctx, symbol)
		if err != nil {
			logs.Errorf("refresh %s, err: %+v", symbol, err)
			report.Failed = append(report.Failed, symbol)
			continue
		}
		report.Refreshed++
		report.Rows += rows
	}

	if len(report.Failed) != 0 || report.Symbols != 0 {
		logs.Infof("price refresh cycle, symbols: %d, refreshed: %d, failed: %v", report.Symbols, report.Refreshed, report.Failed)
	}
	return report
}

func (r *Refresher) refreshSymbol(ctx context.Context, symbol string) (int, error) {
	qctx, cancel := context.WithTimeout(ctx, r.quoteTimeout)
	defer cancel()

	price, err := r.oracle.Quote(qctx, symbol)
	if err != nil {
		return 0, err
	}

	sctx, cancelStore := context.WithTimeout(ctx, r.storeTimeout)
	defer cancelStore()
	return r.store.UpdateCachedPrice(sctx, symbol, price)
}
