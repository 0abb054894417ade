package obs

import (
	"errors"
	"sync/atomic"
	"time"

	"stockfolio/internal/model/enum"
	"stockfolio/pkg/exception"
)

// Outcome classifies how a trade request ended.
type Outcome uint8

const (
	OutcomeCommitted Outcome = iota
	OutcomeInvalidInput
	OutcomeUserNotFound
	OutcomeUnknownSymbol
	OutcomeInsufficientFunds
	OutcomeInsufficientShares
	OutcomeStoreFailure
	OutcomeOther
	_outcome_end
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeInvalidInput:
		return "invalid_input"
	case OutcomeUserNotFound:
		return "user_not_found"
	case OutcomeUnknownSymbol:
		return "unknown_symbol"
	case OutcomeInsufficientFunds:
		return "insufficient_funds"
	case OutcomeInsufficientShares:
		return "insufficient_shares"
	case OutcomeStoreFailure:
		return "store_failure"
	default:
		return "other"
	}
}

// OutcomeOf maps a trade error to its outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeCommitted
	case errors.Is(err, exception.ErrInvalidInput):
		return OutcomeInvalidInput
	case errors.Is(err, exception.ErrUserNotFound):
		return OutcomeUserNotFound
	case errors.Is(err, exception.ErrUnknownSymbol):
		return OutcomeUnknownSymbol
	case errors.Is(err, exception.ErrInsufficientFunds):
		return OutcomeInsufficientFunds
	case errors.Is(err, exception.ErrInsufficientShares):
		return OutcomeInsufficientShares
	case errors.Is(err, exception.ErrStoreFailure):
		return OutcomeStoreFailure
	default:
		return OutcomeOther
	}
}

const kindSlots = 3

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	tradeCounts [kindSlots][_outcome_end]uint64

	refreshCycles   uint64
	refreshSymbols  uint64
	refreshFailures uint64
	refreshRows     uint64

	tradeLatency   LatencyStats
	refreshLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min_ns"`
	Max   time.Duration `json:"max_ns"`
	Avg   time.Duration `json:"avg_ns"`
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Trades          map[string]map[string]uint64 `json:"trades"`
	RefreshCycles   uint64                       `json:"refresh_cycles"`
	RefreshSymbols  uint64                       `json:"refresh_symbols"`
	RefreshFailures uint64                       `json:"refresh_failures"`
	RefreshRows     uint64                       `json:"refresh_rows"`
	TradeLatency    LatencySnapshot              `json:"trade_latency"`
	RefreshLatency  LatencySnapshot              `json:"refresh_latency"`
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveTrade counts a finished trade request and its latency.
func (m *Metrics) ObserveTrade(kind enum.TradeKind, err error, d time.Duration) {
	if m == nil {
		return
	}
	idx := int(kind)
	if !kind.IsAvailable() || idx >= kindSlots {
		idx = 0
	}
	atomic.AddUint64(&m.tradeCounts[idx][OutcomeOf(err)], 1)
	m.tradeLatency.Observe(d)
}

// ObserveRefresh records one refresher cycle.
func (m *Metrics) ObserveRefresh(symbols, failures, rows int, d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.refreshCycles, 1)
	atomic.AddUint64(&m.refreshSymbols, uint64(symbols))
	atomic.AddUint64(&m.refreshFailures, uint64(failures))
	atomic.AddUint64(&m.refreshRows, uint64(rows))
	m.refreshLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	trades := make(map[string]map[string]uint64)
	for k := range m.tradeCounts {
		for o := range m.tradeCounts[k] {
			v := atomic.LoadUint64(&m.tradeCounts[k][o])
			if v == 0 {
				continue
			}
			kind := enum.TradeKind(k).String()
			if trades[kind] == nil {
				trades[kind] = make(map[string]uint64)
			}
			trades[kind][Outcome(o).String()] = v
		}
	}
	return Snapshot{
		Trades:          trades,
		RefreshCycles:   atomic.LoadUint64(&m.refreshCycles),
		RefreshSymbols:  atomic.LoadUint64(&m.refreshSymbols),
		RefreshFailures: atomic.LoadUint64(&m.refreshFailures),
		RefreshRows:     atomic.LoadUint64(&m.refreshRows),
		TradeLatency:    m.tradeLatency.Snapshot(),
		RefreshLatency:  m.refreshLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
