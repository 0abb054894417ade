package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"stockfolio/internal/chaos"
	"stockfolio/internal/ledger"
	"stockfolio/internal/model"
	"stockfolio/internal/obs"
	"stockfolio/internal/oracle"
	"stockfolio/internal/order"
	"stockfolio/internal/refresher"

	"github.com/shopspring/decimal"
)

type soakConfig struct {
	Seed     int64
	Users    int
	Workers  int
	Trades   int
	Balance  decimal.Decimal
	Symbols  []string
	Chaos    chaos.Config
	Interval time.Duration
}

type soakReport struct {
	Trades   int
	Failed   int
	Verified int
	Mismatch []string
	Metrics  obs.Snapshot
}

func main() {
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	users := flag.Int("users", 4, "Number of accounts")
	workers := flag.Int("workers", 8, "Concurrent traders")
	trades := flag.Int("trades", 1000, "Trades per worker")
	balance := flag.String("balance", "10000", "Opening balance per account")
	symbols := flag.String("symbols", "AAPL,MSFT,TSLA", "Comma separated symbols")
	storeRate := flag.Float64("store-failure-rate", 0.05, "Store failure probability [0-1]")
	quoteRate := flag.Float64("quote-failure-rate", 0.05, "Quote failure probability [0-1]")
	maxDelay := flag.Duration("max-delay", 0, "Max injected latency per call")
	interval := flag.Duration("refresh-interval", 10*time.Millisecond, "Price refresh interval")
	flag.Parse()

	opening, err := decimal.NewFromString(*balance)
	if err != nil {
		log.Fatalf("balance invalid: %v", err)
	}
	if *seed == 0 {
		*seed = time.Now().UTC().UnixNano()
	}

	report, err := soak(context.Background(), soakConfig{
		Seed:    *seed,
		Users:   *users,
		Workers: *workers,
		Trades:  *trades,
		Balance: opening,
		Symbols: strings.Split(*symbols, ","),
		Chaos: chaos.Config{
			Seed:             *seed,
			StoreFailureRate: *storeRate,
			QuoteFailureRate: *quoteRate,
			MaxDelay:         *maxDelay,
		},
		Interval: *interval,
	})
	if err != nil {
		log.Fatalf("soak failed: %v", err)
	}

	fmt.Printf("seed=%d trades=%d failed=%d verified=%d mismatched=%d\n",
		*seed, report.Trades, report.Failed, report.Verified, len(report.Mismatch))
	for _, m := range report.Mismatch {
		fmt.Println("  " + m)
	}
	out, _ := json.MarshalIndent(report.Metrics, "", "  ")
	fmt.Println(string(out))

	if len(report.Mismatch) != 0 {
		os.Exit(1)
	}
}

// soak runs random trades against an in-memory ledger behind fault injection, then replays
// every account log and compares it with the stored state.
func soak(ctx context.Context, cfg soakConfig) (soakReport, error) {
	if cfg.Users <= 0 || cfg.Workers <= 0 || cfg.Trades <= 0 {
		return soakReport{}, fmt.Errorf("users, workers and trades must be > 0")
	}
	symbols := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		if s = model.NormalizeSymbol(s); len(s) != 0 {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		return soakReport{}, fmt.Errorf("no symbols")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Millisecond
	}

	engine, err := chaos.NewEngine(cfg.Chaos)
	if err != nil {
		return soakReport{}, err
	}

	base := ledger.NewMemory()
	userIDs := make([]string, cfg.Users)
	for i := range userIDs {
		userIDs[i] = strconv.Itoa(i + 1)
		if _, err := base.CreateAccount(ctx, userIDs[i], cfg.Balance); err != nil {
			return soakReport{}, err
		}
	}

	prices := oracle.NewStatic(nil)
	rng := rand.New(rand.NewSource(cfg.Seed))
	for _, s := range symbols {
		prices.Set(s, randomPrice(rng))
	}

	store := engine.Store(base)
	quotes := engine.Oracle(prices)
	metrics := obs.NewMetrics()
	orders := order.NewUsecase(store, quotes, metrics, order.Config{})
	refresh := refresher.New(store, quotes, metrics, refresher.Config{Interval: cfg.Interval})

	runCtx, cancel := context.WithCancel(ctx)
	var bg sync.WaitGroup
	bg.Add(2)
	go func() {
		defer bg.Done()
		_ = refresh.Run(runCtx)
	}()
	go func() {
		defer bg.Done()
		// Price moves race the traders.
		local := rand.New(rand.NewSource(cfg.Seed + 1))
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				prices.Set(symbols[local.Intn(len(symbols))], randomPrice(local))
			}
		}
	}()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			local := rand.New(rand.NewSource(cfg.Seed + int64(w) + 2))
			var localFailed int
			for i := 0; i < cfg.Trades; i++ {
				req := order.Request{
					UserID: userIDs[local.Intn(len(userIDs))],
					Symbol: symbols[local.Intn(len(symbols))],
					Shares: decimal.NewFromInt(int64(local.Intn(10) + 1)),
				}
				var err error
				if local.Intn(2) == 0 {
					_, err = orders.Buy(ctx, req)
				} else {
					_, err = orders.Sell(ctx, req)
				}
				if err != nil {
					localFailed++
				}
			}
			mu.Lock()
			failed += localFailed
			mu.Unlock()
		}(w)
	}
	wg.Wait()
	cancel()
	bg.Wait()

	report := soakReport{Trades: cfg.Workers * cfg.Trades, Failed: failed}
	for _, userID := range userIDs {
		if _, err := ledger.Verify(ctx, base, userID); err != nil {
			report.Mismatch = append(report.Mismatch, fmt.Sprintf("user=%s %v", userID, err))
			continue
		}
		report.Verified++
	}
	report.Metrics = metrics.Snapshot()
	return report, nil
}

func randomPrice(rng *rand.Rand) decimal.Decimal {
	return decimal.New(int64(rng.Intn(50000)+100), -2)
}
