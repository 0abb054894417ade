package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"sync"
	"time"

	"stockfolio/internal/api"
	"stockfolio/internal/chaos"
	"stockfolio/internal/ledger"
	"stockfolio/internal/ledger/pg"
	"stockfolio/internal/obs"
	"stockfolio/internal/oracle"
	"stockfolio/internal/ops"
	"stockfolio/internal/order"
	"stockfolio/internal/refresher"
	"stockfolio/pkg/conn"
	"stockfolio/pkg/exception"
	"stockfolio/pkg/retry"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	envFile := flag.String("env-file", ".env", "Env file loaded before overrides (missing file is ignored)")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "Grace period for in-flight requests")
	flag.Parse()

	loaded, err := ops.Load(*configPath, *envFile)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if len(loaded.Profiling.ServerAddress) != 0 {
		profiler, err := startProfiler(loaded.Profiling)
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	if err := run(loaded, *shutdownTimeout); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run(loaded ops.Loaded, shutdownTimeout time.Duration) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, loaded)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := seedAccounts(ctx, store, loaded.Accounts); err != nil {
		return err
	}

	quotes, closeOracle, err := buildOracle(ctx, loaded)
	if err != nil {
		return err
	}
	defer closeOracle()

	if loaded.Chaos.Enabled() {
		engine, err := chaos.NewEngine(loaded.Chaos)
		if err != nil {
			return err
		}
		logs.Infof("chaos enabled, store failure rate: %v, quote failure rate: %v, max delay: %s",
			loaded.Chaos.StoreFailureRate, loaded.Chaos.QuoteFailureRate, loaded.Chaos.MaxDelay)
		store = engine.Store(store)
		quotes = engine.Oracle(quotes)
	}

	metrics := obs.NewMetrics()
	orders := order.NewUsecase(store, quotes, metrics, order.Config{
		StoreAttempts: loaded.StoreAttempts,
		StoreTimeout:  loaded.StoreTimeout,
		Backoff: retry.Backoff{
			Min:    loaded.RetryMin,
			Max:    loaded.RetryMax,
			Factor: 2.0,
			Jitter: 0.2,
		},
	})
	prices := refresher.New(store, quotes, metrics, refresher.Config{
		Interval:     loaded.RefreshInterval,
		QuoteTimeout: loaded.RefreshQuoteTimeout,
		StoreTimeout: loaded.RefreshStoreTimeout,
	})
	server := api.New(orders, metrics)

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := prices.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Listen(loaded.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-sys.Shutdown():
		logs.Info("shutdown signal received")
	case runErr = <-errCh:
		logs.Errorf("component stopped, err: %+v", runErr)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logs.Errorf("api shutdown, err: %+v", err)
	}
	cancel()
	wg.Wait()

	logs.Info("server exited")
	return runErr
}

func openStore(ctx context.Context, loaded ops.Loaded) (ledger.Store, func(), error) {
	if !loaded.Database.Enabled() {
		logs.Info("no database configured, using the in-memory ledger")
		return ledger.NewMemory(), func() {}, nil
	}

	client, err := conn.New(ctx, loaded.Database)
	if err != nil {
		return nil, nil, err
	}
	store := pg.New(client.DB())
	if loaded.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}

	closeStore := func() {
		if err := client.Close(); err != nil {
			logs.Errorf("close database, err: %+v", err)
		}
	}
	return store, closeStore, nil
}

func seedAccounts(ctx context.Context, store ledger.Store, accounts []ops.SeedAccount) error {
	for _, a := range accounts {
		_, err := store.CreateAccount(ctx, a.UserID, a.Balance)
		switch {
		case err == nil:
			logs.Infof("account %s opened with %s", a.UserID, a.Balance)
		case errors.Is(err, exception.ErrAccountExists):
		default:
			return err
		}
	}
	return nil
}

func buildOracle(ctx context.Context, loaded ops.Loaded) (oracle.Oracle, func(), error) {
	if err := loaded.Oracle.Validate(); err != nil {
		return nil, nil, err
	}

	var base oracle.Oracle
	switch loaded.Oracle.Provider {
	case ops.ProviderStatic:
		base = oracle.NewStatic(loaded.Oracle.Prices)
	default:
		client := &http.Client{Timeout: loaded.Oracle.Timeout}
		base = oracle.NewFinnhub(client, loaded.Oracle.BaseURL, loaded.Oracle.APIKey)
	}
	quotes := oracle.WithTimeout(base, loaded.Oracle.Timeout)

	if !loaded.Cache.Enabled {
		return quotes, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     loaded.Cache.RedisAddr,
		Password: loaded.Cache.Password,
		DB:       loaded.Cache.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The cache is optional, quotes fall through to the feed while redis is down.
		logs.Errorf("redis ping %s, err: %+v", loaded.Cache.RedisAddr, err)
	}

	closeCache := func() {
		if err := rdb.Close(); err != nil {
			logs.Errorf("close redis, err: %+v", err)
		}
	}
	return oracle.NewCached(quotes, rdb, loaded.Cache.TTL), closeCache, nil
}

func startProfiler(cfg ops.ProfilingConfig) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  { logs.Infof(format, args...) }
func (profilerLogger) Debugf(_ string, _ ...interface{})         {}
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
