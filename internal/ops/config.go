package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"stockfolio/internal/chaos"
	"stockfolio/internal/errors"
	"stockfolio/internal/model"
	"stockfolio/pkg/conn"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Environment variables that override the file config.
const (
	EnvDatabaseURL   = "DATABASE_URL"
	EnvFinnhubAPIKey = "FINNHUB_API_KEY"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvHTTPAddr      = "HTTP_ADDR"
)

// Oracle providers.
const (
	ProviderFinnhub = "finnhub"
	ProviderStatic  = "static"
)

// Duration reads "5s" style strings or integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer nanoseconds: %s", b)
	}
	*d = Duration(n)
	return nil
}

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Oracle    OracleConfig    `json:"oracle"`
	Cache     CacheConfig     `json:"cache"`
	Refresher RefresherConfig `json:"refresher"`
	Order     OrderConfig     `json:"order"`
	Profiling ProfilingConfig `json:"profiling"`
	Chaos     ChaosConfig     `json:"chaos"`
	Accounts  []AccountConfig `json:"accounts"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// DatabaseConfig describes the postgres connection. An empty section selects the in-memory store.
type DatabaseConfig struct {
	conn.Option
	ConnMaxLifetime Duration `json:"connMaxLifetime"`
	ConnMaxIdleTime Duration `json:"connMaxIdleTime"`
	AutoMigrate     *bool    `json:"autoMigrate"`
}

// OracleConfig describes the market-data feed.
type OracleConfig struct {
	Provider string            `json:"provider"`
	BaseURL  string            `json:"baseUrl"`
	APIKey   string            `json:"apiKey"`
	Timeout  Duration          `json:"timeout"`
	Prices   map[string]string `json:"prices"`
}

// CacheConfig describes the optional redis quote cache.
type CacheConfig struct {
	RedisAddr string   `json:"redisAddr"`
	Password  string   `json:"password"`
	DB        int      `json:"db"`
	TTL       Duration `json:"ttl"`
}

// RefresherConfig describes the background price refresh.
type RefresherConfig struct {
	Interval     Duration `json:"interval"`
	QuoteTimeout Duration `json:"quoteTimeout"`
	StoreTimeout Duration `json:"storeTimeout"`
}

// OrderConfig describes store retries on the trade path.
type OrderConfig struct {
	StoreAttempts int      `json:"storeAttempts"`
	StoreTimeout  Duration `json:"storeTimeout"`
	RetryMin      Duration `json:"retryMin"`
	RetryMax      Duration `json:"retryMax"`
}

// ProfilingConfig enables continuous profiling when ServerAddress is set.
type ProfilingConfig struct {
	ServerAddress   string `json:"serverAddress"`
	ApplicationName string `json:"applicationName"`
}

// ChaosConfig injects store and quote faults, for staging only.
type ChaosConfig struct {
	Seed             int64    `json:"seed"`
	StoreFailureRate float64  `json:"storeFailureRate"`
	QuoteFailureRate float64  `json:"quoteFailureRate"`
	MaxDelay         Duration `json:"maxDelay"`
}

// AccountConfig seeds an account at start-up when it does not exist yet.
type AccountConfig struct {
	UserID  string `json:"userId"`
	Balance string `json:"balance"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	HTTPAddr string

	Database    conn.Option
	AutoMigrate bool

	Oracle Oracle
	Cache  Cache

	RefreshInterval     time.Duration
	RefreshQuoteTimeout time.Duration
	RefreshStoreTimeout time.Duration

	StoreAttempts int
	StoreTimeout  time.Duration
	RetryMin      time.Duration
	RetryMax      time.Duration

	Profiling ProfilingConfig
	Chaos     chaos.Config
	Accounts  []SeedAccount
}

// Oracle is the resolved market-data feed.
type Oracle struct {
	Provider string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Prices   map[string]decimal.Decimal
}

// Cache is the resolved quote cache; Enabled is false without a redis address.
type Cache struct {
	Enabled   bool
	RedisAddr string
	Password  string
	DB        int
	TTL       time.Duration
}

// SeedAccount is a resolved start-up account.
type SeedAccount struct {
	UserID  string
	Balance decimal.Decimal
}

// Load reads an optional JSON config file, then .env files, then environment overrides.
// An empty path uses defaults. Missing env files are ignored.
func Load(path string, envFiles ...string) (Loaded, error) {
	var cfg FileConfig
	if len(path) != 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := loadEnvFiles(envFiles); err != nil {
		return Loaded{}, err
	}
	applyEnv(&cfg)

	return resolve(cfg)
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(file); err != nil {
			return errors.Wrapf(err, "load env file %s", file)
		}
	}
	return nil
}

func applyEnv(cfg *FileConfig) {
	if v, ok := os.LookupEnv(EnvDatabaseURL); ok && len(v) != 0 {
		cfg.Database.ConnString = v
	}
	if v, ok := os.LookupEnv(EnvFinnhubAPIKey); ok && len(v) != 0 {
		cfg.Oracle.APIKey = v
	}
	if v, ok := os.LookupEnv(EnvRedisAddr); ok && len(v) != 0 {
		cfg.Cache.RedisAddr = v
	}
	if v, ok := os.LookupEnv(EnvHTTPAddr); ok && len(v) != 0 {
		cfg.Server.Addr = v
	}
}

func resolve(cfg FileConfig) (Loaded, error) {
	loaded := Loaded{
		HTTPAddr:            orDefault(cfg.Server.Addr, ":5001"),
		Database:            cfg.Database.Option,
		AutoMigrate:         true,
		RefreshInterval:     durationOr(cfg.Refresher.Interval, 5*time.Second),
		RefreshQuoteTimeout: durationOr(cfg.Refresher.QuoteTimeout, 3*time.Second),
		RefreshStoreTimeout: durationOr(cfg.Refresher.StoreTimeout, 5*time.Second),
		StoreAttempts:       cfg.Order.StoreAttempts,
		StoreTimeout:        durationOr(cfg.Order.StoreTimeout, 5*time.Second),
		RetryMin:            durationOr(cfg.Order.RetryMin, 25*time.Millisecond),
		RetryMax:            durationOr(cfg.Order.RetryMax, 500*time.Millisecond),
		Profiling:           cfg.Profiling,
	}
	loaded.Database.ConnMaxLifetime = time.Duration(cfg.Database.ConnMaxLifetime)
	loaded.Database.ConnMaxIdleTime = time.Duration(cfg.Database.ConnMaxIdleTime)
	if cfg.Database.AutoMigrate != nil {
		loaded.AutoMigrate = *cfg.Database.AutoMigrate
	}

	if loaded.StoreAttempts < 0 {
		return Loaded{}, fmt.Errorf("order storeAttempts must be >= 0")
	}
	if loaded.StoreAttempts == 0 {
		loaded.StoreAttempts = 3
	}
	if loaded.RetryMax < loaded.RetryMin {
		return Loaded{}, fmt.Errorf("order retryMax must be >= retryMin")
	}

	oracle, err := resolveOracle(cfg.Oracle)
	if err != nil {
		return Loaded{}, err
	}
	loaded.Oracle = oracle

	loaded.Cache = Cache{
		Enabled:   len(cfg.Cache.RedisAddr) != 0,
		RedisAddr: cfg.Cache.RedisAddr,
		Password:  cfg.Cache.Password,
		DB:        cfg.Cache.DB,
		TTL:       durationOr(cfg.Cache.TTL, 2*time.Second),
	}
	if loaded.Cache.Enabled && loaded.Cache.TTL >= loaded.RefreshInterval {
		return Loaded{}, fmt.Errorf("cache ttl %s must be shorter than the refresh interval %s", loaded.Cache.TTL, loaded.RefreshInterval)
	}

	loaded.Chaos = chaos.Config{
		Seed:             cfg.Chaos.Seed,
		StoreFailureRate: cfg.Chaos.StoreFailureRate,
		QuoteFailureRate: cfg.Chaos.QuoteFailureRate,
		MaxDelay:         time.Duration(cfg.Chaos.MaxDelay),
	}
	if err := loaded.Chaos.Validate(); err != nil {
		return Loaded{}, errors.Wrap(err, "chaos")
	}

	accounts, err := resolveAccounts(cfg.Accounts)
	if err != nil {
		return Loaded{}, err
	}
	loaded.Accounts = accounts

	if len(loaded.Profiling.ServerAddress) != 0 && len(loaded.Profiling.ApplicationName) == 0 {
		loaded.Profiling.ApplicationName = "stockfolio"
	}

	return loaded, nil
}

func resolveOracle(cfg OracleConfig) (Oracle, error) {
	provider := strings.ToLower(orDefault(cfg.Provider, ProviderFinnhub))
	o := Oracle{
		Provider: provider,
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
		Timeout:  durationOr(cfg.Timeout, 3*time.Second),
	}

	switch provider {
	case ProviderFinnhub:
	case ProviderStatic:
		o.Prices = make(map[string]decimal.Decimal, len(cfg.Prices))
		for symbol, raw := range cfg.Prices {
			price, err := decimal.NewFromString(raw)
			if err != nil {
				return Oracle{}, fmt.Errorf("oracle price for %s: %w", symbol, err)
			}
			if !price.IsPositive() {
				return Oracle{}, fmt.Errorf("oracle price for %s must be > 0", symbol)
			}
			o.Prices[model.NormalizeSymbol(symbol)] = price
		}
	default:
		return Oracle{}, fmt.Errorf("oracle provider not supported: %s", cfg.Provider)
	}
	return o, nil
}

// Validate checks the feed can serve quotes. Tools that never price a trade skip it.
func (o Oracle) Validate() error {
	if o.Provider == ProviderFinnhub && len(o.APIKey) == 0 {
		return fmt.Errorf("oracle apiKey is empty, set it in the config or %s", EnvFinnhubAPIKey)
	}
	return nil
}

func resolveAccounts(cfg []AccountConfig) ([]SeedAccount, error) {
	accounts := make([]SeedAccount, 0, len(cfg))
	for _, a := range cfg {
		userID := model.NormalizeUserID(a.UserID)
		if len(userID) == 0 {
			return nil, fmt.Errorf("account userId is empty")
		}
		balance, err := decimal.NewFromString(orDefault(a.Balance, "0"))
		if err != nil {
			return nil, fmt.Errorf("account %s balance: %w", userID, err)
		}
		if balance.IsNegative() {
			return nil, fmt.Errorf("account %s balance must be >= 0", userID)
		}
		accounts = append(accounts, SeedAccount{UserID: userID, Balance: balance})
	}
	return accounts, nil
}

func orDefault(v, def string) string {
	if len(v) == 0 {
		return def
	}
	return v
}

func durationOr(d Duration, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return time.Duration(d)
}
