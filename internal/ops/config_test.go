package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvDatabaseURL, EnvFinnhubAPIKey, EnvRedisAddr, EnvHTTPAddr} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvFinnhubAPIKey, "key")
	missing := filepath.Join(t.TempDir(), "missing.env")

	loaded, err := Load("", missing)
	require.NoError(t, err)

	assert.Equal(t, ":5001", loaded.HTTPAddr)
	assert.False(t, loaded.Database.Enabled())
	assert.True(t, loaded.AutoMigrate)
	assert.Equal(t, ProviderFinnhub, loaded.Oracle.Provider)
	assert.Equal(t, "key", loaded.Oracle.APIKey)
	assert.Equal(t, 3*time.Second, loaded.Oracle.Timeout)
	assert.False(t, loaded.Cache.Enabled)
	assert.Equal(t, 5*time.Second, loaded.RefreshInterval)
	assert.Equal(t, 3*time.Second, loaded.RefreshQuoteTimeout)
	assert.Equal(t, 3, loaded.StoreAttempts)
	assert.Equal(t, 5*time.Second, loaded.StoreTimeout)
	assert.Equal(t, 5*time.Second, loaded.RefreshStoreTimeout)
	assert.Equal(t, 25*time.Millisecond, loaded.RetryMin)
	assert.Equal(t, 500*time.Millisecond, loaded.RetryMax)
	assert.False(t, loaded.Chaos.Enabled())
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{
		"server": {"addr": ":8080"},
		"database": {"host": "db", "database": "ledger", "maxOpenConns": 4, "connMaxLifetime": "10m", "autoMigrate": false},
		"oracle": {"provider": "static", "timeout": "1s", "prices": {" aapl ": "150.25", "MSFT": "300"}},
		"cache": {"redisAddr": "localhost:6379", "ttl": "500ms"},
		"refresher": {"interval": "2s", "quoteTimeout": 1000000000, "storeTimeout": "1500ms"},
		"order": {"storeAttempts": 5, "storeTimeout": "750ms", "retryMin": "10ms", "retryMax": "100ms"},
		"profiling": {"serverAddress": "http://pyroscope:4040"},
		"chaos": {"seed": 7, "storeFailureRate": 0.25, "maxDelay": "5ms"},
		"accounts": [{"userId": " 1 ", "balance": "1000.50"}]
	}`)

	loaded, err := Load(path, filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", loaded.HTTPAddr)
	assert.True(t, loaded.Database.Enabled())
	assert.Equal(t, "db", loaded.Database.Host)
	assert.Equal(t, 4, loaded.Database.MaxOpenConns)
	assert.Equal(t, 10*time.Minute, loaded.Database.ConnMaxLifetime)
	assert.False(t, loaded.AutoMigrate)

	assert.Equal(t, ProviderStatic, loaded.Oracle.Provider)
	assert.Equal(t, time.Second, loaded.Oracle.Timeout)
	require.Len(t, loaded.Oracle.Prices, 2)
	assert.True(t, decimal.RequireFromString("150.25").Equal(loaded.Oracle.Prices["AAPL"]))

	assert.True(t, loaded.Cache.Enabled)
	assert.Equal(t, 500*time.Millisecond, loaded.Cache.TTL)
	assert.Equal(t, 2*time.Second, loaded.RefreshInterval)
	assert.Equal(t, time.Second, loaded.RefreshQuoteTimeout)
	assert.Equal(t, 5, loaded.StoreAttempts)
	assert.Equal(t, 750*time.Millisecond, loaded.StoreTimeout)
	assert.Equal(t, 1500*time.Millisecond, loaded.RefreshStoreTimeout)
	assert.Equal(t, "stockfolio", loaded.Profiling.ApplicationName)
	assert.True(t, loaded.Chaos.Enabled())
	assert.Equal(t, int64(7), loaded.Chaos.Seed)
	assert.Equal(t, 0.25, loaded.Chaos.StoreFailureRate)
	assert.Equal(t, 5*time.Millisecond, loaded.Chaos.MaxDelay)

	require.Len(t, loaded.Accounts, 1)
	assert.Equal(t, "1", loaded.Accounts[0].UserID)
	assert.True(t, decimal.RequireFromString("1000.5").Equal(loaded.Accounts[0].Balance))
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvHTTPAddr, ":9000")
	t.Setenv(EnvRedisAddr, "redis:6379")
	path := writeFile(t, "config.json", `{"server": {"addr": ":8080"}, "oracle": {"apiKey": "file-key"}}`)
	envFile := writeFile(t, "test.env", "DATABASE_URL=postgres://u:p@db/ledger\n")

	loaded, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, ":9000", loaded.HTTPAddr)
	assert.Equal(t, "redis:6379", loaded.Cache.RedisAddr)
	assert.Equal(t, "file-key", loaded.Oracle.APIKey)
	assert.Equal(t, "postgres://u:p@db/ledger", loaded.Database.ConnString)
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		desc   string
		config string
	}{
		{desc: "malformed json", config: `{"server":`},
		{desc: "bad duration", config: `{"oracle": {"provider": "static", "timeout": "soon"}}`},
		{desc: "unknown provider", config: `{"oracle": {"provider": "carrier-pigeon"}}`},
		{desc: "non-positive static price", config: `{"oracle": {"provider": "static", "prices": {"AAPL": "0"}}}`},
		{desc: "unparsable static price", config: `{"oracle": {"provider": "static", "prices": {"AAPL": "abc"}}}`},
		{desc: "negative store attempts", config: `{"oracle": {"provider": "static"}, "order": {"storeAttempts": -1}}`},
		{desc: "retry max below min", config: `{"oracle": {"provider": "static"}, "order": {"retryMin": "1s", "retryMax": "10ms"}}`},
		{desc: "cache ttl not shorter than interval", config: `{"oracle": {"provider": "static"}, "cache": {"redisAddr": "r:6379", "ttl": "5s"}}`},
		{desc: "chaos rate above one", config: `{"oracle": {"provider": "static"}, "chaos": {"quoteFailureRate": 1.5}}`},
		{desc: "account without user", config: `{"oracle": {"provider": "static"}, "accounts": [{"balance": "1"}]}`},
		{desc: "negative account balance", config: `{"oracle": {"provider": "static"}, "accounts": [{"userId": "1", "balance": "-1"}]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			clearEnv(t)
			path := writeFile(t, "config.json", tc.config)
			_, err := Load(path, filepath.Join(t.TempDir(), "none.env"))
			assert.Error(t, err)
		})
	}
}

func TestOracleValidate(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{"oracle": {"provider": "finnhub"}}`)
	loaded, err := Load(path, filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	assert.Error(t, loaded.Oracle.Validate())

	loaded.Oracle.APIKey = "key"
	assert.NoError(t, loaded.Oracle.Validate())

	assert.NoError(t, Oracle{Provider: ProviderStatic}.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
