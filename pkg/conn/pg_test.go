package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	testCases := []struct {
		desc     string
		option   Option
		expected string
	}{
		{
			"defaults",
			Option{},
			"postgres://localhost:5432?sslmode=disable",
		},
		{
			"full",
			Option{Host: "db", Port: 6543, User: "ledger", Password: "p@ss", Database: "stocks", SSLMode: "require", Params: map[string]string{"application_name": "stockfolio", "": "ignored"}},
			"postgres://ledger:p%40ss@db:6543/stocks?application_name=stockfolio&sslmode=require",
		},
		{
			"conn string wins",
			Option{Host: "db", ConnString: "postgres://x@y/z"},
			"postgres://x@y/z",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			dsn, err := tc.option.dsn()
			require.NoError(t, err)
			assert.Equal(t, tc.expected, dsn)
		})
	}
}

func TestApplyPool(t *testing.T) {
	var (
		open, idle         int
		lifetime, idleTime time.Duration
	)
	record := func() (func(int), func(int), func(time.Duration), func(time.Duration)) {
		return func(n int) { open = n }, func(n int) { idle = n },
			func(d time.Duration) { lifetime = d }, func(d time.Duration) { idleTime = d }
	}

	Option{}.applyPool(record())
	assert.Equal(t, defaultMaxOpenConns, open)
	assert.Equal(t, defaultMaxOpenConns, idle)
	assert.Equal(t, defaultConnMaxLifetime, lifetime)
	assert.Equal(t, defaultConnMaxIdleTime, idleTime)

	Option{MaxOpenConns: 4, MaxIdleConns: 9, ConnMaxLifetime: time.Minute}.applyPool(record())
	assert.Equal(t, 4, open)
	assert.Equal(t, 4, idle)
	assert.Equal(t, time.Minute, lifetime)
}

func TestEnabled(t *testing.T) {
	assert.False(t, Option{}.Enabled())
	assert.True(t, Option{ConnString: "postgres://x"}.Enabled())
	assert.True(t, Option{Host: "db"}.Enabled())
}
