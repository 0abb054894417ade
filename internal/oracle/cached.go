package oracle

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
)

const defaultCachePrefix = "stockfolio:quote:"

// Cached is a read-through redis cache in front of another oracle.
// The cache is an optimization only: any redis failure falls through to the source.
type Cached struct {
	next   Oracle
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

// NewCached caches quotes of next for ttl.
func NewCached(next Oracle, rdb redis.Cmdable, ttl time.Duration) *Cached {
	return &Cached{next: next, rdb: rdb, ttl: ttl, prefix: defaultCachePrefix}
}

func (c *Cached) key(symbol string) string {
	return c.prefix + symbol
}

func (c *Cached) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := c.key(symbol)

	cached, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if price, perr := decimal.NewFromString(cached); perr == nil && price.IsPositive() {
			return price, nil
		}
		logs.Errorf("drop malformed cached quote, key: %s, value: %q", key, cached)
	case err != redis.Nil:
		logs.Errorf("read cached quote %s, err: %+v", key, err)
	}

	price, err := c.next.Quote(ctx, symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if err := c.rdb.Set(ctx, key, price.String(), c.ttl).Err(); err != nil {
		logs.Errorf("write cached quote %s, err: %+v", key, err)
	}
	return price, nil
}
