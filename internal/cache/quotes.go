package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const keyPrefix = "quote:"

// QuoteSource is the upstream price feed
type QuoteSource interface {
	LatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// QuoteCache serves recent quotes from Redis and falls through to the
// upstream source on a miss. Redis failures degrade to the upstream.
type QuoteCache struct {
	client   redis.Cmdable
	upstream QuoteSource
	ttl      time.Duration
	logger   *zap.Logger
}

// NewClient opens a Redis client and verifies the connection
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewQuoteCache wraps upstream. A zero ttl disables caching.
func NewQuoteCache(client redis.Cmdable, upstream QuoteSource, ttl time.Duration, logger *zap.Logger) *QuoteCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuoteCache{client: client, upstream: upstream, ttl: ttl, logger: logger}
}

// LatestPrice implements the scanner's quote source
func (c *QuoteCache) LatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if c.ttl <= 0 {
		return c.upstream.LatestPrice(ctx, ticker)
	}

	key := quoteKey(ticker)
	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if price, perr := decimal.NewFromString(cached); perr == nil {
			return price, nil
		}
		c.logger.Warn("discarding unparseable cached quote", zap.String("ticker", ticker), zap.String("value", cached))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("quote cache read failed", zap.String("ticker", ticker), zap.Error(err))
	}

	price, err := c.upstream.LatestPrice(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.client.Set(ctx, key, price.String(), c.ttl).Err(); err != nil {
		c.logger.Warn("quote cache write failed", zap.String("ticker", ticker), zap.Error(err))
	}
	return price, nil
}

// Invalidate drops the cached quote for ticker
func (c *QuoteCache) Invalidate(ctx context.Context, ticker string) error {
	if err := c.client.Del(ctx, quoteKey(ticker)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate quote for %s: %w", ticker, err)
	}
	return nil
}

func quoteKey(ticker string) string {
	return keyPrefix + strings.ToUpper(ticker)
}
