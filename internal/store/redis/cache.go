// Package redis implements the shared session cache on Redis: latest live
// quote, day-scoped opening price, bounded bar history, and the latest
// indicator snapshot. Writes run through a circuit breaker because the
// cache is advisory — a down Redis degrades sessions, it never fails them.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"stockstream/internal/model"
)

const (
	latestTTL  = 60 * time.Second
	openTTL    = 24 * time.Hour
	defaultCap = 500 // bar history entries kept per instrument+width

	breakerFailures = 5
	breakerReset    = 10 * time.Second
)

// Config configures the Redis cache client.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int

	// BarCap bounds the bar history list. Defaults to 500.
	BarCap int
}

// Cache is the Redis-backed model.SessionCache. One Cache serves the whole
// process; sessions receive it as an injected capability.
type Cache struct {
	client  *goredis.Client
	breaker *Breaker
	barCap  int

	// Optional hooks for metrics.
	OnWriteError  func()
	OnBreakerTrip func()
}

// New creates a Cache and pings the server.
func New(cfg Config) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	barCap := cfg.BarCap
	if barCap <= 0 {
		barCap = defaultCap
	}

	c := &Cache{
		client:  client,
		breaker: NewBreaker(breakerFailures, breakerReset),
		barCap:  barCap,
	}
	c.breaker.OnStateChange = func(from, to State) {
		log.Printf("[cache] circuit breaker %s -> %s", from, to)
		if to == StateOpen && c.OnBreakerTrip != nil {
			c.OnBreakerTrip()
		}
	}

	log.Printf("[cache] connected to %s", cfg.Addr)
	return c, nil
}

// ── key layout (namespace = instrument) ──

func keyLatest(symbol string) string          { return symbol + "|latest" }
func keyOpen(symbol, day string) string       { return symbol + "|open|" + day }
func keyBars(symbol, width string) string     { return symbol + "|bars|" + width }
func keySnapshot(symbol, width string) string { return symbol + "|indicators|" + width }

// write funnels all mutations through the breaker and the error hook.
func (c *Cache) write(fn func() error) error {
	err := c.breaker.Execute(fn)
	if err != nil && err != ErrCircuitOpen {
		if c.OnWriteError != nil {
			c.OnWriteError()
		}
	}
	return err
}

// SetLiveQuote stores the latest live snapshot with a 60s TTL.
func (c *Cache) SetLiveQuote(ctx context.Context, q model.LiveQuote) error {
	return c.write(func() error {
		return c.client.Set(ctx, keyLatest(q.Symbol), q.JSON(), latestTTL).Err()
	})
}

// GetLiveQuote returns the latest live snapshot, or nil on a miss.
// A malformed cached value is treated as a miss.
func (c *Cache) GetLiveQuote(ctx context.Context, symbol string) (*model.LiveQuote, error) {
	raw, err := c.client.Get(ctx, keyLatest(symbol)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var q model.LiveQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, nil
	}
	return &q, nil
}

// SetOpeningPrice memoizes the day's opening price for ~24h.
func (c *Cache) SetOpeningPrice(ctx context.Context, symbol, day string, price float64) error {
	return c.write(func() error {
		val := strconv.FormatFloat(price, 'f', -1, 64)
		return c.client.Set(ctx, keyOpen(symbol, day), val, openTTL).Err()
	})
}

// GetOpeningPrice returns the memoized opening price. ok is false on a
// miss or when the cached value is not a real positive number.
func (c *Cache) GetOpeningPrice(ctx context.Context, symbol, day string) (float64, bool, error) {
	raw, err := c.client.Get(ctx, keyOpen(symbol, day)).Result()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 0, false, nil
	}
	return price, true, nil
}

// PushBar prepends a finalized bar and trims the list to the cap.
// LPUSH+LTRIM in one pipeline keeps append-then-trim a single roundtrip.
func (c *Cache) PushBar(ctx context.Context, symbol, width string, bar model.Bar) error {
	return c.write(func() error {
		key := keyBars(symbol, width)
		pipe := c.client.Pipeline()
		pipe.LPush(ctx, key, bar.JSON())
		pipe.LTrim(ctx, key, 0, int64(c.barCap-1))
		_, err := pipe.Exec(ctx)
		return err
	})
}

// RecentBars returns up to n bars, newest first. Entries that fail to
// decode are skipped.
func (c *Cache) RecentBars(ctx context.Context, symbol, width string, n int) ([]model.Bar, error) {
	raws, err := c.client.LRange(ctx, keyBars(symbol, width), 0, int64(n-1)).Result()
	if err == goredis.Nil || len(raws) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	bars := make([]model.Bar, 0, len(raws))
	for _, raw := range raws {
		var b model.Bar
		if json.Unmarshal([]byte(raw), &b) != nil {
			continue
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// SetIndicatorSnapshot overwrites the latest snapshot (no TTL).
func (c *Cache) SetIndicatorSnapshot(ctx context.Context, symbol, width string, snap model.IndicatorSnapshot) error {
	return c.write(func() error {
		return c.client.Set(ctx, keySnapshot(symbol, width), snap.JSON(), 0).Err()
	})
}

// GetIndicatorSnapshot returns the latest snapshot, or nil if none.
func (c *Cache) GetIndicatorSnapshot(ctx context.Context, symbol, width string) (*model.IndicatorSnapshot, error) {
	raw, err := c.client.Get(ctx, keySnapshot(symbol, width)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap model.IndicatorSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, nil
	}
	return &snap, nil
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
