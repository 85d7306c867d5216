// Package memory provides an in-memory model.SessionCache with the same
// TTL and trimming semantics as the Redis implementation. It serves as the
// startup fallback when Redis is unreachable and as the substitutable
// implementation in tests.
package memory

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"stockstream/internal/model"
)

const (
	latestTTL  = 60 * time.Second
	openTTL    = 24 * time.Hour
	defaultCap = 500
)

type entry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// Cache is a process-local SessionCache. Safe for concurrent sessions.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	lists   map[string][][]byte
	barCap  int

	// now is swappable in tests to exercise expiry.
	now func() time.Time
}

// New creates an empty in-memory cache. barCap <= 0 defaults to 500.
func New(barCap int) *Cache {
	if barCap <= 0 {
		barCap = defaultCap
	}
	return &Cache{
		entries: make(map[string]entry),
		lists:   make(map[string][][]byte),
		barCap:  barCap,
		now:     time.Now,
	}
}

func keyLatest(symbol string) string          { return symbol + "|latest" }
func keyOpen(symbol, day string) string       { return symbol + "|open|" + day }
func keyBars(symbol, width string) string     { return symbol + "|bars|" + width }
func keySnapshot(symbol, width string) string { return symbol + "|indicators|" + width }

func (c *Cache) set(key string, data []byte, ttl time.Duration) {
	e := entry{data: data}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// get returns nil for missing or expired keys. Expired entries are
// evicted lazily.
func (c *Cache) get(key string) []byte {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil
	}
	return e.data
}

func (c *Cache) SetLiveQuote(ctx context.Context, q model.LiveQuote) error {
	c.set(keyLatest(q.Symbol), q.JSON(), latestTTL)
	return nil
}

func (c *Cache) GetLiveQuote(ctx context.Context, symbol string) (*model.LiveQuote, error) {
	raw := c.get(keyLatest(symbol))
	if raw == nil {
		return nil, nil
	}
	var q model.LiveQuote
	if json.Unmarshal(raw, &q) != nil {
		return nil, nil
	}
	return &q, nil
}

func (c *Cache) SetOpeningPrice(ctx context.Context, symbol, day string, price float64) error {
	c.set(keyOpen(symbol, day), []byte(strconv.FormatFloat(price, 'f', -1, 64)), openTTL)
	return nil
}

func (c *Cache) GetOpeningPrice(ctx context.Context, symbol, day string) (float64, bool, error) {
	raw := c.get(keyOpen(symbol, day))
	if raw == nil {
		return 0, false, nil
	}
	price, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || price <= 0 {
		return 0, false, nil
	}
	return price, true, nil
}

func (c *Cache) PushBar(ctx context.Context, symbol, width string, bar model.Bar) error {
	key := keyBars(symbol, width)
	c.mu.Lock()
	defer c.mu.Unlock()

	list := append([][]byte{bar.JSON()}, c.lists[key]...)
	if len(list) > c.barCap {
		list = list[:c.barCap]
	}
	c.lists[key] = list
	return nil
}

func (c *Cache) RecentBars(ctx context.Context, symbol, width string, n int) ([]model.Bar, error) {
	c.mu.RLock()
	list := c.lists[keyBars(symbol, width)]
	if n > len(list) {
		n = len(list)
	}
	raws := make([][]byte, n)
	copy(raws, list[:n])
	c.mu.RUnlock()

	bars := make([]model.Bar, 0, len(raws))
	for _, raw := range raws {
		var b model.Bar
		if json.Unmarshal(raw, &b) != nil {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return bars, nil
}

func (c *Cache) SetIndicatorSnapshot(ctx context.Context, symbol, width string, snap model.IndicatorSnapshot) error {
	c.set(keySnapshot(symbol, width), snap.JSON(), 0)
	return nil
}

func (c *Cache) GetIndicatorSnapshot(ctx context.Context, symbol, width string) (*model.IndicatorSnapshot, error) {
	raw := c.get(keySnapshot(symbol, width))
	if raw == nil {
		return nil, nil
	}
	var snap model.IndicatorSnapshot
	if json.Unmarshal(raw, &snap) != nil {
		return nil, nil
	}
	return &snap, nil
}

func (c *Cache) Close() error { return nil }
