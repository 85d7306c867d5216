// Package history fetches historical price series and company metrics
// from the upstream REST vendors. Series come from the time-series
// vendor; fundamentals come from the quote vendor.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Range selects the series granularity.
type Range string

const (
	RangeIntraday Range = "intraday"
	RangeDaily    Range = "daily"
	RangeWeekly   Range = "weekly"
	RangeMonthly  Range = "monthly"
)

// ParseRange maps a request parameter to a Range, defaulting to daily.
func ParseRange(s string) Range {
	switch Range(strings.ToLower(s)) {
	case RangeIntraday, RangeDaily, RangeWeekly, RangeMonthly:
		return Range(strings.ToLower(s))
	default:
		return RangeDaily
	}
}

func (r Range) seriesFunction() string {
	switch r {
	case RangeIntraday:
		return "TIME_SERIES_INTRADAY"
	case RangeWeekly:
		return "TIME_SERIES_WEEKLY_ADJUSTED"
	case RangeMonthly:
		return "TIME_SERIES_MONTHLY_ADJUSTED"
	default:
		return "TIME_SERIES_DAILY_ADJUSTED"
	}
}

// Point is one close/volume observation.
type Point struct {
	TS     time.Time `json:"ts"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Config holds the vendor endpoints and credentials.
type Config struct {
	SeriesURL  string // time-series vendor base, e.g. https://www.alphavantage.co
	SeriesKey  string
	MetricsURL string // fundamentals vendor base, e.g. https://finnhub.io/api/v1
	MetricsKey string
}

type Client struct {
	cfg   Config
	httpc *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

// Series fetches the close/volume series for a symbol, chronological
// order. Intraday uses 5-minute buckets.
func (c *Client) Series(ctx context.Context, symbol string, rng Range) ([]Point, error) {
	q := url.Values{}
	q.Set("function", rng.seriesFunction())
	q.Set("symbol", symbol)
	q.Set("apikey", c.cfg.SeriesKey)
	if rng == RangeIntraday {
		q.Set("interval", "5min")
	}

	var payload map[string]json.RawMessage
	if err := c.getJSON(ctx, c.cfg.SeriesURL+"/query?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	raw, err := seriesBlock(payload)
	if err != nil {
		return nil, err
	}

	var entries map[string]map[string]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("history: decode series: %w", err)
	}

	points := make([]Point, 0, len(entries))
	for ts, fields := range entries {
		t, err := parseSeriesTime(ts)
		if err != nil {
			continue
		}
		p := Point{TS: t}
		p.Close, _ = fieldByName(fields, "close")
		p.Volume, _ = fieldByName(fields, "volume")
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].TS.Before(points[j].TS) })
	return points, nil
}

// seriesBlock locates the time-series object: the vendor keys it by
// granularity ("Time Series (Daily)", "Monthly Adjusted Time Series"),
// next to a "Meta Data" sibling.
func seriesBlock(payload map[string]json.RawMessage) (json.RawMessage, error) {
	for key, raw := range payload {
		if strings.Contains(key, "Time Series") {
			return raw, nil
		}
	}
	// Error responses carry "Error Message" or "Note".
	for _, key := range []string{"Error Message", "Note", "Information"} {
		if raw, ok := payload[key]; ok {
			var msg string
			json.Unmarshal(raw, &msg)
			return nil, fmt.Errorf("history: vendor rejected request: %s", msg)
		}
	}
	return nil, fmt.Errorf("history: no time series in response")
}

// fieldByName finds a vendor field by substring: keys are prefixed like
// "4. close" or "6. volume". The lowest-numbered match wins so a plain
// close beats an adjusted close.
func fieldByName(fields map[string]string, name string) (float64, bool) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if strings.Contains(strings.ToLower(k), name) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return 0, false
	}
	sort.Strings(keys)
	v, err := strconv.ParseFloat(fields[keys[0]], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseSeriesTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("history: build request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("history: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("history: vendor status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("history: decode: %w", err)
	}
	return nil
}
