package history

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Summary is the per-symbol fundamentals snapshot served by the REST
// API. Zero values stand in for metrics the vendor omitted.
type Summary struct {
	Symbol         string   `json:"symbol"`
	AvgTradeVol10D float64  `json:"avg_trade_vol_10d"`
	High52W        float64  `json:"high_52w"`
	Low52W         float64  `json:"low_52w"`
	Return52W      float64  `json:"return_52w"`
	Beta           float64  `json:"beta"`
	MarketCap      float64  `json:"market_cap"`
	BasicEPS       *float64 `json:"basic_eps,omitempty"`

	// Filled from the daily series by the caller.
	AvgDailyVol float64 `json:"avg_daily_vol"`
	AvgVol30D   float64 `json:"avg_vol_30d"`
}

type basicFinancials struct {
	Symbol string `json:"symbol"`
	Metric struct {
		AvgTradeVol10D *float64 `json:"10DayAverageTradingVolume"`
		High52W        *float64 `json:"52WeekHigh"`
		Low52W         *float64 `json:"52WeekLow"`
		Return52W      *float64 `json:"52WeekPriceReturnDaily"`
		Beta           *float64 `json:"beta"`
	} `json:"metric"`
}

type companyProfile struct {
	MarketCapitalization float64 `json:"marketCapitalization"`
}

type earningsCalendar struct {
	EarningsCalendar []struct {
		EPSActual *float64 `json:"epsActual"`
	} `json:"earningsCalendar"`
}

// MetricsSummary gathers the fundamentals for one symbol: basic
// financials, market cap, and the most recent reported EPS from the
// trailing 30 days. Earnings and profile failures degrade to missing
// fields; a missing financials block is an error since there is nothing
// left to report.
func (c *Client) MetricsSummary(ctx context.Context, symbol string) (*Summary, error) {
	var fin basicFinancials
	u := fmt.Sprintf("%s/stock/metric?symbol=%s&metric=all&token=%s",
		c.cfg.MetricsURL, url.QueryEscape(symbol), c.cfg.MetricsKey)
	if err := c.getJSON(ctx, u, &fin); err != nil {
		return nil, err
	}
	if fin.Symbol != symbol {
		return nil, fmt.Errorf("history: no metrics for %s", symbol)
	}

	s := &Summary{
		Symbol:         symbol,
		AvgTradeVol10D: deref(fin.Metric.AvgTradeVol10D),
		High52W:        deref(fin.Metric.High52W),
		Low52W:         deref(fin.Metric.Low52W),
		Return52W:      deref(fin.Metric.Return52W),
		Beta:           deref(fin.Metric.Beta),
	}

	var profile companyProfile
	u = fmt.Sprintf("%s/stock/profile2?symbol=%s&token=%s",
		c.cfg.MetricsURL, url.QueryEscape(symbol), c.cfg.MetricsKey)
	if err := c.getJSON(ctx, u, &profile); err == nil {
		s.MarketCap = profile.MarketCapitalization
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	var earnings earningsCalendar
	u = fmt.Sprintf("%s/calendar/earnings?from=%s&to=%s&symbol=%s&token=%s",
		c.cfg.MetricsURL, from.Format("2006-01-02"), now.Format("2006-01-02"),
		url.QueryEscape(symbol), c.cfg.MetricsKey)
	if err := c.getJSON(ctx, u, &earnings); err == nil &&
		len(earnings.EarningsCalendar) > 0 && earnings.EarningsCalendar[0].EPSActual != nil {
		s.BasicEPS = earnings.EarningsCalendar[0].EPSActual
	}

	return s, nil
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
