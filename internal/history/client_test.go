package history

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const dailySeriesFixture = `{
	"Meta Data": {"2. Symbol": "AAPL"},
	"Time Series (Daily)": {
		"2026-08-27": {"1. open": "230.0", "4. close": "231.5", "5. adjusted close": "231.4", "6. volume": "1000"},
		"2026-08-26": {"1. open": "228.0", "4. close": "229.0", "5. adjusted close": "228.9", "6. volume": "2000"}
	}
}`

const intradaySeriesFixture = `{
	"Meta Data": {"2. Symbol": "AAPL"},
	"Time Series (5min)": {
		"2026-08-27 15:55:00": {"1. open": "230.0", "4. close": "231.5", "5. volume": "100"}
	}
}`

func TestParseRange(t *testing.T) {
	cases := map[string]Range{
		"intraday": RangeIntraday,
		"WEEKLY":   RangeWeekly,
		"monthly":  RangeMonthly,
		"daily":    RangeDaily,
		"":         RangeDaily,
		"bogus":    RangeDaily,
	}
	for in, want := range cases {
		if got := ParseRange(in); got != want {
			t.Errorf("ParseRange(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSeries_Daily(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		w.Write([]byte(dailySeriesFixture))
	}))
	defer srv.Close()

	c := NewClient(Config{SeriesURL: srv.URL, SeriesKey: "k"})
	points, err := c.Series(context.Background(), "AAPL", RangeDaily)
	if err != nil {
		t.Fatalf("series: %v", err)
	}

	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	// Chronological order, plain close preferred over adjusted close.
	if points[0].TS.After(points[1].TS) {
		t.Error("expected chronological order")
	}
	if math.Abs(points[1].Close-231.5) > 1e-9 {
		t.Errorf("expected close 231.5, got %v", points[1].Close)
	}
	if points[1].Volume != 1000 {
		t.Errorf("expected volume 1000, got %v", points[1].Volume)
	}
	if want := "function=TIME_SERIES_DAILY_ADJUSTED"; !strings.Contains(gotPath, want) {
		t.Errorf("expected %s in request %q", want, gotPath)
	}
}

func TestSeries_IntradayInterval(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		w.Write([]byte(intradaySeriesFixture))
	}))
	defer srv.Close()

	c := NewClient(Config{SeriesURL: srv.URL, SeriesKey: "k"})
	points, err := c.Series(context.Background(), "AAPL", RangeIntraday)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if len(points) != 1 || points[0].TS.Hour() != 15 {
		t.Errorf("unexpected intraday points: %+v", points)
	}
	if !strings.Contains(gotPath, "interval=5min") {
		t.Errorf("expected interval=5min in request %q", gotPath)
	}
}

func TestSeries_VendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error Message": "Invalid API call"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{SeriesURL: srv.URL, SeriesKey: "k"})
	if _, err := c.Series(context.Background(), "NOPE", RangeDaily); err == nil {
		t.Fatal("expected an error for a vendor rejection")
	}
}

func TestMetricsSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stock/metric":
			w.Write([]byte(`{"symbol":"AAPL","metric":{
				"10DayAverageTradingVolume":55.2,"52WeekHigh":260.1,"52WeekLow":164.0,
				"52WeekPriceReturnDaily":12.5,"beta":1.29}}`))
		case "/stock/profile2":
			w.Write([]byte(`{"marketCapitalization":3450000}`))
		case "/calendar/earnings":
			w.Write([]byte(`{"earningsCalendar":[{"epsActual":1.40}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{MetricsURL: srv.URL, MetricsKey: "k"})
	s, err := c.MetricsSummary(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.High52W != 260.1 || s.Low52W != 164.0 || s.Beta != 1.29 {
		t.Errorf("unexpected financials: %+v", s)
	}
	if s.MarketCap != 3450000 {
		t.Errorf("expected market cap 3450000, got %v", s.MarketCap)
	}
	if s.BasicEPS == nil || *s.BasicEPS != 1.40 {
		t.Errorf("expected eps 1.40, got %v", s.BasicEPS)
	}
}

func TestMetricsSummary_SymbolMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"","metric":{}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{MetricsURL: srv.URL, MetricsKey: "k"})
	if _, err := c.MetricsSummary(context.Background(), "NOPE"); err == nil {
		t.Fatal("expected an error for an unknown symbol")
	}
}
