package session

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"stockstream/internal/model"
	"stockstream/internal/store/memory"
)

const eps = 1e-9

// scriptedFeed pushes a fixed tick sequence and then blocks until cancelled,
// standing in for the upstream feed client.
type scriptedFeed struct {
	ticks []model.Tick
}

func (f *scriptedFeed) Run(ctx context.Context, tickCh chan<- model.Tick) error {
	for _, tk := range f.ticks {
		select {
		case tickCh <- tk:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

// recordingPublisher collects everything sent to the subscriber.
type recordingPublisher struct {
	mu    sync.Mutex
	sent  []model.LiveQuote
	notif chan struct{}
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{notif: make(chan struct{}, 64)}
}

func (p *recordingPublisher) Send(q model.LiveQuote) error {
	p.mu.Lock()
	p.sent = append(p.sent, q)
	p.mu.Unlock()
	p.notif <- struct{}{}
	return nil
}

func (p *recordingPublisher) waitFor(t *testing.T, n int) []model.LiveQuote {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		p.mu.Lock()
		if len(p.sent) >= n {
			out := make([]model.LiveQuote, len(p.sent))
			copy(out, p.sent)
			p.mu.Unlock()
			return out
		}
		p.mu.Unlock()
		select {
		case <-p.notif:
		case <-deadline:
			t.Fatalf("timed out waiting for %d sends", n)
		}
	}
}

// stubQuotes returns a fixed opening price and counts calls.
type stubQuotes struct {
	price float64
	calls int
}

func (s *stubQuotes) OpeningPrice(ctx context.Context, symbol string) float64 {
	s.calls++
	return s.price
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestSession(cache model.SessionCache, quotes model.QuoteFetcher, ticks []model.Tick) (*Session, *recordingPublisher) {
	pub := newRecordingPublisher()
	s := New(
		Config{Symbol: "AAPL", BucketWidth: 300, SMAWindow: 3, EMAPeriod: 9},
		cache, quotes, &scriptedFeed{ticks: ticks}, pub, testLogger(),
	)
	return s, pub
}

func TestSession_EndToEnd(t *testing.T) {
	cache := memory.New(0)
	ctx := context.Background()
	cache.SetOpeningPrice(ctx, "AAPL", DayKey(time.Now()), 100.0)

	ticks := []model.Tick{
		{Symbol: "AAPL", Price: 101, TSMillis: 0},
		{Symbol: "AAPL", Price: 102, TSMillis: 299000},
		{Symbol: "AAPL", Price: 103, TSMillis: 300500},
		{Symbol: "AAPL", Price: 103, TSMillis: 300500},
	}
	s, pub := newTestSession(cache, &stubQuotes{price: 999}, ticks)

	s.Open(ctx)
	defer s.Close()

	if s.OpeningPrice() != 100.0 {
		t.Fatalf("expected cached opening price 100.0, got %v", s.OpeningPrice())
	}

	sent := pub.waitFor(t, 4)
	wantPChange := []float64{1.0, 2.0, 3.0}
	for i, q := range sent[:3] {
		if math.Abs(q.PChange-wantPChange[i]) > eps {
			t.Errorf("message %d: expected pchange=%.1f, got %v", i, wantPChange[i], q.PChange)
		}
		if q.Sign != "+" {
			t.Errorf("message %d: expected sign=+, got %s", i, q.Sign)
		}
		if math.Abs(q.Delta-(q.Price-100.0)) > eps {
			t.Errorf("message %d: expected delta=%v, got %v", i, q.Price-100.0, q.Delta)
		}
	}

	// Replaying the same tick yields the same payload, byte for byte.
	if sent[3] != sent[2] {
		t.Errorf("expected identical payload on replayed tick: %+v vs %+v", sent[3], sent[2])
	}

	// Exactly one bar finalized when the third tick crossed the boundary.
	bars, _ := cache.RecentBars(ctx, "AAPL", "5m", 10)
	if len(bars) != 1 {
		t.Fatalf("expected exactly 1 bar, got %d", len(bars))
	}
	if bars[0].TS != 0 || bars[0].Close != 102 {
		t.Errorf("expected bar {0, 102}, got {%d, %v}", bars[0].TS, bars[0].Close)
	}

	// The snapshot reflects a cold bootstrap on the bar's close.
	snap, _ := cache.GetIndicatorSnapshot(ctx, "AAPL", "5m")
	if snap == nil {
		t.Fatal("expected an indicator snapshot")
	}
	if snap.TS != 0 || math.Abs(snap.SMA-102) > eps || math.Abs(snap.EMA-102) > eps {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	// The latest-price key mirrors the last subscriber payload.
	latest, _ := cache.GetLiveQuote(ctx, "AAPL")
	if latest == nil || latest.Price != 103 {
		t.Errorf("expected cached latest price 103, got %+v", latest)
	}
}

func TestSession_OpeningPriceFallsBackToREST(t *testing.T) {
	cache := memory.New(0)
	quotes := &stubQuotes{price: 250.0}
	s, _ := newTestSession(cache, quotes, nil)

	ctx := context.Background()
	s.Open(ctx)
	defer s.Close()

	if quotes.calls != 1 {
		t.Errorf("expected 1 REST call on cache miss, got %d", quotes.calls)
	}
	if s.OpeningPrice() != 250.0 {
		t.Errorf("expected opening 250.0, got %v", s.OpeningPrice())
	}

	// Memoized: a second session the same day goes straight to the cache.
	s2, _ := newTestSession(cache, quotes, nil)
	s2.Open(ctx)
	defer s2.Close()
	if quotes.calls != 1 {
		t.Errorf("expected memoized opening price, REST called %d times", quotes.calls)
	}
}

func TestSession_UnknownOpeningDisablesPercentChange(t *testing.T) {
	cache := memory.New(0)
	ticks := []model.Tick{{Symbol: "AAPL", Price: 150, TSMillis: 0}}
	s, pub := newTestSession(cache, &stubQuotes{price: 0}, ticks)

	s.Open(context.Background())
	defer s.Close()

	sent := pub.waitFor(t, 1)
	q := sent[0]
	if q.PChange != 0 {
		t.Errorf("expected pchange=0 with unknown opening, got %v", q.PChange)
	}
	if q.Sign != "+" {
		t.Errorf("expected sign=+ for pchange 0, got %s", q.Sign)
	}
	if q.Delta != 150 {
		t.Errorf("expected delta=price when opening unknown, got %v", q.Delta)
	}
}

func TestSession_WarmStartFromBarHistory(t *testing.T) {
	cache := memory.New(0)
	ctx := context.Background()
	// Newest-first history: closes 104, 103, 102 (chronological 102,103,104).
	for i, c := range []float64{102, 103, 104} {
		cache.PushBar(ctx, "AAPL", "5m", model.Bar{TS: int64(i * 300), Close: c})
	}

	// One boundary-crossing pair finalizes a bar with close=110.
	ticks := []model.Tick{
		{Symbol: "AAPL", Price: 110, TSMillis: 900000},
		{Symbol: "AAPL", Price: 111, TSMillis: 1200000},
	}
	s, pub := newTestSession(cache, &stubQuotes{price: 100}, ticks)
	s.Open(ctx)
	defer s.Close()

	pub.waitFor(t, 2)

	snap, _ := cache.GetIndicatorSnapshot(ctx, "AAPL", "5m")
	if snap == nil {
		t.Fatal("expected an indicator snapshot")
	}
	// SMA window 3 seeded with 102,103,104; 110 evicts 102: mean{103,104,110}.
	wantSMA := (103.0 + 104.0 + 110.0) / 3.0
	if math.Abs(snap.SMA-wantSMA) > eps {
		t.Errorf("expected warm-started SMA=%.6f, got %.6f", wantSMA, snap.SMA)
	}
	// EMA seeded with the newest close 104.
	alpha := 2.0 / 10.0
	wantEMA := 110.0*alpha + 104.0*(1-alpha)
	if math.Abs(snap.EMA-wantEMA) > eps {
		t.Errorf("expected warm-started EMA=%.6f, got %.6f", wantEMA, snap.EMA)
	}
}

func TestSession_EmptyHistoryColdStart(t *testing.T) {
	cache := memory.New(0)
	ticks := []model.Tick{
		{Symbol: "AAPL", Price: 50, TSMillis: 0},
		{Symbol: "AAPL", Price: 51, TSMillis: 300000},
	}
	s, pub := newTestSession(cache, &stubQuotes{price: 100}, ticks)
	s.Open(context.Background())
	defer s.Close()

	pub.waitFor(t, 2)

	snap, _ := cache.GetIndicatorSnapshot(context.Background(), "AAPL", "5m")
	if snap == nil {
		t.Fatal("expected snapshot after first finalized bar")
	}
	// First value is a fresh bootstrap for both estimators.
	if math.Abs(snap.SMA-50) > eps || math.Abs(snap.EMA-50) > eps {
		t.Errorf("expected cold bootstrap sma=ema=50, got %+v", snap)
	}
}

func TestSession_GetPrice(t *testing.T) {
	cache := memory.New(0)
	s, pub := newTestSession(cache, &stubQuotes{price: 100}, nil)
	ctx := context.Background()
	s.Open(ctx)
	defer s.Close()

	// Cache miss: no response at all.
	s.HandleGetPrice(ctx)
	pub.mu.Lock()
	n := len(pub.sent)
	pub.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no response on cache miss, got %d sends", n)
	}

	cache.SetLiveQuote(ctx, model.LiveQuote{Symbol: "AAPL", Price: 190.5, Sign: "+"})
	s.HandleGetPrice(ctx)
	sent := pub.waitFor(t, 1)
	if sent[0].Price != 190.5 {
		t.Errorf("expected cached snapshot reply, got %+v", sent[0])
	}
}

func TestSession_CloseSettlesBackgroundTask(t *testing.T) {
	cache := memory.New(0)
	s, _ := newTestSession(cache, &stubQuotes{price: 100}, nil)
	s.Open(context.Background())

	if s.State() != StateStreaming {
		t.Fatalf("expected streaming state, got %d", s.State())
	}

	doneCh := make(chan struct{})
	go func() {
		s.Close()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not settle")
	}
	if s.State() != StateClosed {
		t.Errorf("expected closed state, got %d", s.State())
	}

	// Idempotent: a second Close returns immediately.
	s.Close()
}
