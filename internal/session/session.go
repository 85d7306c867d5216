// Package session implements the per-subscriber streaming session: it owns
// the upstream feed task, the tick-to-bar bucketing state, both indicator
// engines, and the cache read/write protocol that makes a fresh session
// resume where a previous one left off.
package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"stockstream/internal/candle"
	"stockstream/internal/indicator"
	"stockstream/internal/model"
)

// State is the session lifecycle phase.
type State int32

const (
	StateOpening State = iota
	StateStreaming
	StateClosing
	StateClosed
)

// Publisher delivers live snapshots to the subscriber connection.
type Publisher interface {
	Send(q model.LiveQuote) error
}

// FeedRunner runs the upstream feed read-loop, pushing accepted ticks into
// tickCh until ctx is cancelled. Satisfied by *feed.Client.
type FeedRunner interface {
	Run(ctx context.Context, tickCh chan<- model.Tick) error
}

// Config holds per-session tuning. Zero values fall back to the reference
// deployment's defaults.
type Config struct {
	Symbol       string
	BucketWidth  int64   // seconds; default 300
	SMAWindow    int     // default 20
	EMAPeriod    int     // default 9
	EMASmoothing float64 // default 2.0
}

const warmStartMargin = 10

func (c *Config) defaults() {
	if c.BucketWidth <= 0 {
		c.BucketWidth = candle.DefaultWidth
	}
	if c.SMAWindow <= 0 {
		c.SMAWindow = 20
	}
	if c.EMAPeriod <= 0 {
		c.EMAPeriod = 9
	}
	if c.EMASmoothing == 0 {
		c.EMASmoothing = 2.0
	}
}

// Session is one subscriber's streaming state machine. All tick processing
// happens on the single background goroutine started by Open; the
// foreground path only serves subscriber requests and lifecycle events.
type Session struct {
	cfg   Config
	width string // WidthLabel token for cache keys

	cache  model.SessionCache
	quotes model.QuoteFetcher
	feed   FeedRunner
	pub    Publisher
	log    *slog.Logger

	opening  float64 // 0 = unknown, disables percent-change
	bucketer *candle.Bucketer
	sma      *indicator.RollingSMA
	ema      *indicator.StreamingEMA

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	// Optional metrics hooks, set before Open.
	OnTick func()
	OnLive func()
	OnBar  func()
}

// New creates a session bound to one instrument. The cache and quote
// fetcher are injected capabilities shared across sessions; the feed
// runner and publisher belong to this session alone.
func New(cfg Config, cache model.SessionCache, quotes model.QuoteFetcher, feed FeedRunner, pub Publisher, log *slog.Logger) *Session {
	cfg.defaults()
	return &Session{
		cfg:      cfg,
		width:    model.WidthLabel(int(cfg.BucketWidth)),
		cache:    cache,
		quotes:   quotes,
		feed:     feed,
		pub:      pub,
		log:      log,
		bucketer: candle.New(cfg.BucketWidth),
		sma:      indicator.NewRollingSMA(cfg.SMAWindow),
		ema:      indicator.NewStreamingEMA(cfg.EMAPeriod, cfg.EMASmoothing),
		done:     make(chan struct{}),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// OpeningPrice returns the resolved reference price (0 = unknown).
func (s *Session) OpeningPrice() float64 { return s.opening }

// Open resolves the opening price, warm-starts the indicators from cached
// bar history, and starts the background feed task. Open never fails:
// every recovery step degrades to a cold start.
func (s *Session) Open(ctx context.Context) {
	s.resolveOpeningPrice(ctx)
	s.warmStart(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state.Store(int32(StateStreaming))
	go s.run(runCtx)
}

// resolveOpeningPrice tries the cache, falls back to the upstream REST
// source, and memoizes the result for the rest of the day. Failure leaves
// the opening price at 0, which disables percent-change.
func (s *Session) resolveOpeningPrice(ctx context.Context) {
	day := DayKey(time.Now())

	price, ok, err := s.cache.GetOpeningPrice(ctx, s.cfg.Symbol, day)
	if err != nil {
		s.log.Warn("opening price cache read failed", "err", err)
	}
	if !ok {
		price = s.quotes.OpeningPrice(ctx, s.cfg.Symbol)
	}
	s.opening = price

	// Memoize regardless of source; the write is advisory.
	if err := s.cache.SetOpeningPrice(ctx, s.cfg.Symbol, day, price); err != nil {
		s.log.Warn("opening price memoization failed", "err", err)
	}

	if price == 0 {
		s.log.Warn("opening price unknown, percent-change disabled")
	}
}

// warmStart seeds both indicators from cached bar history. With no bars
// recovered the indicators start cold, matching a first-ever session.
func (s *Session) warmStart(ctx context.Context) {
	n := s.cfg.SMAWindow
	if s.cfg.EMAPeriod > n {
		n = s.cfg.EMAPeriod
	}
	n += warmStartMargin

	bars, err := s.cache.RecentBars(ctx, s.cfg.Symbol, s.width, n)
	if err != nil {
		s.log.Warn("bar history read failed, cold start", "err", err)
		return
	}
	if len(bars) == 0 {
		return
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	s.sma.Seed(closes)
	s.ema.Seed(closes[0]) // newest close bootstraps the EMA
	s.log.Info("indicators warm-started", "bars", len(bars))
}

// run is the background task: it owns the feed read-loop and the whole
// tick-processing pipeline. Only cancellation ends it.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	tickCh := make(chan model.Tick, 256)
	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		if err := s.feed.Run(ctx, tickCh); err != nil {
			s.log.Error("feed task ended with error", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			<-feedDone
			return
		case tick := <-tickCh:
			s.handleTick(ctx, tick)
		}
	}
}

// handleTick advances the bucketing state machine and publishes the live
// snapshot. Per-tick errors never stop the loop.
func (s *Session) handleTick(ctx context.Context, tick model.Tick) {
	if s.OnTick != nil {
		s.OnTick()
	}

	if bar := s.bucketer.Apply(tick); bar != nil {
		s.finalizeBar(ctx, bar)
	}
	s.publishLive(ctx, tick.Price)
}

// finalizeBar performs the bucket-close side effects: append the bar to
// bounded history, fold its close into both indicators, and persist the
// resulting snapshot. Each step is independent and advisory.
func (s *Session) finalizeBar(ctx context.Context, bar *model.Bar) {
	if err := s.cache.PushBar(ctx, s.cfg.Symbol, s.width, *bar); err != nil {
		s.log.Warn("bar append failed", "err", err, "ts", bar.TS)
	}

	smaVal, _ := s.sma.Accumulate(bar.Close)
	emaVal := s.ema.Update(bar.Close)

	snap := model.IndicatorSnapshot{TS: bar.TS, SMA: smaVal, EMA: emaVal}
	if err := s.cache.SetIndicatorSnapshot(ctx, s.cfg.Symbol, s.width, snap); err != nil {
		s.log.Warn("indicator snapshot write failed", "err", err, "ts", bar.TS)
	}

	if s.OnBar != nil {
		s.OnBar()
	}
}

// publishLive writes the live snapshot to the cache and sends it to the
// subscriber. The two writes are independent: a cache failure must not
// suppress the subscriber send, and vice versa.
func (s *Session) publishLive(ctx context.Context, price float64) {
	var pchange float64
	if s.opening != 0 {
		pchange = (price - s.opening) / s.opening * 100
	}
	sign := "+"
	if pchange < 0 {
		sign = "-"
	}

	q := model.LiveQuote{
		Symbol:  s.cfg.Symbol,
		Price:   price,
		PChange: pchange,
		Sign:    sign,
		Delta:   price - s.opening,
	}

	if err := s.cache.SetLiveQuote(ctx, q); err != nil {
		s.log.Warn("live quote cache write failed", "err", err)
	}
	if err := s.pub.Send(q); err != nil {
		s.log.Warn("subscriber send failed", "err", err)
	}

	if s.OnLive != nil {
		s.OnLive()
	}
}

// HandleGetPrice serves the subscriber's explicit current-price request
// from the cached snapshot. A miss yields no response — there is nothing
// to report yet, which is not an error.
func (s *Session) HandleGetPrice(ctx context.Context) {
	q, err := s.cache.GetLiveQuote(ctx, s.cfg.Symbol)
	if err != nil {
		s.log.Warn("live quote cache read failed", "err", err)
		return
	}
	if q == nil {
		return
	}
	if err := s.pub.Send(*q); err != nil {
		s.log.Warn("subscriber send failed", "err", err)
	}
}

// Close cancels the background task and waits for it to settle. The feed
// client performs its best-effort unsubscribe on the way out. Safe to call
// once per session; the shared cache handle stays open for other sessions.
func (s *Session) Close() {
	if !s.state.CompareAndSwap(int32(StateStreaming), int32(StateClosing)) {
		return
	}
	s.cancel()
	<-s.done
	s.state.Store(int32(StateClosed))
	s.log.Info("session closed")
}

// DayKey formats t as the calendar-day token used in opening-price keys.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
