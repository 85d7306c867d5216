// Package gateway exposes the subscriber-facing WebSocket surface. Each
// accepted connection owns exactly one streaming session; closing the
// connection tears the session down.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"stockstream/internal/feed"
	"stockstream/internal/logger"
	"stockstream/internal/metrics"
	"stockstream/internal/model"
	"stockstream/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Server accepts subscriber connections and runs one session per
// connection. All sessions share the cache and quote client; each gets
// its own upstream feed.
type Server struct {
	cache   model.SessionCache
	quotes  model.QuoteFetcher
	feedCfg feed.Config
	sessCfg session.Config
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewServer(cache model.SessionCache, quotes model.QuoteFetcher, feedCfg feed.Config, sessCfg session.Config, m *metrics.Metrics, log *slog.Logger) *Server {
	if m != nil {
		quotes = timedQuotes{inner: quotes, observe: m.QuoteFetchDur.Observe}
	}
	return &Server{
		cache:   cache,
		quotes:  quotes,
		feedCfg: feedCfg,
		sessCfg: sessCfg,
		metrics: m,
		log:     log,
	}
}

// timedQuotes records opening-price fetch latency.
type timedQuotes struct {
	inner   model.QuoteFetcher
	observe func(float64)
}

func (t timedQuotes) OpeningPrice(ctx context.Context, symbol string) float64 {
	start := time.Now()
	defer func() { t.observe(time.Since(start).Seconds()) }()
	return t.inner.OpeningPrice(ctx, symbol)
}

// Register mounts the streaming endpoint on mux. The symbol is the last
// path segment: /ws/stock/AAPL.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws/stock/", s.handleWS)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/stock/"), "/"))
	if symbol == "" || strings.Contains(symbol, "/") {
		http.Error(w, "missing symbol", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "err", err)
		return
	}

	feedCfg := s.feedCfg
	feedCfg.Symbol = symbol
	fd, err := feed.New(feedCfg)
	if err != nil {
		// No upstream credential means no live data for anyone; refuse
		// the subscription instead of streaming silence.
		s.refuse(conn, symbol, err)
		return
	}

	sessCfg := s.sessCfg
	sessCfg.Symbol = symbol

	sessLog := logger.ForSession(s.log, symbol)
	sub := newSubscriber(conn, sessLog)
	sess := session.New(sessCfg, s.cache, s.quotes, fd, sub, sessLog)
	if s.metrics != nil {
		fd.OnReconnect = s.metrics.FeedReconnects.Inc
		sess.OnTick = s.metrics.TicksTotal.Inc
		sess.OnLive = s.metrics.LiveMessagesTotal.Inc
		sess.OnBar = s.metrics.BarsTotal.Inc
		s.metrics.SessionsOpen.Inc()
	}

	sess.Open(r.Context())
	s.log.Info("session opened", "symbol", symbol, "remote", conn.RemoteAddr().String())

	go sub.writePump()
	sub.readPump(r.Context(), sess)

	sess.Close()
	if s.metrics != nil {
		s.metrics.SessionsOpen.Dec()
	}
	s.log.Info("session closed", "symbol", symbol)
}

// refuse upgrades were already done; send a policy-violation close so the
// client can distinguish refusal from a transport failure.
func (s *Server) refuse(conn *websocket.Conn, symbol string, err error) {
	reason := "subscription refused"
	if errors.Is(err, feed.ErrNoCredential) {
		reason = "upstream feed unavailable"
	}
	if s.metrics != nil {
		s.metrics.SessionsRefused.Inc()
	}
	s.log.Warn("session refused", "symbol", symbol, "err", err)

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		deadline())
	conn.Close()
}
