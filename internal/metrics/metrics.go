// Package metrics exposes Prometheus instrumentation for the streaming
// service and serves the /metrics endpoint.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the streaming service.
type Metrics struct {
	TicksTotal        prometheus.Counter
	LiveMessagesTotal prometheus.Counter
	BarsTotal         prometheus.Counter
	FeedReconnects    prometheus.Counter
	CacheWriteErrors  prometheus.Counter
	CacheBreakerTrips prometheus.Counter
	SessionsOpen      prometheus.Gauge
	SessionsRefused   prometheus.Counter
	QuoteFetchDur     prometheus.Histogram
}

// New registers and returns all metrics on the default registry.
func New() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamserver_ticks_total",
			Help: "Total ticks accepted from the upstream feed",
		}),
		LiveMessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamserver_live_messages_total",
			Help: "Total live snapshots published to subscribers",
		}),
		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamserver_bars_total",
			Help: "Total finalized bars",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamserver_feed_reconnects_total",
			Help: "Total upstream feed reconnection attempts",
		}),
		CacheWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamserver_cache_write_errors_total",
			Help: "Cache writes that failed (swallowed, cache is advisory)",
		}),
		CacheBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamserver_cache_breaker_trips_total",
			Help: "Times the cache circuit breaker opened",
		}),
		SessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamserver_sessions_open",
			Help: "Currently open streaming sessions",
		}),
		SessionsRefused: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamserver_sessions_refused_total",
			Help: "Sessions refused at open (missing feed credential)",
		}),
		QuoteFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamserver_quote_fetch_duration_seconds",
			Help:    "Opening-price REST fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.LiveMessagesTotal,
		m.BarsTotal,
		m.FeedReconnects,
		m.CacheWriteErrors,
		m.CacheBreakerTrips,
		m.SessionsOpen,
		m.SessionsRefused,
		m.QuoteFetchDur,
	)
	return m
}

// Server serves /metrics and /healthz on its own listener.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics server bound to addr (e.g. ":9090").
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start runs the server in the background.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] serving on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Shutdown stops the server with a bounded grace period.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.srv.Shutdown(ctx)
}
