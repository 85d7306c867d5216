package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockstream/config"
	"stockstream/internal/account"
	"stockstream/internal/api"
	"stockstream/internal/feed"
	"stockstream/internal/gateway"
	"stockstream/internal/history"
	"stockstream/internal/logger"
	"stockstream/internal/metrics"
	"stockstream/internal/model"
	"stockstream/internal/session"
	"stockstream/internal/store/memory"
	redisstore "stockstream/internal/store/redis"
)

func main() {
	cfg := config.Load()
	log := logger.Init("streamserver", slog.LevelInfo)
	log.Info("starting", "listen", cfg.ListenAddr, "metrics", cfg.MetricsAddr)

	m := metrics.New()
	msrv := metrics.NewServer(cfg.MetricsAddr)
	msrv.Start()

	cache := openCache(cfg, m, log)
	defer cache.Close()

	accounts, err := account.New(account.StoreConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Error("account store open failed", "err", err)
		os.Exit(1)
	}
	defer accounts.Close()

	quotes := feed.NewQuoteClient(cfg.FinnhubRESTURL, cfg.FinnhubAPIKey)
	hist := history.NewClient(history.Config{
		SeriesURL:  cfg.AlphaVantageURL,
		SeriesKey:  cfg.AlphaVantageAPIKey,
		MetricsURL: cfg.FinnhubRESTURL,
		MetricsKey: cfg.FinnhubAPIKey,
	})

	mux := http.NewServeMux()
	gateway.NewServer(cache, quotes,
		feed.Config{URL: cfg.FinnhubWSURL, APIKey: cfg.FinnhubAPIKey},
		session.Config{
			BucketWidth:  cfg.BucketWidthSec,
			SMAWindow:    cfg.SMAWindow,
			EMAPeriod:    cfg.EMAPeriod,
			EMASmoothing: cfg.EMASmoothing,
		},
		m, log).Register(mux)
	api.NewHandler(hist, accounts, log).Register(mux)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("listening", "addr", cfg.ListenAddr)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("server failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	msrv.Shutdown()
	log.Info("stopped")
}

// openCache connects to Redis and falls back to the in-process cache when
// Redis is unreachable. Sessions degrade rather than the server refusing
// to start.
func openCache(cfg *config.Config, m *metrics.Metrics, log *slog.Logger) model.SessionCache {
	rc, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Warn("redis unavailable, using in-memory cache", "addr", cfg.RedisAddr, "err", err)
		return memory.New(0)
	}
	rc.OnWriteError = m.CacheWriteErrors.Inc
	rc.OnBreakerTrip = m.CacheBreakerTrips.Inc
	return rc
}
