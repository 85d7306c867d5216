package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Upstream vendors
	FinnhubAPIKey      string // empty = live sessions are refused
	FinnhubWSURL       string
	FinnhubRESTURL     string
	AlphaVantageAPIKey string
	AlphaVantageURL    string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	ListenAddr    string
	MetricsAddr   string

	// Streaming parameters
	BucketWidthSec int64
	SMAWindow      int
	EMAPeriod      int
	EMASmoothing   float64
}

// Load reads configuration from a .env file (if present) and the
// environment. The feed credential is deliberately optional: the server
// starts without it and refuses live sessions instead.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env")
	}

	return &Config{
		FinnhubAPIKey:      getEnv("FINNHUB_API_KEY", ""),
		FinnhubWSURL:       getEnv("FINNHUB_WS_URL", "wss://ws.finnhub.io"),
		FinnhubRESTURL:     getEnv("FINNHUB_REST_URL", "https://finnhub.io/api/v1"),
		AlphaVantageAPIKey: getEnv("ALPHAVANTAGE_API_KEY", ""),
		AlphaVantageURL:    getEnv("ALPHAVANTAGE_URL", "https://www.alphavantage.co"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/accounts.db"),
		ListenAddr:    getEnv("LISTEN_ADDR", ":8000"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		BucketWidthSec: getEnvInt64("BUCKET_WIDTH_SEC", 300),
		SMAWindow:      getEnvInt("SMA_WINDOW", 20),
		EMAPeriod:      getEnvInt("EMA_PERIOD", 9),
		EMASmoothing:   getEnvFloat("EMA_SMOOTHING", 2.0),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return f
}
