// Package config loads application configuration from environment
// variables, with a .env file picked up for local development.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Kafka     KafkaConfig
	Predictor PredictorConfig
	Market    MarketConfig
	Risk      RiskConfig
	Monitor   MonitorConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
}

// StoreConfig holds persistence configuration. Empty DatabaseURL falls
// back to the in-memory store; empty RedisURL disables the cache layer.
type StoreConfig struct {
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration
}

// KafkaConfig holds event publishing configuration. Empty Brokers disables
// publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// PredictorConfig holds model-service client configuration.
type PredictorConfig struct {
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
	PollAttempts int
}

// MarketConfig holds market-data client configuration.
type MarketConfig struct {
	BaseURL string
	// RateLimit is requests per second against the market API.
	RateLimit int
}

// RiskConfig holds exposure limits in dollars.
type RiskConfig struct {
	MaxPerMarket   float64
	MaxCorrelated  float64
	PrefixSegments int
}

// MonitorConfig holds background position monitor configuration.
type MonitorConfig struct {
	Interval time.Duration
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Store: StoreConfig{
			DatabaseURL: getEnv("DATABASE_URL", ""),
			RedisURL:    getEnv("REDIS_URL", ""),
			CacheTTL:    getDuration("CACHE_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "position-events"),
		},
		Predictor: PredictorConfig{
			BaseURL:      getEnv("MODEL_API_URL", "http://localhost:8000"),
			Timeout:      getDuration("MODEL_API_TIMEOUT", 30*time.Second),
			PollInterval: getDuration("POLL_INTERVAL", 2*time.Second),
			PollAttempts: getInt("POLL_MAX_ATTEMPTS", 60),
		},
		Market: MarketConfig{
			BaseURL:   getEnv("MARKET_API_URL", "https://api.elections.kalshi.com/trade-api/v2"),
			RateLimit: getInt("MARKET_API_RATE_LIMIT", 5),
		},
		Risk: RiskConfig{
			MaxPerMarket:   getFloat("RISK_MAX_PER_MARKET", 100),
			MaxCorrelated:  getFloat("RISK_MAX_CORRELATED", 250),
			PrefixSegments: getInt("RISK_PREFIX_SEGMENTS", 2),
		},
		Monitor: MonitorConfig{
			Interval: getDuration("MONITOR_INTERVAL", time.Hour),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		slog.Warn("invalid number in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
