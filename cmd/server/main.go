package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/snapbet/decision-engine/internal/api"
	"github.com/snapbet/decision-engine/internal/config"
	"github.com/snapbet/decision-engine/internal/events"
	"github.com/snapbet/decision-engine/internal/metrics"
	"github.com/snapbet/decision-engine/internal/position"
	"github.com/snapbet/decision-engine/internal/predict"
	"github.com/snapbet/decision-engine/internal/quote"
	"github.com/snapbet/decision-engine/internal/risk"
	"github.com/snapbet/decision-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Store.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Store.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Store.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.Store.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Store.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.Store.CacheTTL.String())
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Event publishing ---
	var publisher position.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		cleanup = append(cleanup, func() { producer.Close() })
		publisher = producer
		slog.Info("Kafka publishing enabled", "topic", cfg.Kafka.Topic)
	}

	// --- Upstream clients ---
	predictor := predict.NewClient(cfg.Predictor.BaseURL, cfg.Predictor.Timeout)
	poller := &predict.Poller{
		Fetcher:     predictor,
		Interval:    cfg.Predictor.PollInterval,
		MaxAttempts: cfg.Predictor.PollAttempts,
	}
	quotes := quote.NewClient(cfg.Market.BaseURL, quote.Options{
		RequestsPerSec: cfg.Market.RateLimit,
	})

	// --- Exposure limits ---
	limiter := risk.NewLimiter(
		decimal.NewFromFloat(cfg.Risk.MaxPerMarket),
		decimal.NewFromFloat(cfg.Risk.MaxCorrelated),
		cfg.Risk.PrefixSegments,
	)

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- Position lifecycle + background monitor ---
	posSvc := position.NewService(st, quotes, limiter, publisher, wsHub, logger)

	lifeCtx, stopBackground := context.WithCancel(context.Background())
	monitor := position.NewMonitor(posSvc, cfg.Monitor.Interval, logger)
	go monitor.Run(lifeCtx)

	// --- API service ---
	apiSvc := api.NewService(lifeCtx, st, predictor, poller, quotes, posSvc, wsHub, logger)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"decision-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for job and position updates.
		r.Get("/ws", wsHub.HandleWS)

		apiSvc.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("decision-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down decision-engine...")

	// Stop background polling and the monitor before closing the server so
	// in-flight submit flows finish their store writes.
	stopBackground()
	apiSvc.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("decision-engine stopped")
}
