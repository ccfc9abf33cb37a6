package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/carousel-labs/pricedex/internal/breaker"
	"github.com/carousel-labs/pricedex/internal/cache"
	"github.com/carousel-labs/pricedex/internal/config"
	dbRedis "github.com/carousel-labs/pricedex/internal/db/redis"
	dbS3 "github.com/carousel-labs/pricedex/internal/db/s3"
	logpkg "github.com/carousel-labs/pricedex/internal/logger"
	"github.com/carousel-labs/pricedex/internal/metrics"
	embeddingrepo "github.com/carousel-labs/pricedex/internal/repository/embedding"
	itemrepo "github.com/carousel-labs/pricedex/internal/repository/item"
	searchrepo "github.com/carousel-labs/pricedex/internal/repository/search"
	chiTransport "github.com/carousel-labs/pricedex/internal/transport/chi"
	searchuc "github.com/carousel-labs/pricedex/internal/usecase/search"
	"github.com/carousel-labs/pricedex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting pricedex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("blob_bucket", cfg.Blob.Bucket),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:     cfg.Database.Addrs,
		Username:  cfg.Database.Username,
		Password:  cfg.Database.Password,
		DB:        cfg.Database.DB,
		KeyPrefix: cfg.Database.KeyPrefix,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	blobs, err := dbS3.New(ctx, dbS3.Config{
		Bucket:   cfg.Blob.Bucket,
		Region:   cfg.Blob.Region,
		Endpoint: cfg.Blob.Endpoint,
	})
	if err != nil {
		logger.Fatal("Failed to create blob store", zap.Error(err))
	}

	// Register domain metrics explicitly (no init())
	metrics.RegisterCoreMetrics()

	// Cache L2 sits behind a breaker so a flapping remote degrades to
	// L1-only instead of failing lookups.
	cacheBreaker := breaker.New("cache-l2", breaker.Config{
		FailureThreshold: cfg.Cache.FailureThreshold,
		SuccessThreshold: cfg.Cache.SuccessThreshold,
		Timeout:          time.Duration(cfg.Cache.BreakerTimeoutSec) * time.Second,
	}, logger)
	cacheBreaker.OnStateChange(func(from, to breaker.State) {
		metrics.BreakerTransitionsTotal.WithLabelValues("cache-l2", string(from), string(to)).Inc()
	})

	tiered := cache.New(cache.Config{
		Namespace:  cfg.Cache.Namespace,
		MaxEntries: cfg.Cache.MaxEntries,
		DefaultTTL: time.Duration(cfg.Cache.DefaultTTLSec) * time.Second,
	}, store, cacheBreaker, logger)

	// Repositories
	retention := time.Duration(cfg.Search.RetentionDays) * 24 * time.Hour
	items := itemrepo.New(store, retention)
	candidates := searchrepo.New(store, logger)
	fetcher := embeddingrepo.New(embeddingrepo.Config{
		BatchSize:      cfg.Search.FetchBatchSize,
		MaxConcurrency: cfg.Search.FetchConcurrency,
	}, blobs, logger)

	// Use case services
	searchSvc := searchuc.New(searchuc.Config{
		DaysBack:      cfg.Search.DaysBack,
		MinSimilarity: cfg.Search.MinSimilarity,
	}, candidates, fetcher, logger)

	// Create chi server
	responseTTL := time.Duration(cfg.Cache.ResponseTTLSec) * time.Second
	server := chiTransport.NewServer(searchSvc, items, tiered, store, responseTTL, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Let in-flight L2 cache writes land before the process exits.
	tiered.Flush()

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
