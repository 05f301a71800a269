// Command searcher serves queries over an index built by cmd/indexer.
//
// Usage:
//
//	go run ./cmd/searcher [-config searcher.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kvstore"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "store", cfg.Store.Path)

	// Readers share the file lock but wait while an indexer holds it.
	cfg.Store.ReadOnly = true
	db, err := kvstore.Open(cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
	}
	svc, err := searcher.Open(db, cfg, m)
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		stats := svc.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d terms, %d records", stats["terms"], stats["records"]),
		}
	})

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.Ping(redisClient.Ping, health.StatusDegraded))
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	router := handler.NewRouter(handler.New(svc, queryCache), checker, m, cfg.Server.WriteTimeout)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}
