// Command indexer builds the term index. It consumes record events from
// Kafka or, with -input, bulk-loads a JSON-lines file, and flushes every
// component on shutdown.
//
// Usage:
//
//	go run ./cmd/indexer [-config indexer.yaml] [-input records.jsonl]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kvstore"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	input := flag.String("input", "", "JSON-lines file to bulk-load instead of consuming kafka")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg, *input); err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer service stopped")
}

func run(cfg *config.Config, input string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker()
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, map[string]http.Handler{
			"GET /health/live":  checker.LiveHandler(),
			"GET /health/ready": checker.ReadyHandler(),
		})
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(sctx)
		}()
	}

	db, err := kvstore.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := indexer.NewEngine(db, cfg, m)
	if err != nil {
		return err
	}
	defer func() {
		slog.Info("final flush before shutdown")
		if err := engine.Close(); err != nil {
			slog.Error("closing engine failed", "error", err)
		}
	}()
	engine.StartFlushLoop(ctx)
	checker.Register("engine", engine.Health)

	var ledger consumer.Ledger
	if cfg.Postgres.Enabled {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := postgres.New(pctx, cfg.Postgres)
		cancel()
		if err != nil {
			return err
		}
		defer client.Close()
		l := postgres.NewLedger(client)
		if err := l.EnsureSchema(ctx); err != nil {
			return err
		}
		ledger = l
		checker.Register("postgres", health.Ping(client.Ping, health.StatusDegraded))
		slog.Info("ingestion ledger enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}
	h := consumer.NewHandler(engine, ledger)

	if input != "" {
		return bulkLoad(ctx, h, input)
	}

	kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.RecordsTopic, h.HandleMessage())
	ic := consumer.New(kc)
	defer ic.Close()
	checker.Register("kafka", ic.Health)
	slog.Info("indexer consuming from kafka",
		"topic", cfg.Kafka.RecordsTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	return ic.Start(ctx)
}

// bulkLoad indexes every event in path. Rejected events are skipped; any
// other failure stops the load.
func bulkLoad(ctx context.Context, h *consumer.Handler, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	start := time.Now()
	var indexed, rejected int
	err = consumer.ReadEvents(f, func(ev consumer.RecordEvent) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := h.Handle(ctx, ev)
		switch {
		case errors.Is(err, apperrors.ErrInvalidInput):
			rejected++
			slog.Warn("record rejected", "key", ev.Key, "error", err)
			return nil
		case err != nil:
			return err
		}
		indexed++
		if indexed%100000 == 0 {
			slog.Info("bulk load progress", "indexed", indexed, "elapsed", time.Since(start))
		}
		return nil
	})
	slog.Info("bulk load finished",
		"indexed", indexed,
		"rejected", rejected,
		"duration", time.Since(start),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
