// Command loader publishes a JSON-lines file of record events to the records
// topic for cmd/indexer to consume.
//
// Usage:
//
//	go run ./cmd/loader -input records.jsonl [-config loader.yaml] [-batch 500]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	input := flag.String("input", "", "JSON-lines file of record events")
	batchSize := flag.Int("batch", 500, "events per kafka write")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if *input == "" || *batchSize <= 0 {
		fmt.Fprintln(os.Stderr, "usage: loader -input records.jsonl [-batch n]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := publish(ctx, cfg.Kafka, *input, *batchSize); err != nil {
		slog.Error("load failed", "error", err)
		os.Exit(1)
	}
}

func publish(ctx context.Context, cfg config.KafkaConfig, path string, batchSize int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	producer := kafka.NewProducer(cfg, cfg.RecordsTopic)
	defer producer.Close()

	start := time.Now()
	var (
		batch []kafka.Event
		sent  int
		seq   int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := producer.Publish(ctx, batch...); err != nil {
			return err
		}
		sent += len(batch)
		batch = batch[:0]
		return nil
	}
	err = consumer.ReadEvents(f, func(ev consumer.RecordEvent) error {
		seq++
		key := ev.Key
		if key == "" {
			key = path + "#" + strconv.Itoa(seq)
			ev.Key = key
		}
		batch = append(batch, kafka.Event{Key: key, Value: ev})
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	slog.Info("load finished",
		"topic", cfg.RecordsTopic,
		"published", sent,
		"duration", time.Since(start),
	)
	return err
}
