// Package consumer feeds record events from Kafka or a JSON-lines file into
// the indexer engine and reports each outcome to the ingestion ledger.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/postgres"
)

// Indexer is the part of indexer.Engine the consumer drives.
type Indexer interface {
	Index(rec indexer.Record) (int64, error)
}

// Ledger receives one outcome per event. It may be nil.
type Ledger interface {
	Record(ctx context.Context, key string, recordID int64, status, detail string) error
}

// Handler indexes decoded events.
type Handler struct {
	engine Indexer
	ledger Ledger
	logger *slog.Logger
}

func NewHandler(engine Indexer, ledger Ledger) *Handler {
	return &Handler{
		engine: engine,
		ledger: ledger,
		logger: slog.Default().With("component", "index-consumer"),
	}
}

// Handle indexes one event. Events that can never be indexed are recorded
// as rejected and yield an ErrInvalidInput error; engine failures are
// recorded as failed and returned. A record that was indexed but whose
// follow-up flush failed counts as indexed: the engine retries the flush,
// and redelivering the event would index it twice.
func (h *Handler) Handle(ctx context.Context, ev RecordEvent) (int64, error) {
	rec, err := ev.Record()
	if err != nil {
		h.report(ctx, ev.Key, -1, postgres.StatusRejected, err.Error())
		return -1, err
	}
	id, err := h.engine.Index(rec)
	var flushErr *indexer.FlushError
	if errors.As(err, &flushErr) {
		h.logger.Warn("record indexed but flush failed",
			"key", ev.Key,
			"record_id", id,
			"error", flushErr.Err,
		)
		h.report(ctx, ev.Key, id, postgres.StatusIndexed, "flush deferred: "+flushErr.Err.Error())
		return id, nil
	}
	if errors.Is(err, apperrors.ErrInvalidInput) {
		h.report(ctx, ev.Key, -1, postgres.StatusRejected, err.Error())
		return -1, fmt.Errorf("indexing %q: %w", ev.Key, err)
	}
	if err != nil {
		h.report(ctx, ev.Key, -1, postgres.StatusFailed, err.Error())
		return -1, fmt.Errorf("indexing %q: %w", ev.Key, err)
	}
	h.report(ctx, ev.Key, id, postgres.StatusIndexed, "")
	h.logger.Debug("record indexed", "key", ev.Key, "kind", ev.Kind, "record_id", id)
	return id, nil
}

func (h *Handler) report(ctx context.Context, key string, id int64, status, detail string) {
	if h.ledger == nil || key == "" {
		return
	}
	if err := h.ledger.Record(ctx, key, id, status, detail); err != nil {
		h.logger.Error("failed to update ledger",
			"key", key,
			"status", status,
			"error", err,
		)
	}
}

// HandleMessage adapts h to the Kafka consumer. Undecodable and rejected
// messages are logged and committed so they do not block the partition.
func (h *Handler) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		ev, err := kafka.DecodeJSON[RecordEvent](msg.Value)
		if err != nil {
			h.logger.Error("failed to decode record event",
				"error", err,
				"key", string(msg.Key),
				"offset", msg.Offset,
			)
			return nil
		}
		if ev.Key == "" {
			ev.Key = string(msg.Key)
		}
		_, err = h.Handle(ctx, ev)
		if errors.Is(err, apperrors.ErrInvalidInput) {
			h.logger.Warn("record event rejected", "key", ev.Key, "error", err)
			return nil
		}
		return err
	}
}

// IndexConsumer runs a Kafka consumer bound to a Handler.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	err := ic.consumer.Start(ctx)
	stats := ic.consumer.Stats()
	ic.logger.Info("index consumer stopped", "processed", stats.Processed, "failed", stats.Failed)
	return err
}

// Health reports degraded once any message has failed to index.
func (ic *IndexConsumer) Health(context.Context) health.ComponentHealth {
	stats := ic.consumer.Stats()
	h := health.ComponentHealth{
		Status:  health.StatusUp,
		Message: fmt.Sprintf("%d processed, %d failed", stats.Processed, stats.Failed),
	}
	if stats.Failed > 0 {
		h.Status = health.StatusDegraded
	}
	return h
}

func (ic *IndexConsumer) Close() error {
	return ic.consumer.Close()
}
