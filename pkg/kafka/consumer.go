// Package kafka carries record events between the loader and the indexer
// over segmentio/kafka-go. Values are JSON; a Consumer hands each message to
// a MessageHandler and commits it only after the handler succeeds.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// Message is the part of a fetched Kafka message handlers see.
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
	Time      time.Time
}

// MessageHandler processes one message. A non-nil error leaves the message
// uncommitted.
type MessageHandler func(ctx context.Context, msg Message) error

// Stats counts consumer outcomes since start.
type Stats struct {
	Processed int64
	Failed    int64
}

// Consumer reads a topic as part of the configured consumer group.
type Consumer struct {
	reader    *kafka.Reader
	handler   MessageHandler
	processed atomic.Int64
	failed    atomic.Int64
	logger    *slog.Logger
}

// NewConsumer joins cfg.ConsumerGroup on topic. A group with no committed
// offset starts at the beginning of the topic so no record is skipped.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{
		reader:  r,
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start fetches and handles messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err(), "processed", c.processed.Load())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		err = c.handler(ctx, Message{
			Key:       msg.Key,
			Value:     msg.Value,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Time:      msg.Time,
		})
		if err != nil {
			c.failed.Add(1)
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		c.processed.Add(1)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// Stats returns the outcome counters.
func (c *Consumer) Stats() Stats {
	return Stats{Processed: c.processed.Load(), Failed: c.failed.Load()}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T. Failures wrap ErrDecode.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, apperrors.Decodef("kafka message: %v", err)
	}
	return result, nil
}
