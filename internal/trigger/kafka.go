package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler receives the reference of one accepted document.
type Handler func(ctx context.Context, ref string) error

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaConsumer reads bucket notifications from a topic and hands accepted
// object keys to a Handler. Offsets are committed after the handler returns.
type KafkaConsumer struct {
	reader  MessageReader
	filter  Filter
	handler Handler
	logger  *slog.Logger
}

func NewKafkaConsumer(cfg KafkaConfig, filter Filter, handler Handler, logger *slog.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka consumer: brokers and topic are required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
	return NewKafkaConsumerWithReader(reader, filter, handler, logger), nil
}

func NewKafkaConsumerWithReader(r MessageReader, filter Filter, handler Handler, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaConsumer{reader: r, filter: filter, handler: handler, logger: logger}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.logger.Info("trigger.kafka.start")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("trigger.kafka.stop")
				return nil
			}
			c.logger.Error("trigger.kafka.fetch_failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		unhandled, err := c.handle(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				// Not committed, so the message is redelivered after restart.
				return nil
			}
			c.logger.Error("trigger.kafka.handle_failed",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
				"unhandled_keys", unhandled, "error", err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("trigger.kafka.commit_failed", "offset", msg.Offset, "error", err)
		}
	}
}

// handle passes every accepted record to the handler. A failed record does
// not stop the ones after it; the keys that were not handled are returned.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) ([]string, error) {
	events, err := DecodeNotification(msg.Value)
	if err != nil {
		return nil, err
	}
	var (
		unhandled []string
		errs      []error
	)
	for _, e := range events {
		if !c.filter.Accept(e) {
			c.logger.Debug("trigger.kafka.skip", "event", e.Name, "key", e.Key)
			continue
		}
		if ctx.Err() != nil {
			return append(unhandled, e.Key), errors.Join(append(errs, ctx.Err())...)
		}
		if err := c.handler(ctx, e.Key); err != nil {
			unhandled = append(unhandled, e.Key)
			errs = append(errs, fmt.Errorf("handle %s: %w", e.Key, err))
			continue
		}
		c.logger.Info("trigger.kafka.accepted", "key", e.Key, "bucket", e.Bucket, "size", e.Size)
	}
	return unhandled, errors.Join(errs...)
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
