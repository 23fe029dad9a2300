package redpanda

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ConsumerConfig tunes the event consumer.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// SessionTimeout bounds how long the group waits for a dead member.
	SessionTimeout time.Duration
	// HeartbeatInterval is the group heartbeat cadence.
	HeartbeatInterval time.Duration
	// StartOffset is "earliest" or "latest" for a fresh group.
	StartOffset string
}

// DefaultConsumerConfig returns defaults for the dispense worker group.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:           []string{"localhost:9092"},
		GroupID:           "dispense-worker",
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		StartOffset:       "earliest",
	}
}

// ConsumedMessage is one record handed to the handler.
type ConsumedMessage struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// MessageHandler processes one message. A non-nil error leaves the offset
// uncommitted so the message is redelivered.
type MessageHandler func(ctx context.Context, msg *ConsumedMessage) error

// Consumer reads pad events with manual offset commits.
type Consumer struct {
	client  *kgo.Client
	config  ConsumerConfig
	logger  *zap.Logger
	tracer  trace.Tracer
	handler MessageHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	messagesRead int64
	errorCount   int64
}

// NewConsumer creates a group consumer over the given topics.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handler == nil {
		return nil, errors.New("message handler is required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.HeartbeatInterval(cfg.HeartbeatInterval),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			logger.Info("partitions assigned", zap.Any("partitions", assigned))
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			logger.Info("partitions revoked", zap.Any("partitions", revoked))
		}),
	}
	if cfg.StartOffset == "latest" {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	} else {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		client:  client,
		config:  cfg,
		logger:  logger,
		tracer:  otel.Tracer("redpanda-consumer"),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start launches the poll loop.
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.consumeLoop()
}

// Stop drains, commits outstanding offsets and closes the client.
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
		c.logger.Warn("commit on stop failed", zap.Error(err))
	}
	c.client.Close()
	return nil
}

func (c *Consumer) consumeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		fetches := c.client.PollFetches(c.ctx)
		if fetches.IsClientClosed() {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				c.logger.Error("fetch error",
					zap.String("topic", err.Topic),
					zap.Int32("partition", err.Partition),
					zap.Error(err.Err))
				c.count(&c.errorCount)
			}
			continue
		}

		fetches.EachRecord(func(record *kgo.Record) {
			c.processRecord(record)
		})
	}
}

func (c *Consumer) processRecord(record *kgo.Record) {
	ctx, span := c.tracer.Start(c.ctx, "consume_message",
		trace.WithAttributes(
			attribute.String("topic", record.Topic),
			attribute.Int64("offset", record.Offset),
		))
	defer span.End()

	msg := &ConsumedMessage{
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Key:       record.Key,
		Value:     record.Value,
		Headers:   make(map[string]string),
		Timestamp: record.Timestamp,
	}
	for _, h := range record.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}

	if err := c.handler(ctx, msg); err != nil {
		c.logger.Error("handler failed",
			zap.String("topic", record.Topic),
			zap.Int64("offset", record.Offset),
			zap.Error(err))
		span.RecordError(err)
		c.count(&c.errorCount)
		// Leave uncommitted so the record is redelivered.
		return
	}

	c.count(&c.messagesRead)
	c.client.MarkCommitRecords(record)
	if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
		c.logger.Error("commit failed",
			zap.String("topic", record.Topic),
			zap.Int64("offset", record.Offset),
			zap.Error(err))
		span.RecordError(err)
	}
}

// Stats returns read counters.
func (c *Consumer) Stats() ConsumerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConsumerStats{
		MessagesRead: c.messagesRead,
		ErrorCount:   c.errorCount,
	}
}

// ConsumerStats holds consumer counters.
type ConsumerStats struct {
	MessagesRead int64
	ErrorCount   int64
}

func (c *Consumer) count(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}
