package redpanda

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProducerConfig tunes the event producer.
type ProducerConfig struct {
	Brokers []string
	// Linger is how long to buffer before sending a batch.
	Linger time.Duration
	// BatchMaxBytes caps one batch's size.
	BatchMaxBytes int32
	// MaxRetries bounds retries for a failed send.
	MaxRetries int
	// RetryBackoff is the base backoff between retries.
	RetryBackoff time.Duration
}

// DefaultProducerConfig returns defaults sized for clinic event volume.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:       []string{"localhost:9092"},
		Linger:        10 * time.Millisecond,
		BatchMaxBytes: 1 * 1024 * 1024,
		MaxRetries:    3,
		RetryBackoff:  100 * time.Millisecond,
	}
}

// Producer publishes prescription-pad events.
type Producer struct {
	client *kgo.Client
	logger *zap.Logger
	tracer trace.Tracer

	mu           sync.Mutex
	messagesSent int64
	errorCount   int64
}

// NewProducer creates a producer with durable acks.
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchMaxBytes(cfg.BatchMaxBytes),
		kgo.ProducerLinger(cfg.Linger),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.RetryBackoffFn(func(attempt int) time.Duration {
			return cfg.RetryBackoff * time.Duration(attempt+1)
		}),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.Lz4Compression()),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Producer{
		client: client,
		logger: logger,
		tracer: otel.Tracer("redpanda-producer"),
	}, nil
}

// Publish sends one message and waits for the broker acknowledgment.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	ctx, span := p.tracer.Start(ctx, "publish",
		trace.WithAttributes(
			attribute.String("topic", topic),
			attribute.String("key", key),
		))
	defer span.End()

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}
	injectTraceHeaders(ctx, record)

	var produceErr error
	var wg sync.WaitGroup
	wg.Add(1)
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		defer wg.Done()
		if err != nil {
			produceErr = err
			p.count(&p.errorCount)
			span.RecordError(err)
			p.logger.Error("publish failed",
				zap.String("topic", topic),
				zap.String("key", key),
				zap.Error(err))
			return
		}
		p.count(&p.messagesSent)
		p.logger.Debug("published",
			zap.String("topic", r.Topic),
			zap.Int32("partition", r.Partition),
			zap.Int64("offset", r.Offset))
	})
	wg.Wait()
	return produceErr
}

// Flush blocks until buffered records are sent.
func (p *Producer) Flush(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Close flushes with a timeout and closes the client.
func (p *Producer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("flush on close failed", zap.Error(err))
	}
	p.client.Close()
	return nil
}

// Stats returns send counters.
func (p *Producer) Stats() ProducerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProducerStats{
		MessagesSent: p.messagesSent,
		ErrorCount:   p.errorCount,
	}
}

// ProducerStats holds producer counters.
type ProducerStats struct {
	MessagesSent int64
	ErrorCount   int64
}

func (p *Producer) count(field *int64) {
	p.mu.Lock()
	*field++
	p.mu.Unlock()
}

// injectTraceHeaders adds W3C trace context to record headers.
func injectTraceHeaders(ctx context.Context, record *kgo.Record) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}
	sc := span.SpanContext()
	record.Headers = append(record.Headers,
		kgo.RecordHeader{Key: "traceparent", Value: []byte(fmt.Sprintf("00-%s-%s-%02x",
			sc.TraceID().String(),
			sc.SpanID().String(),
			sc.TraceFlags()))},
	)
}
