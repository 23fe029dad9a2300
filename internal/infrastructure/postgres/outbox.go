package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clinidesk/go-rxpad/internal/infrastructure/redpanda"
)

// OutboxEntry is one event awaiting publication. Repositories append entries
// in the same transaction as the row they describe; the relay drains them.
type OutboxEntry struct {
	ID            int64
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       json.RawMessage
	Topic         string
	Key           string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	RetryCount    int
	LastError     *string
}

// OutboxConfig tunes the relay loop.
type OutboxConfig struct {
	// BatchSize is the number of entries drained per poll.
	BatchSize int
	// PollInterval is how often the relay polls for new entries.
	PollInterval time.Duration
	// MaxRetries is the retry ceiling before an entry goes to dead letter.
	MaxRetries int
}

// DefaultOutboxConfig returns defaults sized for clinic event volume.
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		BatchSize:    50,
		PollInterval: 250 * time.Millisecond,
		MaxRetries:   5,
	}
}

// OutboxPublisher publishes drained entries to the broker.
type OutboxPublisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Outbox drains the outbox table into the broker.
type Outbox struct {
	pool      *pgxpool.Pool
	config    OutboxConfig
	publisher OutboxPublisher
	logger    *zap.Logger
	tracer    trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOutbox creates the relay.
func NewOutbox(pool *pgxpool.Pool, publisher OutboxPublisher, cfg OutboxConfig, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Outbox{
		pool:      pool,
		config:    cfg,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("outbox"),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// WriteEntry appends an outbox entry inside the caller's transaction.
func WriteEntry(ctx context.Context, tx pgx.Tx, entry *OutboxEntry) error {
	query := `
		INSERT INTO outbox (aggregate_id, aggregate_type, event_type, payload, topic, key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := tx.QueryRow(ctx, query,
		entry.AggregateID,
		entry.AggregateType,
		entry.EventType,
		entry.Payload,
		entry.Topic,
		entry.Key,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("write outbox entry: %w", err)
	}
	return nil
}

// Start launches the drain loop.
func (o *Outbox) Start() {
	go o.processLoop()
	o.logger.Info("outbox relay started",
		zap.Int("batch_size", o.config.BatchSize),
		zap.Duration("poll_interval", o.config.PollInterval))
}

// Stop drains in-flight work and stops the loop.
func (o *Outbox) Stop() {
	o.cancel()
	<-o.done
	o.logger.Info("outbox relay stopped")
}

func (o *Outbox) processLoop() {
	defer close(o.done)

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.processBatch()
		}
	}
}

func (o *Outbox) processBatch() {
	ctx, span := o.tracer.Start(o.ctx, "outbox_process_batch")
	defer span.End()

	// Single-drainer guard across relay replicas.
	const lockID = int64(774215001)
	var acquired bool
	if err := o.pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil || !acquired {
		return
	}
	defer o.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", lockID)

	entries, err := o.fetchUnprocessed(ctx)
	if err != nil {
		o.logger.Error("fetch outbox entries failed", zap.Error(err))
		span.RecordError(err)
		return
	}
	if len(entries) == 0 {
		return
	}
	span.SetAttributes(attribute.Int("batch_size", len(entries)))

	for _, entry := range entries {
		if err := o.processEntry(ctx, entry); err != nil {
			o.logger.Error("outbox entry failed",
				zap.Int64("id", entry.ID),
				zap.String("event_type", entry.EventType),
				zap.Error(err))
		}
	}
}

func (o *Outbox) fetchUnprocessed(ctx context.Context) ([]*OutboxEntry, error) {
	query := `
		SELECT id, aggregate_id, aggregate_type, event_type, payload,
		       topic, key, created_at, retry_count, last_error
		FROM outbox
		WHERE processed_at IS NULL
		  AND retry_count < $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := o.pool.Query(ctx, query, o.config.MaxRetries, o.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []*OutboxEntry
	for rows.Next() {
		entry := &OutboxEntry{}
		err := rows.Scan(
			&entry.ID, &entry.AggregateID, &entry.AggregateType,
			&entry.EventType, &entry.Payload, &entry.Topic,
			&entry.Key, &entry.CreatedAt, &entry.RetryCount, &entry.LastError,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (o *Outbox) processEntry(ctx context.Context, entry *OutboxEntry) error {
	ctx, span := o.tracer.Start(ctx, "outbox_process_entry",
		trace.WithAttributes(
			attribute.Int64("entry_id", entry.ID),
			attribute.String("event_type", entry.EventType),
		))
	defer span.End()

	if err := o.publisher.Publish(ctx, entry.Topic, entry.Key, entry.Payload); err != nil {
		errStr := err.Error()
		update := `
			UPDATE outbox
			SET retry_count = retry_count + 1, last_error = $1, updated_at = NOW()
			WHERE id = $2
		`
		if _, uerr := o.pool.Exec(ctx, update, errStr, entry.ID); uerr != nil {
			o.logger.Error("record retry failed", zap.Error(uerr))
		}
		span.RecordError(err)
		return fmt.Errorf("publish: %w", err)
	}

	if _, err := o.pool.Exec(ctx,
		`UPDATE outbox SET processed_at = NOW(), updated_at = NOW() WHERE id = $1`, entry.ID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("mark processed: %w", err)
	}

	o.logger.Debug("outbox entry published",
		zap.Int64("id", entry.ID),
		zap.String("topic", entry.Topic))
	return nil
}

// MoveToDeadLetter republishes exhausted entries to the dead-letter topic
// and marks them processed.
func (o *Outbox) MoveToDeadLetter(ctx context.Context) (int64, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload, topic, key, retry_count, last_error
		FROM outbox
		WHERE processed_at IS NULL
		  AND retry_count >= $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := o.pool.Query(ctx, query, o.config.MaxRetries)
	if err != nil {
		return 0, fmt.Errorf("query exhausted entries: %w", err)
	}
	defer rows.Close()

	var count int64
	for rows.Next() {
		entry := &OutboxEntry{}
		if err := rows.Scan(&entry.ID, &entry.AggregateID, &entry.EventType,
			&entry.Payload, &entry.Topic, &entry.Key, &entry.RetryCount, &entry.LastError); err != nil {
			continue
		}

		dl, _ := json.Marshal(map[string]any{
			"original_topic": entry.Topic,
			"event_type":     entry.EventType,
			"aggregate_id":   entry.AggregateID,
			"payload":        entry.Payload,
			"retry_count":    entry.RetryCount,
			"last_error":     entry.LastError,
		})
		if err := o.publisher.Publish(ctx, redpanda.TopicDeadLetter, entry.Key, dl); err != nil {
			o.logger.Error("dead letter publish failed", zap.Error(err))
			continue
		}
		if _, err := o.pool.Exec(ctx, "UPDATE outbox SET processed_at = NOW() WHERE id = $1", entry.ID); err != nil {
			o.logger.Error("mark dead-lettered failed", zap.Error(err))
			continue
		}
		count++
	}
	return count, nil
}

// CleanupProcessed deletes processed entries older than the retention window.
func (o *Outbox) CleanupProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM outbox
		WHERE processed_at IS NOT NULL
		  AND processed_at < NOW() - $1::interval
	`
	result, err := o.pool.Exec(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return result.RowsAffected(), nil
}

// OutboxStats summarizes relay backlog.
type OutboxStats struct {
	Pending       int64
	Processed     int64
	Failed        int64
	OldestPending *time.Time
}

// GetStats reads current backlog counters.
func (o *Outbox) GetStats(ctx context.Context) (*OutboxStats, error) {
	stats := &OutboxStats{}
	if err := o.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL AND retry_count < $1",
		o.config.MaxRetries).Scan(&stats.Pending); err != nil {
		return nil, err
	}
	if err := o.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM outbox WHERE processed_at IS NOT NULL AND processed_at > NOW() - INTERVAL '24 hours'").Scan(&stats.Processed); err != nil {
		return nil, err
	}
	if err := o.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL AND retry_count >= $1",
		o.config.MaxRetries).Scan(&stats.Failed); err != nil {
		return nil, err
	}
	o.pool.QueryRow(ctx, "SELECT MIN(created_at) FROM outbox WHERE processed_at IS NULL").Scan(&stats.OldestPending)
	return stats, nil
}
