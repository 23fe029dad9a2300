// Package idempotency guards retried flush requests and computes the
// patient-identity fingerprints used for duplicate suppression.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// FingerprintIdentity derives the duplicate-detection fingerprint for a
// patient identity: lower-cased name, date of birth and contact, joined and
// hashed. Two temporary drafts with the same fingerprint describe the same
// person.
func FingerprintIdentity(name, dateOfBirth, contact string) string {
	data := strings.Join([]string{strings.ToLower(name), dateOfBirth, contact}, "|")
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Status is the processing state of an inbox entry.
type Status string

const (
	StatusStarted     Status = "STARTED"
	StatusFinished    Status = "FINISHED"
	StatusRecoverable Status = "RECOVERABLE"
	StatusFailed      Status = "FAILED"
)

// Entry is one idempotency record.
type Entry struct {
	Key       string
	Handler   string
	Status    Status
	Payload   json.RawMessage
	Result    json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
}

// Config holds inbox tuning.
type Config struct {
	// TTL is how long finished entries stay replayable.
	TTL time.Duration
	// CleanupInterval is how often expired entries are purged.
	CleanupInterval time.Duration
	// RecoveryTimeout is when a STARTED entry counts as abandoned.
	RecoveryTimeout time.Duration
}

// DefaultConfig returns defaults sized for clinic flush traffic.
func DefaultConfig() Config {
	return Config{
		TTL:             24 * time.Hour,
		CleanupInterval: time.Hour,
		RecoveryTimeout: 2 * time.Minute,
	}
}

// Inbox stores idempotency records in Postgres so a retried flush request
// replays the recorded outcome instead of persisting drafts twice.
type Inbox struct {
	pool   *pgxpool.Pool
	config Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewInbox creates an inbox backed by the given pool.
func NewInbox(pool *pgxpool.Pool, cfg Config, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Inbox{
		pool:   pool,
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ErrInProgress indicates another handler holds the key.
var ErrInProgress = errors.New("request in progress by another handler")

// HandlerFunc executes the guarded operation and returns a replayable result.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Outcome reports how a guarded request resolved.
type Outcome struct {
	Replayed bool
	Result   json.RawMessage
}

// Process runs fn exactly once per key. A finished entry replays its stored
// result; a stale STARTED entry older than the recovery timeout is retried;
// a fresh STARTED entry returns ErrInProgress.
func (i *Inbox) Process(ctx context.Context, key, handler string, payload json.RawMessage, fn HandlerFunc) (*Outcome, error) {
	entry, err := i.get(ctx, key)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check inbox: %w", err)
	}

	if entry != nil {
		switch entry.Status {
		case StatusFinished:
			return &Outcome{Replayed: true, Result: entry.Result}, nil
		case StatusFailed:
			return nil, fmt.Errorf("request previously failed permanently: %s", key)
		case StatusStarted:
			if time.Since(entry.UpdatedAt) < i.config.RecoveryTimeout {
				return nil, ErrInProgress
			}
			if err := i.setStatus(ctx, key, StatusRecoverable, nil); err != nil {
				return nil, fmt.Errorf("recover stale entry: %w", err)
			}
		}
	}

	if err := i.start(ctx, key, handler, payload); err != nil {
		return nil, fmt.Errorf("claim key: %w", err)
	}

	result, handlerErr := fn(ctx, payload)
	if handlerErr != nil {
		body, _ := json.Marshal(map[string]string{"error": handlerErr.Error()})
		if err := i.setStatus(ctx, key, StatusRecoverable, body); err != nil {
			i.logger.Error("failed to record handler error", zap.String("key", key), zap.Error(err))
		}
		return nil, handlerErr
	}

	if err := i.setStatus(ctx, key, StatusFinished, result); err != nil {
		// The handler succeeded; losing the record only costs replay.
		i.logger.Error("failed to mark finished", zap.String("key", key), zap.Error(err))
	}
	return &Outcome{Result: result}, nil
}

func (i *Inbox) get(ctx context.Context, key string) (*Entry, error) {
	query := `
		SELECT key, handler, status, payload, result, created_at, updated_at, expires_at
		FROM flush_inbox
		WHERE key = $1
	`
	e := &Entry{}
	err := i.pool.QueryRow(ctx, query, key).Scan(
		&e.Key, &e.Handler, &e.Status, &e.Payload, &e.Result,
		&e.CreatedAt, &e.UpdatedAt, &e.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (i *Inbox) start(ctx context.Context, key, handler string, payload json.RawMessage) error {
	query := `
		INSERT INTO flush_inbox (key, handler, status, payload, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE
		SET status = $3, updated_at = NOW()
		WHERE flush_inbox.status = 'RECOVERABLE'
		RETURNING key
	`
	var returned string
	err := i.pool.QueryRow(ctx, query, key, handler, StatusStarted, payload,
		time.Now().Add(i.config.TTL)).Scan(&returned)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInProgress
	}
	return err
}

func (i *Inbox) setStatus(ctx context.Context, key string, status Status, result json.RawMessage) error {
	query := `
		UPDATE flush_inbox
		SET status = $1, result = COALESCE($2, result), updated_at = NOW()
		WHERE key = $3
	`
	_, err := i.pool.Exec(ctx, query, status, result, key)
	return err
}

// StartCleanup launches the background purge of expired entries.
func (i *Inbox) StartCleanup() {
	go i.cleanupLoop()
}

// Stop halts the cleanup goroutine.
func (i *Inbox) Stop() {
	i.cancel()
	<-i.done
}

func (i *Inbox) cleanupLoop() {
	defer close(i.done)

	ticker := time.NewTicker(i.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.ctx.Done():
			return
		case <-ticker.C:
			res, err := i.pool.Exec(i.ctx, `DELETE FROM flush_inbox WHERE expires_at < NOW()`)
			if err != nil {
				i.logger.Error("inbox cleanup failed", zap.Error(err))
				continue
			}
			if res.RowsAffected() > 0 {
				i.logger.Info("inbox cleanup", zap.Int64("deleted", res.RowsAffected()))
			}
		}
	}
}
