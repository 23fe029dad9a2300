// Package circuitbreaker shields the clinic services from failing
// downstream dependencies. Wraps sony/gobreaker with tracing and metrics.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// State is the externally visible breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config tunes one breaker.
type Config struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears counts periodically while closed.
	Interval time.Duration
	// Timeout is the open-to-half-open wait.
	Timeout time.Duration
	// FailureThreshold trips on consecutive failures below MinRequests.
	FailureThreshold uint32
	// FailureRatio trips once MinRequests have been seen.
	FailureRatio float64
	// MinRequests is the sample floor for the ratio check.
	MinRequests uint32
}

// DefaultConfig returns defaults sized for clinic database and broker calls.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      2,
		Interval:         60 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.5,
		MinRequests:      10,
	}
}

// Breaker wraps gobreaker with observability.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger
	tracer trace.Tracer

	requests  metric.Int64Counter
	failures  metric.Int64Counter
	successes metric.Int64Counter
	rejected  metric.Int64Counter

	stateMu sync.RWMutex
	state   State
}

// New creates a breaker.
func New(cfg Config, logger *zap.Logger) (*Breaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Breaker{
		name:   cfg.Name,
		logger: logger,
		tracer: otel.Tracer("circuit-breaker"),
		state:  StateClosed,
	}

	meter := otel.Meter("circuit-breaker")
	var err error
	if b.requests, err = meter.Int64Counter("circuit_breaker_requests_total",
		metric.WithDescription("Requests through the breaker")); err != nil {
		return nil, fmt.Errorf("create requests counter: %w", err)
	}
	if b.failures, err = meter.Int64Counter("circuit_breaker_failures_total",
		metric.WithDescription("Failed requests")); err != nil {
		return nil, fmt.Errorf("create failures counter: %w", err)
	}
	if b.successes, err = meter.Int64Counter("circuit_breaker_successes_total",
		metric.WithDescription("Successful requests")); err != nil {
		return nil, fmt.Errorf("create successes counter: %w", err)
	}
	if b.rejected, err = meter.Int64Counter("circuit_breaker_rejected_total",
		metric.WithDescription("Requests rejected while open")); err != nil {
		return nil, fmt.Errorf("create rejected counter: %w", err)
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			b.onStateChange(from, to)
		},
	})
	return b, nil
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	ctx, span := b.tracer.Start(ctx, "circuit_breaker_execute",
		trace.WithAttributes(
			attribute.String("breaker", b.name),
			attribute.String("state", string(b.State())),
		))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("name", b.name))
	b.requests.Add(ctx, 1, attrs)

	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.rejected.Add(ctx, 1, attrs)
			span.SetAttributes(attribute.Bool("circuit_open", true))
		} else {
			b.failures.Add(ctx, 1, attrs)
		}
		span.RecordError(err)
		return nil, err
	}
	b.successes.Add(ctx, 1, attrs)
	return result, nil
}

// ExecuteWithFallback runs fn, deferring to fallback while the circuit
// rejects traffic.
func (b *Breaker) ExecuteWithFallback(ctx context.Context, fn func() (any, error), fallback func(error) (any, error)) (any, error) {
	result, err := b.Execute(ctx, fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.logger.Warn("circuit open, using fallback",
				zap.String("breaker", b.name),
				zap.Error(err))
			return fallback(err)
		}
		return nil, err
	}
	return result, nil
}

// State returns the current state.
func (b *Breaker) State() State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// IsOpen reports whether the circuit is rejecting traffic.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Counts exposes the underlying gobreaker counters.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

func (b *Breaker) onStateChange(from, to gobreaker.State) {
	b.stateMu.Lock()
	b.state = mapState(to)
	b.stateMu.Unlock()

	b.logger.Warn("circuit breaker state changed",
		zap.String("breaker", b.name),
		zap.String("from", string(mapState(from))),
		zap.String("to", string(mapState(to))))
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
