// Package workerpool provides a bounded worker pool with retries, used to
// process stock reservations without overwhelming the database.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of work.
type Task struct {
	ID      string
	Payload any
	Context context.Context
}

// Result is the outcome of one task.
type Result struct {
	TaskID  string
	Success bool
	Error   error
}

// WorkerFunc processes one task. A returned error triggers a retry.
type WorkerFunc func(ctx context.Context, task *Task) error

// Config tunes the pool.
type Config struct {
	Workers   int
	QueueSize int
	// MaxRetries bounds retries per task.
	MaxRetries int
	// RetryDelay is the base backoff; it grows linearly per attempt.
	RetryDelay time.Duration
	// ShutdownTimeout bounds how long Stop waits for in-flight tasks.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for clinic dispensing volume.
func DefaultConfig() Config {
	return Config{
		Workers:         8,
		QueueSize:       256,
		MaxRetries:      3,
		RetryDelay:      200 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
	}
}

// ErrQueueFull is returned when Submit cannot buffer the task.
var ErrQueueFull = errors.New("task queue is full")

// Pool runs tasks on a fixed set of workers.
type Pool struct {
	config Config
	fn     WorkerFunc
	logger *zap.Logger

	tasks   chan *Task
	results chan *Result
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	submitted int64
	completed int64
	failed    int64
	retried   int64
	active    int64
	depth     int64
}

// New creates a pool; Start launches the workers.
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, errors.New("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config:  cfg,
		fn:      fn,
		logger:  logger,
		tasks:   make(chan *Task, cfg.QueueSize),
		results: make(chan *Result, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit queues a task without blocking.
func (p *Pool) Submit(task *Task) error {
	select {
	case <-p.ctx.Done():
		return errors.New("pool is shutting down")
	default:
	}

	select {
	case p.tasks <- task:
		atomic.AddInt64(&p.submitted, 1)
		atomic.AddInt64(&p.depth, 1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Results exposes task outcomes for async consumers.
func (p *Pool) Results() <-chan *Result {
	return p.results
}

// Stop drains queued tasks and shuts the workers down.
func (p *Pool) Stop() error {
	p.logger.Info("stopping worker pool")
	p.cancel()
	close(p.tasks)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
	}
	close(p.results)
	return nil
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	for task := range p.tasks {
		atomic.AddInt64(&p.depth, -1)
		p.process(id, task)
	}
}

func (p *Pool) process(workerID int, task *Task) {
	ctx := task.Context
	if ctx == nil {
		ctx = p.ctx
	}

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		if lastErr = p.fn(ctx, task); lastErr == nil {
			atomic.AddInt64(&p.completed, 1)
			p.emit(&Result{TaskID: task.ID, Success: true})
			return
		}
		if attempt < p.config.MaxRetries {
			atomic.AddInt64(&p.retried, 1)
			p.logger.Debug("retrying task",
				zap.String("task_id", task.ID),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(p.config.RetryDelay * time.Duration(attempt+1)):
				continue
			}
			break
		}
	}

	atomic.AddInt64(&p.failed, 1)
	err := fmt.Errorf("task failed after %d attempts: %w", p.config.MaxRetries+1, lastErr)
	p.logger.Error("task failed",
		zap.String("task_id", task.ID),
		zap.Int("worker_id", workerID),
		zap.Error(err))
	p.emit(&Result{TaskID: task.ID, Error: err})
}

func (p *Pool) emit(r *Result) {
	select {
	case p.results <- r:
	default:
		p.logger.Warn("result channel full, dropping result",
			zap.String("task_id", r.TaskID))
	}
}

// Stats holds pool counters.
type Stats struct {
	Submitted     int64
	Completed     int64
	Failed        int64
	Retried       int64
	ActiveWorkers int64
	QueueDepth    int64
	QueueCapacity int
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted:     atomic.LoadInt64(&p.submitted),
		Completed:     atomic.LoadInt64(&p.completed),
		Failed:        atomic.LoadInt64(&p.failed),
		Retried:       atomic.LoadInt64(&p.retried),
		ActiveWorkers: atomic.LoadInt64(&p.active),
		QueueDepth:    atomic.LoadInt64(&p.depth),
		QueueCapacity: p.config.QueueSize,
	}
}
