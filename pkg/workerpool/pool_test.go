package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPoolProcessesTasks(t *testing.T) {
	var processed int64
	pool, err := New(Config{Workers: 2, QueueSize: 10, MaxRetries: 0, ShutdownTimeout: time.Second},
		func(_ context.Context, _ *Task) error {
			atomic.AddInt64(&processed, 1)
			return nil
		}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	pool.Start()

	for i := 0; i < 5; i++ {
		if err := pool.Submit(&Task{ID: "t"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := pool.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&processed); got != 5 {
		t.Errorf("processed = %d, want 5", got)
	}
	if s := pool.Stats(); s.Completed != 5 || s.Failed != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestPoolRetriesThenFails(t *testing.T) {
	var attempts int64
	pool, err := New(Config{Workers: 1, QueueSize: 1, MaxRetries: 2, RetryDelay: time.Millisecond, ShutdownTimeout: time.Second},
		func(_ context.Context, _ *Task) error {
			atomic.AddInt64(&attempts, 1)
			return errors.New("boom")
		}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	pool.Start()
	if err := pool.Submit(&Task{ID: "t1"}); err != nil {
		t.Fatal(err)
	}
	if err := pool.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if s := pool.Stats(); s.Failed != 1 || s.Retried != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	block := make(chan struct{})
	pool, err := New(Config{Workers: 1, QueueSize: 1, ShutdownTimeout: time.Second},
		func(_ context.Context, _ *Task) error {
			<-block
			return nil
		}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	pool.Start()
	defer func() {
		close(block)
		pool.Stop()
	}()

	// First task occupies the worker, second fills the queue.
	pool.Submit(&Task{ID: "a"})
	time.Sleep(10 * time.Millisecond)
	pool.Submit(&Task{ID: "b"})

	if err := pool.Submit(&Task{ID: "c"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
}
