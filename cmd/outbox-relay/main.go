// Package main provides the outbox relay entry point: it drains the
// transactional outbox into the event broker and sweeps exhausted entries
// to dead letter.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/clinidesk/go-rxpad/internal/config"
	"github.com/clinidesk/go-rxpad/internal/infrastructure/postgres"
	"github.com/clinidesk/go-rxpad/internal/infrastructure/redpanda"
	"github.com/clinidesk/go-rxpad/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	logger, _ := zap.NewProduction()
	if cfg.IsDev() {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx := context.Background()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("connected to database")

	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("admin client failed", zap.Error(err))
	}
	if err := admin.EnsureTopics(ctx); err != nil {
		logger.Fatal("topic provisioning failed", zap.Error(err))
	}
	admin.Close()

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers
	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()
	logger.Info("connected to broker", zap.Strings("brokers", cfg.KafkaBrokers))

	m := metrics.New()

	publisher := &countingPublisher{producer: producer, published: m.EventsPublished}
	outbox := postgres.NewOutbox(pool, publisher, postgres.DefaultOutboxConfig(), logger)
	outbox.Start()

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	go sweep(sweepCtx, outbox, m, logger)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancelSweep()
	outbox.Stop()
}

// countingPublisher counts successful publishes on the way to the broker.
type countingPublisher struct {
	producer  *redpanda.Producer
	published prometheus.Counter
}

func (p *countingPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	if err := p.producer.Publish(ctx, topic, key, value); err != nil {
		return err
	}
	p.published.Inc()
	return nil
}

// sweep periodically dead-letters exhausted entries, purges old processed
// rows and refreshes the backlog gauge.
func sweep(ctx context.Context, outbox *postgres.Outbox, m *metrics.Metrics, logger *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if moved, err := outbox.MoveToDeadLetter(ctx); err != nil {
				logger.Error("dead letter sweep failed", zap.Error(err))
			} else if moved > 0 {
				logger.Warn("entries dead-lettered", zap.Int64("count", moved))
			}
			if _, err := outbox.CleanupProcessed(ctx, 24*time.Hour); err != nil {
				logger.Error("cleanup failed", zap.Error(err))
			}
			if stats, err := outbox.GetStats(ctx); err == nil {
				m.OutboxPending.Set(float64(stats.Pending))
			}
		}
	}
}
