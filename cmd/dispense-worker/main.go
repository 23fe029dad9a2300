// Package main provides the dispense worker entry point: it consumes
// prescription events and reserves inventory stock for dispensing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clinidesk/go-rxpad/internal/config"
	"github.com/clinidesk/go-rxpad/internal/infrastructure/postgres"
	"github.com/clinidesk/go-rxpad/internal/infrastructure/redpanda"
	"github.com/clinidesk/go-rxpad/internal/observability/metrics"
	"github.com/clinidesk/go-rxpad/pkg/circuitbreaker"
	"github.com/clinidesk/go-rxpad/pkg/workerpool"
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

	m := metrics.New()
	inventory := postgres.NewInventoryRepo(pool, logger)

	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("inventory-db"), logger)
	if err != nil {
		logger.Fatal("breaker creation failed", zap.Error(err))
	}

	worker := &dispenseWorker{
		inventory: inventory,
		breaker:   breaker,
		metrics:   m,
		logger:    logger,
	}

	workers, err := workerpool.New(workerpool.DefaultConfig(), worker.process, logger)
	if err != nil {
		logger.Fatal("worker pool creation failed", zap.Error(err))
	}
	workers.Start()

	consumerCfg := redpanda.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.KafkaBrokers
	consumerCfg.Topics = []string{redpanda.TopicInventoryReserve, redpanda.TopicPrescriptionSaved}

	consumer, err := redpanda.NewConsumer(consumerCfg, worker.handle(workers), logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}
	consumer.Start()
	logger.Info("dispense worker started", zap.Strings("brokers", cfg.KafkaBrokers))

	// Drain pool results so failed reservations are visible.
	go func() {
		for result := range workers.Results() {
			if result.Success {
				continue
			}
			logger.Error("reservation abandoned",
				zap.String("prescription_id", result.TaskID),
				zap.Error(result.Error))
		}
	}()

	gaugeCtx, cancelGauge := context.WithCancel(ctx)
	go trackBreakerState(gaugeCtx, breaker, m)

	go serveMetrics(cfg.MetricsPort, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancelGauge()
	consumer.Stop()
	workers.Stop()
}

// trackBreakerState mirrors the breaker state into the prometheus gauge.
func trackBreakerState(ctx context.Context, breaker *circuitbreaker.Breaker, m *metrics.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var v float64
			switch breaker.State() {
			case circuitbreaker.StateOpen:
				v = 1
			case circuitbreaker.StateHalfOpen:
				v = 2
			}
			m.CircuitBreakerState.WithLabelValues("inventory-db").Set(v)
		}
	}
}

type dispenseWorker struct {
	inventory *postgres.InventoryRepo
	breaker   *circuitbreaker.Breaker
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// handle routes consumed events: reservation requests go to the pool,
// saved-prescription events only update counters.
func (w *dispenseWorker) handle(pool *workerpool.Pool) redpanda.MessageHandler {
	return func(_ context.Context, msg *redpanda.ConsumedMessage) error {
		w.metrics.EventsConsumed.Inc()

		if msg.Topic == redpanda.TopicPrescriptionSaved {
			var event redpanda.PrescriptionSavedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				w.logger.Warn("malformed saved event", zap.Error(err))
				return nil
			}
			w.logger.Debug("prescription saved",
				zap.String("prescription_id", event.PrescriptionID),
				zap.Int("medicines", event.MedicineCount))
			return nil
		}

		var event redpanda.InventoryReserveEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			// A malformed event would never parse; committing it keeps the
			// partition moving.
			w.logger.Warn("malformed reserve event", zap.Error(err))
			return nil
		}
		return pool.Submit(&workerpool.Task{
			ID:      event.PrescriptionID,
			Payload: &event,
		})
	}
}

// process applies one reservation request through the circuit breaker.
func (w *dispenseWorker) process(ctx context.Context, task *workerpool.Task) error {
	event, ok := task.Payload.(*redpanda.InventoryReserveEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", task.Payload)
	}

	for _, item := range event.Items {
		_, err := w.breaker.Execute(ctx, func() (any, error) {
			return nil, w.inventory.ReserveStock(ctx, item.StockItemID, item.Quantity)
		})
		if err != nil {
			return fmt.Errorf("reserve %s: %w", item.StockItemID, err)
		}
		w.metrics.StockReservations.Inc()
	}

	w.logger.Info("stock reserved",
		zap.String("prescription_id", event.PrescriptionID),
		zap.Int("items", len(event.Items)))
	return nil
}

func serveMetrics(port string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
