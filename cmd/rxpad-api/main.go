// Package main provides the prescription pad API entry point.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/clinidesk/go-rxpad/internal/api/handlers"
	"github.com/clinidesk/go-rxpad/internal/api/middleware"
	"github.com/clinidesk/go-rxpad/internal/config"
	"github.com/clinidesk/go-rxpad/internal/infrastructure/postgres"
	"github.com/clinidesk/go-rxpad/internal/observability/metrics"
	"github.com/clinidesk/go-rxpad/internal/observability/tracing"
	"github.com/clinidesk/go-rxpad/internal/session"
	"github.com/clinidesk/go-rxpad/pkg/idempotency"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	ctx := context.Background()

	tracerCfg := tracing.DefaultConfig("rxpad-api")
	tracerCfg.OTLPEndpoint = cfg.OTLPEndpoint
	tracerCfg.Environment = cfg.Env
	tp, err := tracing.Init(ctx, tracerCfg)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("connected to database")

	m := metrics.New()

	patientRepo := postgres.NewPatientRepo(pool, logger)
	prescriptionRepo := postgres.NewPrescriptionRepo(pool, logger)
	appointmentRepo := postgres.NewAppointmentRepo(pool, logger)
	inventoryRepo := postgres.NewInventoryRepo(pool, logger)
	procedureRepo := postgres.NewProcedureRepo(pool)

	inbox := idempotency.NewInbox(pool, idempotency.DefaultConfig(), logger)
	inbox.StartCleanup()
	defer inbox.Stop()

	manager := session.NewManager(logger)
	service := session.NewService(patientRepo, prescriptionRepo, appointmentRepo, logger)

	sessionHandler := handlers.NewSessionHandler(manager, service, appointmentRepo, inbox, m, logger)
	catalogHandler := handlers.NewCatalogHandler(patientRepo, prescriptionRepo, inventoryRepo, procedureRepo, logger)
	dosageHandler := &handlers.DosageHandler{}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("rxpad-api"))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKey))
		r.Mount("/sessions", sessionHandler.Routes())
		r.Mount("/dosage", dosageHandler.Routes())
		r.Mount("/", catalogHandler.Routes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting prescription pad API", zap.String("port", cfg.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) *zap.Logger {
	var logger *zap.Logger
	var err error
	if cfg.IsDev() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger
}
