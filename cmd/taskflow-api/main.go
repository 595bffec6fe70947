// Taskflow API — HTTP API для управления flows.
//
// API:
//   - Загружает коллекцию flows из хранилища (TASKFLOW_STORE)
//   - Сохраняет изменения после PUT/DELETE
//   - Выполняет flows синхронно или публикует запрос в flows.execute
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Taskflow/internal/api"
	"github.com/shaiso/Taskflow/internal/engine"
	"github.com/shaiso/Taskflow/internal/mq"
	"github.com/shaiso/Taskflow/internal/repo"
	"github.com/shaiso/Taskflow/internal/steps"
	"github.com/shaiso/Taskflow/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskflow_api_http_requests_total",
		Help: "Total HTTP requests handled by taskflow_api",
	})
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting taskflow-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Хранилище flows
	storeCfg := repo.ConfigFromEnv()
	store, closeStore, err := repo.Open(ctx, storeCfg)
	if err != nil {
		logger.Error("failed to open store", "kind", storeCfg.Kind, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	logger.Info("store opened", "kind", storeCfg.Kind)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	manager := engine.NewManager(steps.DefaultRegistry(),
		engine.WithManagerLogger(logger),
		engine.WithFlowRegistry(steps.DefaultFlowRegistry()),
		engine.WithFlowOptions(
			engine.WithLogger(logger),
			engine.WithObserver(metrics),
		),
	)
	if err := manager.Load(ctx, store); err != nil {
		logger.Error("failed to load flows", "error", err)
		os.Exit(1)
	}

	cfg := api.Config{
		Manager: manager,
		Store:   store,
		Logger:  logger,
	}

	// RabbitMQ нужен только для ?async=true
	mqConn, err := mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, async execution disabled", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		cfg.Publisher = mq.NewPublisher(mqConn, logger)
		logger.Info("RabbitMQ connected")
	}

	handler := api.NewHandler(cfg)

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	manager.Clear()
	logger.Info("stopped")
}
