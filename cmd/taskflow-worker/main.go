// Taskflow Worker — выполняет flows.
//
// Worker:
//   - Получает запросы flow.execute из RabbitMQ
//   - Выполняет flows по cron расписанию (TASKFLOW_SCHEDULES)
//   - Публикует flow.finished и task.finished
//   - Периодически перечитывает flows из хранилища
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Taskflow/internal/engine"
	"github.com/shaiso/Taskflow/internal/mq"
	"github.com/shaiso/Taskflow/internal/repo"
	"github.com/shaiso/Taskflow/internal/scheduler"
	"github.com/shaiso/Taskflow/internal/steps"
	"github.com/shaiso/Taskflow/internal/telemetry"
	"github.com/shaiso/Taskflow/internal/worker"
)

const defaultReloadInterval = 30 * time.Second

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting taskflow-worker")

	// graceful shutdown
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

	// RabbitMQ
	mqConn, err := mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in schedule-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
	}

	flowOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithObserver(telemetry.NewMetrics(prometheus.DefaultRegisterer)),
	}
	if mqConn != nil {
		events := mq.NewEventPublisher(mq.NewPublisher(mqConn, logger), logger, envBool("TASKFLOW_TASK_EVENTS"))
		flowOpts = append(flowOpts, engine.WithObserver(events))
	}
	if n := envInt("TASKFLOW_CONCURRENCY"); n > 0 {
		flowOpts = append(flowOpts, engine.WithConcurrency(n))
	}

	manager := engine.NewManager(steps.DefaultRegistry(),
		engine.WithManagerLogger(logger),
		engine.WithFlowRegistry(steps.DefaultFlowRegistry()),
		engine.WithFlowOptions(flowOpts...),
	)
	if err := manager.Load(ctx, store); err != nil {
		logger.Error("failed to load flows", "error", err)
		os.Exit(1)
	}

	reloadInterval := defaultReloadInterval
	if v := os.Getenv("TASKFLOW_RELOAD_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid TASKFLOW_RELOAD_INTERVAL", "value", v, "error", err)
			os.Exit(1)
		}
		reloadInterval = d
	}

	w := worker.New(worker.Config{
		Runner:   manager,
		Conn:     mqConn,
		Prefetch: envInt("WORKER_PREFETCH"),
		Reload: func(ctx context.Context) error {
			return manager.Load(ctx, store)
		},
		ReloadInterval: reloadInterval,
		Logger:         logger,
	})
	w.Start(ctx)

	// Расписания
	sched := scheduler.New(scheduler.Config{Trigger: w, Logger: logger})
	entries, err := scheduler.ParseEntries(os.Getenv("TASKFLOW_SCHEDULES"))
	if err != nil {
		logger.Error("invalid TASKFLOW_SCHEDULES", "error", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if err := sched.Add(e); err != nil {
			logger.Error("failed to add schedule", "flow_id", e.FlowID, "error", err)
			os.Exit(1)
		}
	}
	sched.Start()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if w.IsStopped() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	server := &http.Server{
		Addr:              port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	sched.Stop(shutdownCtx)
	w.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("taskflow-worker stopped")
}

// envInt читает целое из переменной окружения; 0 — не задано или не число.
func envInt(key string) int {
	n, _ := strconv.Atoi(os.Getenv(key))
	return n
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}
