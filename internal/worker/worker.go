package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/mq"
)

// Значения по умолчанию.
const (
	defaultPrefetch = 1
)

// Runner выполняет flow по ID.
// Реализация: *engine.Manager.
type Runner interface {
	Execute(ctx context.Context, flowID string) (domain.FlowState, error)
}

// ReloadFunc перечитывает flows из хранилища.
type ReloadFunc func(ctx context.Context) error

// Worker выполняет flows по запросам из очереди flows.execute.
//
// Дополнительно:
//   - периодически перечитывает flows из хранилища (ReloadInterval),
//     чтобы подхватить изменения, сделанные через API
//   - реализует scheduler.Trigger для запусков по расписанию
//
// Несколько экземпляров могут потреблять из одной очереди.
type Worker struct {
	runner   Runner
	reload   ReloadFunc
	conn     *mq.Connection
	prefetch int

	reloadInterval time.Duration

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	stoppedMu sync.RWMutex
	stopped   bool
}

// Config — конфигурация Worker.
type Config struct {
	// Runner — исполнитель flows (обязателен).
	Runner Runner

	// Conn — соединение RabbitMQ. nil — consumer не запускается.
	Conn *mq.Connection

	// Prefetch — сколько запросов обрабатывается одновременно (default: 1).
	Prefetch int

	// Reload и ReloadInterval — периодическое перечитывание flows.
	// Reload == nil или ReloadInterval <= 0 — выключено.
	Reload         ReloadFunc
	ReloadInterval time.Duration

	Logger *slog.Logger
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	return &Worker{
		runner:         cfg.Runner,
		reload:         cfg.Reload,
		conn:           cfg.Conn,
		prefetch:       prefetch,
		reloadInterval: cfg.ReloadInterval,
		logger:         logger.With("component", "worker"),
	}
}

// Start запускает consumer flows.execute и цикл перечитывания flows.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"prefetch", w.prefetch,
		"reload_interval", w.reloadInterval,
	)

	if w.conn != nil {
		consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueFlowsExecute),
			Handler:  w.handleExecute,
			Prefetch: w.prefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("execute consumer error", "error", err)
			}
		}()
	}

	if w.reload != nil && w.reloadInterval > 0 {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.reloadLoop(ctx)
		}()
	}

	w.logger.Info("worker started")
}

// Stop останавливает Worker и ждёт завершения горутин.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// reloadLoop перечитывает flows с интервалом.
func (w *Worker) reloadLoop(ctx context.Context) {
	ticker := time.NewTicker(w.reloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.reload(ctx); err != nil {
				// Текущие flows остаются в силе
				w.logger.Error("failed to reload flows", "error", err)
				continue
			}
			w.logger.Debug("flows reloaded")
		}
	}
}
