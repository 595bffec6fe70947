package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger запускает flow по расписанию.
type Trigger interface {
	Trigger(ctx context.Context, flowID string) error
}

// TriggerFunc — функция как Trigger.
type TriggerFunc func(ctx context.Context, flowID string) error

// Trigger реализует Trigger.
func (f TriggerFunc) Trigger(ctx context.Context, flowID string) error {
	return f(ctx, flowID)
}

// Scheduler запускает flows по cron-расписаниям.
//
// Запуск одного и того же flow не накладывается: если предыдущий запуск
// ещё идёт, очередной пропускается.
type Scheduler struct {
	cron    *cron.Cron
	trigger Trigger
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// Config — конфигурация Scheduler.
type Config struct {
	Trigger  Trigger
	Logger   *slog.Logger
	Location *time.Location // default: UTC
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		trigger: cfg.Trigger,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add регистрирует расписание. Повторный Add для flow заменяет расписание.
func (s *Scheduler) Add(e Entry) error {
	if err := ValidateCronExpr(e.Spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[e.FlowID]; ok {
		s.cron.Remove(prev)
	}

	flowID := e.FlowID
	id, err := s.cron.AddFunc(e.Spec, func() { s.Fire(s.ctx, flowID) })
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	s.entries[flowID] = id

	s.logger.Info("schedule added", "flow_id", flowID, "spec", e.Spec)
	return nil
}

// Remove удаляет расписание flow. Возвращает false, если его не было.
func (s *Scheduler) Remove(flowID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[flowID]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, flowID)
	return true
}

// Next возвращает время следующего запуска flow.
// Нулевое время — планировщик не запущен или расписания нет.
func (s *Scheduler) Next(flowID string) time.Time {
	s.mu.Lock()
	id, ok := s.entries[flowID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Len возвращает количество расписаний.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Fire запускает flow немедленно.
// Ошибка trigger логируется: следующий запуск пойдёт по расписанию.
func (s *Scheduler) Fire(ctx context.Context, flowID string) {
	start := time.Now()
	s.logger.Info("schedule fired", "flow_id", flowID)

	if err := s.trigger.Trigger(ctx, flowID); err != nil {
		s.logger.Error("scheduled run failed",
			"flow_id", flowID,
			"duration", time.Since(start),
			"error", err,
		)
		return
	}

	s.logger.Debug("scheduled run completed", "flow_id", flowID, "duration", time.Since(start))
}

// Start запускает планировщик в фоне.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", s.Len())
}

// Stop останавливает планировщик и ждёт завершения запущенных flows
// или отмены ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
	s.logger.Info("scheduler stopped")
}
