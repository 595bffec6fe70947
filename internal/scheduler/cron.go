package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule — некорректная запись расписания.
var ErrInvalidSchedule = errors.New("invalid schedule")

// cronParser — стандартные 5 полей, дескрипторы (@hourly, @every 5m) и CRON_TZ=.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Entry — расписание запуска одного flow.
type Entry struct {
	FlowID string
	Spec   string
}

// ValidateCronExpr проверяет cron-выражение.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("%w: cron expression %q: %v", ErrInvalidSchedule, expr, err)
	}
	return nil
}

// NextRun возвращает следующее время запуска после from (в UTC).
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cron expression %q: %v", ErrInvalidSchedule, expr, err)
	}
	return sched.Next(from).UTC(), nil
}

// ParseEntries разбирает TASKFLOW_SCHEDULES: "flowID=cronexpr;flowID=cronexpr".
// Пустые элементы пропускаются.
func ParseEntries(s string) ([]Entry, error) {
	var entries []Entry
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		flowID, spec, ok := strings.Cut(item, "=")
		flowID, spec = strings.TrimSpace(flowID), strings.TrimSpace(spec)
		if !ok || flowID == "" || spec == "" {
			return nil, fmt.Errorf("%w: %q: want flowID=cronexpr", ErrInvalidSchedule, item)
		}
		if err := ValidateCronExpr(spec); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{FlowID: flowID, Spec: spec})
	}
	return entries, nil
}

// cronLogger адаптирует slog к cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
