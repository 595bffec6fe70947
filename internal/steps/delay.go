package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
)

const (
	// TypeDelay — task задержки.
	TypeDelay = "delay"

	// Параметры delay.
	paramDurationSec = "duration_sec"
	paramDurationMs  = "duration_ms"
)

// DelayTask приостанавливает выполнение на заданное время
// и передаёт in в out.
//
// Отмена ctx прерывает ожидание, task возвращает TaskStateCancelled.
//
// Параметры:
//
//	{
//	    "duration_sec": 10,    // задержка в секундах
//	    // или
//	    "duration_ms": 5000    // задержка в миллисекундах
//	}
type DelayTask struct {
	*engine.BaseTask
}

// NewDelayTask создаёт DelayTask.
func NewDelayTask() *DelayTask {
	t := &DelayTask{BaseTask: engine.NewBaseTask(TypeDelay)}
	t.AddInputPort(PortIn)
	t.AddOutputPort(PortOut)
	t.AddOutputPort("duration_ms", domain.ValueTypeNumber)
	t.AddOutputPort(PortError, domain.ValueTypeString)
	return t
}

// Execute реализует engine.Task.
func (t *DelayTask) Execute(ctx context.Context) domain.TaskState {
	duration, err := t.duration()
	if err != nil {
		return fail(t.BaseTask, err)
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return cancelled(t.BaseTask, ctx.Err())
	case <-timer.C:
		t.SetOutputValue(PortOut, t.InputValue(PortIn))
		t.SetOutputValue("duration_ms", duration.Milliseconds())
		return domain.TaskStateSuccess
	}
}

// duration извлекает длительность из параметров.
func (t *DelayTask) duration() (time.Duration, error) {
	// Сначала проверяем duration_sec
	if sec := t.ParamInt(paramDurationSec); sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}

	if ms := t.ParamInt(paramDurationMs); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}

	return 0, fmt.Errorf("%w: %s: duration_sec or duration_ms required",
		ErrInvalidConfig, TypeDelay)
}
