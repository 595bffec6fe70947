package engine

import (
	"context"
	"time"

	"github.com/shaiso/Taskflow/internal/domain"
)

// TaskEvent — результат выполнения одной task.
type TaskEvent struct {
	FlowID   string
	TaskID   string
	TaskType string
	State    domain.TaskState
	Duration time.Duration
}

// FlowEvent — результат выполнения flow.
type FlowEvent struct {
	FlowID   string
	State    domain.FlowState
	Duration time.Duration
	TasksRun int
}

// Observer получает события выполнения flow.
//
// Методы вызываются синхронно из горутины исполнения
// (TaskFinished может вызываться конкурентно при WithConcurrency > 1).
// Flow в это время держит блокировку на чтение: вызов Flow.Task, Flow.Tasks
// или методов Connection из наблюдателя может зависнуть, если ждёт
// структурное изменение flow.
type Observer interface {
	FlowStarted(ctx context.Context, flowID string)
	TaskFinished(ctx context.Context, ev TaskEvent)
	FlowFinished(ctx context.Context, ev FlowEvent)
}

// Observers объединяет несколько наблюдателей в один.
type Observers []Observer

// FlowStarted реализует Observer.
func (o Observers) FlowStarted(ctx context.Context, flowID string) {
	for _, obs := range o {
		obs.FlowStarted(ctx, flowID)
	}
}

// TaskFinished реализует Observer.
func (o Observers) TaskFinished(ctx context.Context, ev TaskEvent) {
	for _, obs := range o {
		obs.TaskFinished(ctx, ev)
	}
}

// FlowFinished реализует Observer.
func (o Observers) FlowFinished(ctx context.Context, ev FlowEvent) {
	for _, obs := range o {
		obs.FlowFinished(ctx, ev)
	}
}
