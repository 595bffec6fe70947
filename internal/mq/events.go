package mq

import (
	"context"
	"log/slog"

	"github.com/shaiso/Taskflow/internal/engine"
)

type requestIDKey struct{}

// WithRequestID сохраняет ID запроса в контексте выполнения.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID возвращает ID запроса из контекста или пустую строку.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

var _ engine.Observer = (*EventPublisher)(nil)

// EventPublisher публикует результаты flows и tasks в taskflow.flows.
// Ошибки публикации логируются и не влияют на выполнение.
type EventPublisher struct {
	pub        MessagePublisher
	logger     *slog.Logger
	taskEvents bool
}

// NewEventPublisher создаёт EventPublisher.
// taskEvents включает публикацию task.finished для каждой task.
func NewEventPublisher(pub MessagePublisher, logger *slog.Logger, taskEvents bool) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{pub: pub, logger: logger, taskEvents: taskEvents}
}

// FlowStarted реализует engine.Observer.
func (p *EventPublisher) FlowStarted(context.Context, string) {}

// TaskFinished публикует task.finished.
func (p *EventPublisher) TaskFinished(ctx context.Context, ev engine.TaskEvent) {
	if !p.taskEvents {
		return
	}
	p.publish(ctx, RoutingKeyTaskFinished, NewMessage(MessageTypeTaskFinished, TaskFinishedPayload{
		FlowID:     ev.FlowID,
		RequestID:  RequestID(ctx),
		TaskID:     ev.TaskID,
		TaskType:   ev.TaskType,
		State:      ev.State.String(),
		DurationMs: ev.Duration.Milliseconds(),
	}))
}

// FlowFinished публикует flow.finished.
func (p *EventPublisher) FlowFinished(ctx context.Context, ev engine.FlowEvent) {
	p.publish(ctx, RoutingKeyFlowFinished, NewMessage(MessageTypeFlowFinished, FlowFinishedPayload{
		FlowID:     ev.FlowID,
		RequestID:  RequestID(ctx),
		State:      ev.State.String(),
		TasksRun:   ev.TasksRun,
		DurationMs: ev.Duration.Milliseconds(),
	}))
}

func (p *EventPublisher) publish(ctx context.Context, key RoutingKey, msg *Message) {
	// Результат публикуется и после отмены выполнения
	ctx = context.WithoutCancel(ctx)
	if err := p.pub.Publish(ctx, ExchangeFlows, key, msg); err != nil {
		p.logger.Warn("failed to publish event",
			"routing_key", key,
			"message_id", msg.ID,
			"error", err,
		)
	}
}
