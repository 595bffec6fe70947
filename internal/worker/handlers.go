package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
	"github.com/shaiso/Taskflow/internal/mq"
)

// handleExecute обрабатывает сообщение flow.execute.
//
// Результат flow (в том числе Failed) подтверждает сообщение: событие
// flow.finished публикует mq.EventPublisher. Неизвестный flow и битый
// payload уходят в DLQ. Прерванное остановкой выполнение возвращается
// в очередь.
func (w *Worker) handleExecute(ctx context.Context, d *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.FlowExecutePayload](&d.Message)
	if err != nil {
		return fmt.Errorf("%w: %w: %v", mq.ErrPermanent, ErrInvalidRequest, err)
	}
	if payload.FlowID == "" {
		return fmt.Errorf("%w: %w: empty flow_id", mq.ErrPermanent, ErrInvalidRequest)
	}

	requestID := payload.RequestID
	if requestID == "" {
		requestID = d.Message.ID
	}
	ctx = mq.WithRequestID(ctx, requestID)

	state, err := w.run(ctx, payload.FlowID, requestID)
	if err != nil {
		if errors.Is(err, engine.ErrFlowNotFound) {
			return fmt.Errorf("%w: %w", mq.ErrPermanent, err)
		}
		return err
	}

	if state == domain.FlowStateCancelled && ctx.Err() != nil {
		return fmt.Errorf("%w: flow %s interrupted", ErrWorkerStopped, payload.FlowID)
	}
	return nil
}

// Trigger выполняет flow по расписанию (scheduler.Trigger).
func (w *Worker) Trigger(ctx context.Context, flowID string) error {
	state, err := w.run(ctx, flowID, "")
	if err != nil {
		return err
	}
	if !state.IsSuccess() {
		return fmt.Errorf("%w: %s: %s", ErrFlowFailed, flowID, state)
	}
	return nil
}

// run выполняет flow и логирует результат.
func (w *Worker) run(ctx context.Context, flowID, requestID string) (domain.FlowState, error) {
	start := time.Now()
	w.logger.Info("flow started", "flow_id", flowID, "request_id", requestID)

	state, err := w.runner.Execute(ctx, flowID)
	if err != nil {
		w.logger.Warn("flow not executed", "flow_id", flowID, "request_id", requestID, "error", err)
		return state, err
	}

	w.logger.Info("flow finished",
		"flow_id", flowID,
		"request_id", requestID,
		"state", state,
		"duration", time.Since(start),
	)
	return state, nil
}
