package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
	"github.com/shaiso/Taskflow/internal/mq"
	"github.com/shaiso/Taskflow/internal/steps"
)

// fakeRunner возвращает заданный результат и запоминает вызов.
type fakeRunner struct {
	state     domain.FlowState
	err       error
	flowID    string
	requestID string
	block     bool
}

func (r *fakeRunner) Execute(ctx context.Context, flowID string) (domain.FlowState, error) {
	r.flowID = flowID
	r.requestID = mq.RequestID(ctx)
	if r.block {
		<-ctx.Done()
		return domain.FlowStateCancelled, nil
	}
	return r.state, r.err
}

func executeDelivery(payload any) *mq.Delivery {
	return &mq.Delivery{Message: *mq.NewMessage(mq.MessageTypeFlowExecute, payload)}
}

func TestHandleExecute(t *testing.T) {
	tests := []struct {
		name      string
		runner    *fakeRunner
		payload   any
		wantErr   error
		permanent bool
	}{
		{
			name:    "success",
			runner:  &fakeRunner{state: domain.FlowStateSuccess},
			payload: mq.FlowExecutePayload{FlowID: "report", RequestID: "req-1"},
		},
		{
			name:    "failed flow is acked",
			runner:  &fakeRunner{state: domain.FlowStateFailed},
			payload: mq.FlowExecutePayload{FlowID: "report"},
		},
		{
			name:      "unknown flow",
			runner:    &fakeRunner{state: domain.FlowStateFailed, err: fmt.Errorf("%w: report", engine.ErrFlowNotFound)},
			payload:   mq.FlowExecutePayload{FlowID: "report"},
			wantErr:   engine.ErrFlowNotFound,
			permanent: true,
		},
		{
			name:      "empty flow id",
			runner:    &fakeRunner{},
			payload:   mq.FlowExecutePayload{},
			wantErr:   ErrInvalidRequest,
			permanent: true,
		},
		{
			name:      "malformed payload",
			runner:    &fakeRunner{},
			payload:   "not an object",
			wantErr:   ErrInvalidRequest,
			permanent: true,
		},
		{
			name:    "runner error is retried",
			runner:  &fakeRunner{err: errors.New("store unavailable")},
			payload: mq.FlowExecutePayload{FlowID: "report"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(Config{Runner: tt.runner})

			err := w.handleExecute(context.Background(), executeDelivery(tt.payload))

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.runner.err != nil:
				assert.ErrorIs(t, err, tt.runner.err)
			default:
				assert.NoError(t, err)
			}
			if err != nil {
				assert.Equal(t, tt.permanent, errors.Is(err, mq.ErrPermanent))
			}
		})
	}
}

func TestHandleExecute_RequestID(t *testing.T) {
	runner := &fakeRunner{state: domain.FlowStateSuccess}
	w := New(Config{Runner: runner})

	d := executeDelivery(mq.FlowExecutePayload{FlowID: "report", RequestID: "req-9"})
	require.NoError(t, w.handleExecute(context.Background(), d))
	assert.Equal(t, "report", runner.flowID)
	assert.Equal(t, "req-9", runner.requestID)

	// Без request_id используется ID сообщения
	d = executeDelivery(mq.FlowExecutePayload{FlowID: "report"})
	require.NoError(t, w.handleExecute(context.Background(), d))
	assert.Equal(t, d.Message.ID, runner.requestID)
}

func TestHandleExecute_InterruptedIsRequeued(t *testing.T) {
	w := New(Config{Runner: &fakeRunner{block: true}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.handleExecute(ctx, executeDelivery(mq.FlowExecutePayload{FlowID: "slow"}))
	assert.ErrorIs(t, err, ErrWorkerStopped)
	assert.False(t, errors.Is(err, mq.ErrPermanent))
}

func TestTrigger(t *testing.T) {
	w := New(Config{Runner: &fakeRunner{state: domain.FlowStateSuccess}})
	assert.NoError(t, w.Trigger(context.Background(), "report"))

	w = New(Config{Runner: &fakeRunner{state: domain.FlowStateCancelled}})
	err := w.Trigger(context.Background(), "report")
	assert.ErrorIs(t, err, ErrFlowFailed)
	assert.Contains(t, err.Error(), "Cancelled")
}

// TestTrigger_Manager — Trigger поверх настоящего engine.Manager.
func TestTrigger_Manager(t *testing.T) {
	manager := engine.NewManager(steps.DefaultRegistry())
	flow := manager.CreateFlow("greet")
	_, err := flow.CreateTask(manager.Registry(), steps.TypeConstant, "c", map[string]any{"value": 1})
	require.NoError(t, err)

	w := New(Config{Runner: manager})
	assert.NoError(t, w.Trigger(context.Background(), "greet"))
	assert.ErrorIs(t, w.Trigger(context.Background(), "missing"), engine.ErrFlowNotFound)
}

func TestWorker_ReloadLoop(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})

	w := New(Config{
		Runner: &fakeRunner{},
		Reload: func(context.Context) error {
			if calls.Add(1) == 2 {
				close(done)
			}
			return errors.New("first reload fails, loop continues")
		},
		ReloadInterval: 10 * time.Millisecond,
	})
	w.Start(context.Background())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reload not called twice")
	}

	w.Stop()
	assert.True(t, w.IsStopped())
}

func TestNew_Defaults(t *testing.T) {
	w := New(Config{Runner: &fakeRunner{}})
	assert.Equal(t, defaultPrefetch, w.prefetch)
	assert.NotNil(t, w.logger)

	// Без Conn и Reload Start/Stop не запускают горутин
	w.Start(context.Background())
	w.Stop()
}
