package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskflow/internal/domain"
)

// testTask — task для тестов с подсчётом вызовов Execute.
type testTask struct {
	*BaseTask
	calls atomic.Int32
	run   func(t *testTask, ctx context.Context) domain.TaskState

	mu       sync.Mutex
	observed map[string]any
}

func newTestTask(id string, run func(*testTask, context.Context) domain.TaskState) *testTask {
	t := &testTask{
		BaseTask: NewBaseTask("test"),
		run:      run,
		observed: make(map[string]any),
	}
	if id != "" {
		t.SetID(id)
	}
	return t
}

func (t *testTask) withInputs(names ...string) *testTask {
	for _, n := range names {
		t.AddInputPort(n)
	}
	return t
}

func (t *testTask) withOutputs(names ...string) *testTask {
	for _, n := range names {
		t.AddOutputPort(n)
	}
	return t
}

func (t *testTask) withParam(name string, v any) *testTask {
	t.AddParam(name, v)
	return t
}

func (t *testTask) Execute(ctx context.Context) domain.TaskState {
	t.calls.Add(1)
	if t.run == nil {
		return domain.TaskStateSuccess
	}
	return t.run(t, ctx)
}

func (t *testTask) Calls() int {
	return int(t.calls.Load())
}

func (t *testTask) record(name string, v any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observed[name] = v
}

func (t *testTask) Observed(name string) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observed[name]
}

// newProducer — пишет параметр value в out.
func newProducer(id string, value any) *testTask {
	return newTestTask(id, func(t *testTask, _ context.Context) domain.TaskState {
		v, _ := t.Param("value")
		t.SetOutputValue("out", v)
		return domain.TaskStateSuccess
	}).withOutputs("out").withParam("value", value)
}

// newSuffix — out = in + suffix.
func newSuffix(id, suffix string) *testTask {
	return newTestTask(id, func(t *testTask, _ context.Context) domain.TaskState {
		in := t.InputValue("in")
		t.record("in", in)
		t.SetOutputValue("out", fmt.Sprint(in)+t.ParamString("suffix"))
		return domain.TaskStateSuccess
	}).withInputs("in").withOutputs("out").withParam("suffix", suffix)
}

// newSink — запоминает значения всех input портов.
func newSink(id string, inputs ...string) *testTask {
	if len(inputs) == 0 {
		inputs = []string{"in"}
	}
	return newTestTask(id, func(t *testTask, _ context.Context) domain.TaskState {
		for _, p := range t.InputPorts() {
			t.record(p.Name(), p.Value())
		}
		return domain.TaskStateSuccess
	}).withInputs(inputs...)
}

// newStateTask — возвращает заданное состояние.
func newStateTask(id string, state domain.TaskState) *testTask {
	return newTestTask(id, func(*testTask, context.Context) domain.TaskState {
		return state
	}).withInputs("in").withOutputs("out")
}

func newTestRegistry() *Registry {
	reg := NewRegistry()
	reg.Register("producer", func() Task { return newProducer("", "") })
	reg.Register("suffix", func() Task { return newSuffix("", "") })
	reg.Register("sink", func() Task { return newSink("") })
	return reg
}

func mustAdd(t *testing.T, f *Flow, tasks ...Task) {
	t.Helper()
	for _, task := range tasks {
		require.NoError(t, f.AddTask(task))
	}
}

func mustConnect(t *testing.T, f *Flow, src, srcPort, tgt, tgtPort string) *Connection {
	t.Helper()
	c, err := f.Connect(src, srcPort, tgt, tgtPort)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

// recordingObserver собирает события выполнения.
type recordingObserver struct {
	mu      sync.Mutex
	started []string
	tasks   []TaskEvent
	flows   []FlowEvent
}

func (o *recordingObserver) FlowStarted(_ context.Context, flowID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, flowID)
}

func (o *recordingObserver) TaskFinished(_ context.Context, ev TaskEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tasks = append(o.tasks, ev)
}

func (o *recordingObserver) FlowFinished(_ context.Context, ev FlowEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flows = append(o.flows, ev)
}
