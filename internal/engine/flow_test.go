package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskflow/internal/domain"
)

func TestNewFlow_GeneratesID(t *testing.T) {
	f := NewFlow("")
	assert.True(t, strings.HasPrefix(f.ID(), "flow_"))
	assert.Equal(t, TypeCheckWarn, f.TypePolicy())

	assert.Equal(t, "custom", NewFlow("custom").ID())
}

func TestFlow_AddTaskRejections(t *testing.T) {
	f := NewFlow("f")

	assert.ErrorIs(t, f.AddTask(nil), ErrNilTask)

	var typedNil *testTask
	assert.ErrorIs(t, f.AddTask(typedNil), ErrNilTask)

	noID := newSink("")
	noID.SetID("")
	assert.ErrorIs(t, f.AddTask(noID), ErrEmptyTaskID)

	require.NoError(t, f.AddTask(newSink("a")))
	assert.ErrorIs(t, f.AddTask(newSink("a")), ErrDuplicateTask)

	// Task другого flow не переходит во владение
	other := NewFlow("other")
	owned := newSink("owned")
	require.NoError(t, other.AddTask(owned))
	assert.ErrorIs(t, f.AddTask(owned), ErrTaskOwned)

	assert.Equal(t, []string{"a"}, f.TaskIDs())
}

func TestFlow_CreateTask(t *testing.T) {
	f := NewFlow("f")
	reg := newTestRegistry()

	task, err := f.CreateTask(reg, "producer", "p1", map[string]any{"value": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "p1", task.ID())
	assert.Equal(t, "producer", task.Type())
	assert.True(t, f.HasTask("p1"))

	_, err = f.CreateTask(reg, "missing", "", nil)
	assert.ErrorIs(t, err, ErrUnknownTaskType)

	_, err = f.CreateTask(nil, "producer", "", nil)
	assert.ErrorIs(t, err, ErrNilRegistry)
}

func TestFlow_AddConnectionRejections(t *testing.T) {
	f := NewFlow("f")
	a := newProducer("a", "v")
	b := newSink("b")
	c := newSink("c")
	self := newStateTask("self", domain.TaskStateSuccess)
	mustAdd(t, f, a, b, self)

	_, err := f.AddConnection(nil, b.InputPort("in"))
	assert.ErrorIs(t, err, ErrNilPort)

	_, err = f.AddConnection(b.InputPort("in"), a.OutputPort("out"))
	assert.ErrorIs(t, err, ErrPortDirection)

	// c не добавлена во flow
	_, err = f.AddConnection(a.OutputPort("out"), c.InputPort("in"))
	assert.ErrorIs(t, err, ErrTaskNotInFlow)

	_, err = f.AddConnection(self.OutputPort("out"), self.InputPort("in"))
	assert.ErrorIs(t, err, ErrSelfConnection)

	_, err = f.Connect("a", "missing", "b", "in")
	assert.ErrorIs(t, err, ErrPortNotFound)

	_, err = f.Connect("ghost", "out", "b", "in")
	assert.ErrorIs(t, err, ErrTaskNotInFlow)

	assert.Empty(t, f.Connections())
}

func TestFlow_DuplicateConnectionReturnsExisting(t *testing.T) {
	f := NewFlow("f")
	mustAdd(t, f, newProducer("a", "v"), newSink("b"))

	first := mustConnect(t, f, "a", "out", "b", "in")
	second := mustConnect(t, f, "a", "out", "b", "in")

	assert.Same(t, first, second)
	assert.Len(t, f.Connections(), 1)
}

func TestFlow_SingleWriterRejectsSecondConnection(t *testing.T) {
	f := NewFlow("f")
	a := newProducer("a", "from_a")
	b := newProducer("b", "from_b")
	sink := newSink("sink")
	mustAdd(t, f, a, b, sink)

	first := mustConnect(t, f, "a", "out", "sink", "in")

	_, err := f.Connect("b", "out", "sink", "in")
	require.ErrorIs(t, err, ErrInputOccupied)

	// Первая связь не перезаписана
	assert.Same(t, first, sink.InputPort("in").Connection())
	assert.Len(t, f.Connections(), 1)

	require.Equal(t, domain.FlowStateSuccess, f.Execute(context.Background()))
	assert.Equal(t, "from_a", sink.Observed("in"))
}

func TestFlow_StrictTypePolicy(t *testing.T) {
	f := NewFlow("f", WithTypePolicy(TypeCheckStrict))

	num := newTestTask("num", nil)
	num.AddOutputPort("out", domain.ValueTypeNumber)
	str := newTestTask("str", nil)
	str.AddInputPort("in", domain.ValueTypeString)
	mustAdd(t, f, num, str)

	_, err := f.Connect("num", "out", "str", "in")
	assert.ErrorIs(t, err, ErrIncompatibleTypes)
	assert.Empty(t, f.Connections())
}

func TestFlow_RemoveTaskCascades(t *testing.T) {
	f := NewFlow("f")
	a := newProducer("a", "v")
	b := newSuffix("b", "_b")
	c := newSink("c")
	mustAdd(t, f, a, b, c)
	ab := mustConnect(t, f, "a", "out", "b", "in")
	bc := mustConnect(t, f, "b", "out", "c", "in")

	require.True(t, f.RemoveTask("b"))
	assert.False(t, f.RemoveTask("b"))

	assert.Empty(t, f.Connections())
	assert.False(t, ab.IsValid())
	assert.False(t, bc.IsValid())
	assert.False(t, a.OutputPort("out").HasConnection())
	assert.False(t, c.InputPort("in").HasConnection())

	// Ни одна связь не ссылается на отсутствующую task
	for _, conn := range f.Connections() {
		assert.True(t, f.HasTask(conn.Source().TaskID))
		assert.True(t, f.HasTask(conn.Target().TaskID))
	}
}

func TestFlow_ScenarioLinearChain(t *testing.T) {
	f := NewFlow("linear")
	producer := newProducer("producer", "first_value")
	transform := newSuffix("transform", "_processed")
	consumer := newSink("consumer")
	mustAdd(t, f, producer, transform, consumer)
	mustConnect(t, f, "producer", "out", "transform", "in")
	mustConnect(t, f, "transform", "out", "consumer", "in")

	state := f.Execute(context.Background())

	assert.Equal(t, domain.FlowStateSuccess, state)
	assert.Equal(t, "first_value_processed", consumer.Observed("in"))
	assert.Equal(t, 1, producer.Calls())
	assert.Equal(t, 1, transform.Calls())
	assert.Equal(t, 1, consumer.Calls())
}

func TestFlow_ScenarioCycleRunsNothing(t *testing.T) {
	f := NewFlow("cycle")
	a := newStateTask("A", domain.TaskStateSuccess)
	b := newStateTask("B", domain.TaskStateSuccess)
	c := newStateTask("C", domain.TaskStateSuccess)
	mustAdd(t, f, a, b, c)
	mustConnect(t, f, "A", "out", "B", "in")
	mustConnect(t, f, "B", "out", "C", "in")
	mustConnect(t, f, "C", "out", "A", "in")

	assert.True(t, f.HasCycle())
	assert.ErrorIs(t, f.Validate(), ErrCyclicDependency)

	_, err := f.ExecutionOrder()
	assert.ErrorIs(t, err, ErrCyclicDependency)

	assert.Equal(t, domain.FlowStateFailed, f.Execute(context.Background()))
	assert.Equal(t, 0, a.Calls())
	assert.Equal(t, 0, b.Calls())
	assert.Equal(t, 0, c.Calls())
}

func buildDiamond(t *testing.T, opts ...Option) (*Flow, *testTask) {
	t.Helper()

	f := NewFlow("diamond", opts...)
	a := newProducer("A", "x")
	b := newSuffix("B", "_b")
	c := newSuffix("C", "_c")
	d := newSink("D", "left", "right")
	mustAdd(t, f, a, b, c, d)
	mustConnect(t, f, "A", "out", "B", "in")
	mustConnect(t, f, "A", "out", "C", "in")
	mustConnect(t, f, "B", "out", "D", "left")
	mustConnect(t, f, "C", "out", "D", "right")
	return f, d
}

func TestFlow_ScenarioDiamond(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		f, d := buildDiamond(t, WithConcurrency(concurrency))

		require.Equal(t, domain.FlowStateSuccess, f.Execute(context.Background()), "concurrency %d", concurrency)
		assert.Equal(t, "x_b", d.Observed("left"))
		assert.Equal(t, "x_c", d.Observed("right"))
	}
}

func TestFlow_ExecutionLayers(t *testing.T) {
	f, _ := buildDiamond(t)

	layers, err := f.ExecutionLayers()
	require.NoError(t, err)
	require.Len(t, layers, 3)

	ids := func(tasks []Task) []string {
		out := make([]string, len(tasks))
		for i, task := range tasks {
			out[i] = task.ID()
		}
		return out
	}
	assert.Equal(t, []string{"A"}, ids(layers[0]))
	assert.Equal(t, []string{"B", "C"}, ids(layers[1]))
	assert.Equal(t, []string{"D"}, ids(layers[2]))
}

func TestFlow_TopologicalSoundness(t *testing.T) {
	// n0 → n1 → ... с дополнительными рёбрами вперёд
	f := NewFlow("chain")
	const n = 8
	for i := 0; i < n; i++ {
		task := newTestTask(taskName(i), nil).withOutputs("out")
		for j := 0; j < i; j++ {
			task.AddInputPort("from_" + taskName(j))
		}
		mustAdd(t, f, task)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j += 2 {
			mustConnect(t, f, taskName(i), "out", taskName(j), "from_"+taskName(i))
		}
	}

	order, err := f.ExecutionOrder()
	require.NoError(t, err)
	require.Len(t, order, n)

	position := make(map[string]int, n)
	for i, task := range order {
		position[task.ID()] = i
	}
	for _, c := range f.Connections() {
		assert.Less(t, position[c.Source().TaskID], position[c.Target().TaskID], c.String())
	}
}

func taskName(i int) string {
	return "n" + string(rune('a'+i))
}

func TestFlow_FanOut(t *testing.T) {
	f := NewFlow("fanout")
	src := newProducer("src", "shared")
	mustAdd(t, f, src)

	sinks := make([]*testTask, 5)
	for i := range sinks {
		sinks[i] = newSink(taskName(i))
		mustAdd(t, f, sinks[i])
		mustConnect(t, f, "src", "out", sinks[i].ID(), "in")
	}

	require.Equal(t, domain.FlowStateSuccess, f.Execute(context.Background()))
	for _, s := range sinks {
		assert.Equal(t, "shared", s.Observed("in"))
	}
}

func TestFlow_EmptyFlowFails(t *testing.T) {
	assert.Equal(t, domain.FlowStateFailed, NewFlow("empty").Execute(context.Background()))
}

func TestFlow_FailFast(t *testing.T) {
	f := NewFlow("failing")
	a := newStateTask("a", domain.TaskStateSuccess)
	b := newStateTask("b", domain.TaskStateFailed)
	c := newStateTask("c", domain.TaskStateSuccess)
	mustAdd(t, f, a, b, c)
	mustConnect(t, f, "a", "out", "b", "in")
	mustConnect(t, f, "b", "out", "c", "in")

	assert.Equal(t, domain.FlowStateFailed, f.Execute(context.Background()))
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
	assert.Equal(t, 0, c.Calls())
}

func TestFlow_FailFastWithinLayer(t *testing.T) {
	f := NewFlow("layer")
	// Tasks одного слоя выполняются по возрастанию ID
	first := newStateTask("a", domain.TaskStateFailed)
	second := newStateTask("b", domain.TaskStateSuccess)
	mustAdd(t, f, first, second)

	assert.Equal(t, domain.FlowStateFailed, f.Execute(context.Background()))
	assert.Equal(t, 0, second.Calls())
}

func TestFlow_TaskCancelled(t *testing.T) {
	f := NewFlow("cancel")
	a := newStateTask("a", domain.TaskStateCancelled)
	b := newStateTask("b", domain.TaskStateSuccess)
	mustAdd(t, f, a, b)
	mustConnect(t, f, "a", "out", "b", "in")

	assert.Equal(t, domain.FlowStateCancelled, f.Execute(context.Background()))
	assert.Equal(t, 0, b.Calls())
}

func TestFlow_ContextCancelled(t *testing.T) {
	f := NewFlow("ctx")
	a := newStateTask("a", domain.TaskStateSuccess)
	mustAdd(t, f, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, domain.FlowStateCancelled, f.Execute(ctx))
	assert.Equal(t, 0, a.Calls())
}

func TestFlow_PanickingTaskFails(t *testing.T) {
	f := NewFlow("panic")
	boom := newTestTask("boom", func(*testTask, context.Context) domain.TaskState {
		panic(errors.New("boom"))
	})
	mustAdd(t, f, boom)

	assert.Equal(t, domain.FlowStateFailed, f.Execute(context.Background()))

	// Структура flow не повреждена, flow можно выполнить повторно
	assert.True(t, f.HasTask("boom"))
	assert.Equal(t, domain.FlowStateFailed, f.Execute(context.Background()))
	assert.Equal(t, 2, boom.Calls())
}

func TestFlow_ConcurrentLayerFailure(t *testing.T) {
	f := NewFlow("concurrent", WithConcurrency(3))
	ok := newStateTask("a", domain.TaskStateSuccess)
	bad := newStateTask("b", domain.TaskStateFailed)
	downstream := newStateTask("c", domain.TaskStateSuccess)
	mustAdd(t, f, ok, bad, downstream)
	mustConnect(t, f, "b", "out", "c", "in")

	assert.Equal(t, domain.FlowStateFailed, f.Execute(context.Background()))
	assert.Equal(t, 0, downstream.Calls())
}

func TestFlow_ConcurrentLayerRunsInParallel(t *testing.T) {
	f := NewFlow("parallel", WithConcurrency(4))

	var running, peak atomic.Int32
	for i := 0; i < 4; i++ {
		mustAdd(t, f, newTestTask(taskName(i), func(*testTask, context.Context) domain.TaskState {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			running.Add(-1)
			return domain.TaskStateSuccess
		}))
	}

	require.Equal(t, domain.FlowStateSuccess, f.Execute(context.Background()))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestFlow_ExecuteAsync(t *testing.T) {
	f, d := buildDiamond(t)

	select {
	case state := <-f.ExecuteAsync(context.Background()):
		assert.Equal(t, domain.FlowStateSuccess, state)
		assert.Equal(t, "x_b", d.Observed("left"))
	case <-time.After(5 * time.Second):
		t.Fatal("ExecuteAsync did not finish")
	}
}

type panickingObserver struct{ recordingObserver }

func (*panickingObserver) FlowStarted(context.Context, string) { panic("observer failed") }

func TestFlow_ExecuteAsyncRecoversPanic(t *testing.T) {
	f := NewFlow("async", WithObserver(&panickingObserver{}))
	mustAdd(t, f, newSink("a"))

	assert.Equal(t, domain.FlowStateFailed, <-f.ExecuteAsync(context.Background()))

	// Блокировка flow освобождена
	assert.True(t, f.RemoveTask("a"))
}

func TestFlow_Observer(t *testing.T) {
	obs := &recordingObserver{}
	f := NewFlow("observed", WithObserver(obs))
	mustAdd(t, f, newProducer("a", "v"), newSink("b"))
	mustConnect(t, f, "a", "out", "b", "in")

	require.Equal(t, domain.FlowStateSuccess, f.Execute(context.Background()))

	assert.Equal(t, []string{"observed"}, obs.started)
	require.Len(t, obs.tasks, 2)
	assert.Equal(t, "a", obs.tasks[0].TaskID)
	assert.Equal(t, domain.TaskStateSuccess, obs.tasks[1].State)
	require.Len(t, obs.flows, 1)
	assert.Equal(t, domain.FlowStateSuccess, obs.flows[0].State)
	assert.Equal(t, 2, obs.flows[0].TasksRun)
}

func TestFlow_Clear(t *testing.T) {
	f, _ := buildDiamond(t)
	conns := f.Connections()

	f.Clear()

	assert.Equal(t, 0, f.Len())
	assert.Empty(t, f.Connections())
	for _, c := range conns {
		assert.False(t, c.IsValid())
	}
}

func TestFlow_RepeatedExecution(t *testing.T) {
	f := NewFlow("repeat")
	producer := newProducer("p", "one")
	sink := newSink("s")
	mustAdd(t, f, producer, sink)
	mustConnect(t, f, "p", "out", "s", "in")

	require.Equal(t, domain.FlowStateSuccess, f.Execute(context.Background()))
	assert.Equal(t, "one", sink.Observed("in"))

	producer.SetParam("value", "two")
	require.Equal(t, domain.FlowStateSuccess, f.Execute(context.Background()))
	assert.Equal(t, "two", sink.Observed("in"))
}

func TestFlow_ConcurrentExecutionsDoNotOverlap(t *testing.T) {
	f := NewFlow("counter")

	var counter, active, peak, mismatches atomic.Int32
	source := newTestTask("a", func(t *testTask, _ context.Context) domain.TaskState {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		t.SetOutputValue("out", counter.Add(1))
		return domain.TaskStateSuccess
	}).withOutputs("out")
	reader := newTestTask("b", func(t *testTask, _ context.Context) domain.TaskState {
		first := t.InputValue("in")
		time.Sleep(20 * time.Millisecond)
		if t.InputValue("in") != first {
			mismatches.Add(1)
		}
		t.SetOutputValue("out", first)
		active.Add(-1)
		return domain.TaskStateSuccess
	}).withInputs("in").withOutputs("out")
	mustAdd(t, f, source, reader)
	mustConnect(t, f, "a", "out", "b", "in")

	const runs = 4
	type result struct {
		state   domain.FlowState
		outputs map[string]map[string]any
	}
	results := make(chan result, runs)
	for i := 0; i < runs; i++ {
		go func() {
			state, outputs := f.ExecuteWithOutputs(context.Background())
			results <- result{state, outputs}
		}()
	}

	seen := make(map[any]bool)
	for i := 0; i < runs; i++ {
		r := <-results
		require.Equal(t, domain.FlowStateSuccess, r.state)
		assert.Equal(t, r.outputs["a"]["out"], r.outputs["b"]["out"])
		seen[r.outputs["a"]["out"]] = true
	}

	assert.Zero(t, mismatches.Load())
	assert.Equal(t, int32(1), peak.Load())
	assert.Len(t, seen, runs)
}

func TestFlow_MutationWaitsForExecution(t *testing.T) {
	f := NewFlow("gated")

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	gate := newTestTask("gate", func(t *testTask, _ context.Context) domain.TaskState {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		t.SetOutputValue("out", "payload")
		return domain.TaskStateSuccess
	}).withOutputs("out")
	sink := newSink("sink")
	late := newSink("late")
	mustAdd(t, f, gate, sink)
	mustConnect(t, f, "gate", "out", "sink", "in")

	runDone := make(chan domain.FlowState, 1)
	go func() { runDone <- f.Execute(context.Background()) }()
	<-entered

	mutated := make(chan error, 1)
	go func() {
		if err := f.AddTask(late); err != nil {
			mutated <- err
			return
		}
		if _, err := f.Connect("gate", "out", "late", "in"); err != nil {
			mutated <- err
			return
		}
		f.RemoveTask("sink")
		mutated <- nil
	}()

	select {
	case <-mutated:
		t.Fatal("mutation finished while the flow was executing")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.Equal(t, domain.FlowStateSuccess, <-runDone)
	require.NoError(t, <-mutated)

	// Прогон видел топологию до изменения
	assert.Equal(t, 1, sink.Calls())
	assert.Equal(t, "payload", sink.Observed("in"))
	assert.Equal(t, 0, late.Calls())

	assert.Equal(t, []string{"gate", "late"}, f.TaskIDs())
	require.Equal(t, domain.FlowStateSuccess, f.Execute(context.Background()))
	assert.Equal(t, "payload", late.Observed("in"))
}
