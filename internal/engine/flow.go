package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Taskflow/internal/domain"
)

// TypePolicy — реакция на несовместимые типы портов при создании связи.
type TypePolicy int

const (
	// TypeCheckWarn — несовпадение логируется, связь создаётся.
	TypeCheckWarn TypePolicy = iota

	// TypeCheckStrict — связь отклоняется с ErrIncompatibleTypes.
	TypeCheckStrict
)

// String возвращает имя политики.
func (p TypePolicy) String() string {
	if p == TypeCheckStrict {
		return "strict"
	}
	return "warn"
}

// Option настраивает Flow.
type Option func(*Flow)

// WithLogger задаёт логгер flow (и его tasks без собственного логгера).
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithObserver добавляет наблюдателя выполнения.
func WithObserver(o Observer) Option {
	return func(f *Flow) {
		if o != nil {
			f.observers = append(f.observers, o)
		}
	}
}

// WithConcurrency задаёт число tasks одного слоя, выполняемых параллельно.
// n <= 1 — последовательное выполнение.
func WithConcurrency(n int) Option {
	return func(f *Flow) {
		f.concurrency = n
	}
}

// WithTypePolicy задаёт политику проверки типов портов.
func WithTypePolicy(p TypePolicy) Option {
	return func(f *Flow) {
		f.typePolicy = p
	}
}

// Flow — граф tasks и связей между ними.
//
// Flow владеет своими tasks (по ID) и связями (упорядоченный список).
// Один RWMutex защищает обе коллекции: Execute держит его на чтение
// всё время обхода, структурные изменения ждут окончания выполнения.
// Выполнения одного flow идут строго по очереди (execMu): значения портов
// общие, параллельный прогон подменил бы входы чужой task.
//
// RWMutex не реентерабелен: task или Observer, вызывающие во время
// выполнения Task, Tasks, Connections или методы Connection, зависнут,
// если в очереди уже стоит структурное изменение.
type Flow struct {
	execMu sync.Mutex

	mu          sync.RWMutex
	id          string
	tasks       map[string]Task
	connections []*Connection

	logger      *slog.Logger
	observers   Observers
	concurrency int
	typePolicy  TypePolicy
}

// NewFlow создаёт пустой flow. Пустой id заменяется сгенерированным "flow_<uuid>".
func NewFlow(id string, opts ...Option) *Flow {
	if id == "" {
		id = "flow_" + uuid.NewString()
	}
	f := &Flow{
		id:          id,
		tasks:       make(map[string]Task),
		logger:      slog.Default(),
		concurrency: 1,
		typePolicy:  TypeCheckWarn,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ID возвращает идентификатор flow.
func (f *Flow) ID() string {
	return f.id
}

// Logger возвращает логгер flow.
func (f *Flow) Logger() *slog.Logger {
	return f.logger
}

// TypePolicy возвращает политику проверки типов.
func (f *Flow) TypePolicy() TypePolicy {
	return f.typePolicy
}

// reject логирует структурный отказ и возвращает ошибку.
func (f *Flow) reject(msg string, err error, args ...any) error {
	attrs := append([]any{"flow_id", f.id, "error", err}, args...)
	f.logger.Warn(msg, attrs...)
	return err
}

// --- Tasks ---

// AddTask добавляет task во flow и берёт её во владение.
//
// nil task, пустой ID, ID с "." или "->", дубликат ID или task другого flow отклоняются:
// flow не меняется, возвращается ошибка.
func (f *Flow) AddTask(t Task) error {
	if isNilTask(t) || t.base() == nil {
		return f.reject("rejecting nil task", ErrNilTask)
	}

	id := t.ID()
	if id == "" {
		return f.reject("rejecting task without ID", ErrEmptyTaskID, "task_type", t.Type())
	}
	if err := ValidateIdentifier(id); err != nil {
		return f.reject("rejecting task with invalid ID", err, "task_id", id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.tasks[id]; exists {
		return f.reject("rejecting duplicate task", fmt.Errorf("%w: %s", ErrDuplicateTask, id), "task_id", id)
	}
	if owner := t.base().ownerFlow(); owner != nil && owner != f {
		return f.reject("rejecting task owned by another flow",
			fmt.Errorf("%w: %s belongs to %s", ErrTaskOwned, id, owner.ID()), "task_id", id)
	}

	f.tasks[id] = t
	t.base().setOwner(f)

	f.logger.Debug("task added", "flow_id", f.id, "task_id", id, "task_type", t.Type())
	return nil
}

// CreateTask создаёт task через реестр, задаёт ID и параметры и добавляет во flow.
// Пустой id оставляет сгенерированный.
func (f *Flow) CreateTask(reg *Registry, taskType, id string, params map[string]any) (Task, error) {
	if reg == nil {
		return nil, ErrNilRegistry
	}

	t, ok := reg.Create(taskType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	if id != "" {
		if err := ValidateIdentifier(id); err != nil {
			return nil, err
		}
		t.base().SetID(id)
	}
	for k, v := range params {
		t.base().SetParam(k, v)
	}

	if err := f.AddTask(t); err != nil {
		return nil, err
	}
	return t, nil
}

// RemoveTask удаляет task и все связи, где она источник или приёмник.
// Возвращает false, если task не найдена.
func (f *Flow) RemoveTask(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, exists := f.tasks[id]
	if !exists {
		f.logger.Warn("task not found", "flow_id", f.id, "task_id", id)
		return false
	}

	removed := 0
	for i := len(f.connections) - 1; i >= 0; i-- {
		c := f.connections[i]
		if c.source.TaskID == id || c.target.TaskID == id {
			f.removeConnectionLocked(i)
			removed++
		}
	}

	delete(f.tasks, id)
	t.base().setOwner(nil)

	f.logger.Debug("task removed", "flow_id", f.id, "task_id", id, "connections_removed", removed)
	return true
}

// Task возвращает task по ID.
//
// Не вызывать из Task.Execute и Observer: метод берёт блокировку flow на чтение.
func (f *Flow) Task(id string) (Task, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.tasks[id]
	return t, ok
}

// HasTask проверяет наличие task.
func (f *Flow) HasTask(id string) bool {
	_, ok := f.Task(id)
	return ok
}

// Tasks возвращает все tasks, отсортированные по ID.
// Как и Task, не вызывается изнутри выполнения flow.
func (f *Flow) Tasks() []Task {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.tasksLocked()
}

func (f *Flow) tasksLocked() []Task {
	tasks := make([]Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		tasks = append(tasks, t)
	}
	sortTasks(tasks)
	return tasks
}

// TaskIDs возвращает отсортированные ID tasks.
func (f *Flow) TaskIDs() []string {
	tasks := f.Tasks()
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID()
	}
	return ids
}

// Len возвращает количество tasks.
func (f *Flow) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.tasks)
}

// --- Connections ---

// AddConnection соединяет output порт src с input портом tgt.
//
// Отклоняются: nil порты, неверные направления, tasks вне flow,
// связь task с собой, занятый input порт (один writer на порт).
// Повторная связь между теми же портами возвращает существующую.
// Несовпадение типов обрабатывается согласно TypePolicy.
func (f *Flow) AddConnection(src, tgt *Port) (*Connection, error) {
	if src == nil || tgt == nil {
		return nil, f.reject("rejecting connection with nil port", ErrNilPort)
	}
	if src.Direction() != DirectionOutput || tgt.Direction() != DirectionInput {
		return nil, f.reject("rejecting connection with wrong port direction", ErrPortDirection,
			"source", src.Ref().String(), "target", tgt.Ref().String())
	}

	srcRef, tgtRef := src.Ref(), tgt.Ref()

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.ownsPortLocked(src) || !f.ownsPortLocked(tgt) {
		return nil, f.reject("rejecting connection to task outside the flow", ErrTaskNotInFlow,
			"source", srcRef.String(), "target", tgtRef.String())
	}
	if src.owner == tgt.owner {
		return nil, f.reject("rejecting self connection", ErrSelfConnection, "task_id", srcRef.TaskID)
	}

	for _, c := range f.connections {
		if c.source == srcRef && c.target == tgtRef {
			f.logger.Warn("connection already exists", "flow_id", f.id, "connection", c.String())
			return c, nil
		}
	}

	if existing := tgt.Connection(); existing != nil {
		return nil, f.reject("rejecting second writer for input port",
			fmt.Errorf("%w: %s", ErrInputOccupied, tgtRef), "existing", existing.String())
	}

	if srcType, tgtType := src.ValueType(), tgt.ValueType(); !srcType.CompatibleWith(tgtType) {
		if f.typePolicy == TypeCheckStrict {
			return nil, f.reject("rejecting connection with incompatible types",
				fmt.Errorf("%w: %s -> %s", ErrIncompatibleTypes, srcType, tgtType),
				"source", srcRef.String(), "target", tgtRef.String())
		}
		f.logger.Warn("connecting ports with incompatible types",
			"flow_id", f.id,
			"source", srcRef.String(),
			"target", tgtRef.String(),
			"source_type", srcType,
			"target_type", tgtType,
		)
	}

	c := &Connection{source: srcRef, target: tgtRef}
	c.flow.Store(f)
	f.connections = append(f.connections, c)
	src.attach(c, nil)
	tgt.attach(c, src)

	f.logger.Debug("connection added", "flow_id", f.id, "connection", c.String())
	return c, nil
}

// Connect соединяет порты по ID tasks и именам портов.
func (f *Flow) Connect(srcTaskID, srcPort, tgtTaskID, tgtPort string) (*Connection, error) {
	src, err := f.resolvePort(PortRef{TaskID: srcTaskID, Port: srcPort}, DirectionOutput)
	if err != nil {
		return nil, err
	}
	tgt, err := f.resolvePort(PortRef{TaskID: tgtTaskID, Port: tgtPort}, DirectionInput)
	if err != nil {
		return nil, err
	}
	return f.AddConnection(src, tgt)
}

func (f *Flow) resolvePort(ref PortRef, direction Direction) (*Port, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if _, ok := f.tasks[ref.TaskID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotInFlow, ref.TaskID)
	}

	var (
		p  *Port
		ok bool
	)
	if direction == DirectionOutput {
		p, ok = f.outputPortLocked(ref)
	} else {
		p, ok = f.inputPortLocked(ref)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrPortNotFound, direction, ref)
	}
	return p, nil
}

// RemoveConnection удаляет связь. Возвращает false, если связь не принадлежит flow.
func (f *Flow) RemoveConnection(c *Connection) bool {
	if c == nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i, existing := range f.connections {
		if existing == c {
			f.removeConnectionLocked(i)
			f.logger.Debug("connection removed", "flow_id", f.id, "connection", c.String())
			return true
		}
	}
	return false
}

// removeConnectionLocked удаляет связь по индексу и снимает её с портов.
func (f *Flow) removeConnectionLocked(idx int) {
	c := f.connections[idx]
	f.connections = append(f.connections[:idx], f.connections[idx+1:]...)
	c.flow.Store(nil)

	if tgt, ok := f.inputPortLocked(c.target); ok {
		tgt.detach(c)
	}

	src, ok := f.outputPortLocked(c.source)
	if !ok || src.Connection() != c {
		return
	}
	src.detach(c)
	// output порт продолжает отслеживать одну из оставшихся исходящих связей
	for _, other := range f.connections {
		if other.source == c.source {
			src.attach(other, nil)
			break
		}
	}
}

// Connections возвращает связи в порядке добавления.
func (f *Flow) Connections() []*Connection {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*Connection(nil), f.connections...)
}

// ownsPortLocked проверяет, что порт принадлежит task этого flow.
func (f *Flow) ownsPortLocked(p *Port) bool {
	if p.owner == nil {
		return false
	}
	t, ok := f.tasks[p.TaskID()]
	return ok && t.base() == p.owner
}

func (f *Flow) outputPortLocked(ref PortRef) (*Port, bool) {
	t, ok := f.tasks[ref.TaskID]
	if !ok {
		return nil, false
	}
	p := t.base().OutputPort(ref.Port)
	return p, p != nil
}

func (f *Flow) inputPortLocked(ref PortRef) (*Port, bool) {
	t, ok := f.tasks[ref.TaskID]
	if !ok {
		return nil, false
	}
	p := t.base().InputPort(ref.Port)
	return p, p != nil
}

// Clear удаляет все tasks и связи.
func (f *Flow) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.connections) - 1; i >= 0; i-- {
		f.removeConnectionLocked(i)
	}
	for id, t := range f.tasks {
		t.base().setOwner(nil)
		delete(f.tasks, id)
	}
}

// --- Validation ---

// Validate проверяет, что все связи валидны и граф ацикличен.
func (f *Flow) Validate() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.validateConnectionsLocked(); err != nil {
		return err
	}
	if f.hasCycleLocked() {
		return ErrCyclicDependency
	}
	return nil
}

func (f *Flow) validateConnectionsLocked() error {
	for _, c := range f.connections {
		if !c.validLocked(f) {
			return fmt.Errorf("%w: %s", ErrInvalidConnection, c)
		}
	}
	return nil
}

// --- Execution ---

var errLayerAborted = errors.New("layer aborted")

// Execute выполняет flow синхронно.
//
// Пустой flow, невалидная связь или цикл дают FlowStateFailed до запуска
// какой-либо task. Далее tasks выполняются по слоям топологического порядка.
// Failed у task прерывает выполнение (уже выполненные tasks не откатываются),
// Cancelled у task или отмена ctx дают FlowStateCancelled.
//
// Параллельные вызовы Execute одного flow ждут друг друга.
func (f *Flow) Execute(ctx context.Context) domain.FlowState {
	state, _ := f.execute(ctx, false)
	return state
}

// ExecuteWithOutputs выполняет flow и возвращает значения output портов
// всех tasks (taskID -> порт -> значение), снятые до начала следующего прогона.
func (f *Flow) ExecuteWithOutputs(ctx context.Context) (domain.FlowState, map[string]map[string]any) {
	return f.execute(ctx, true)
}

func (f *Flow) execute(ctx context.Context, collect bool) (domain.FlowState, map[string]map[string]any) {
	f.execMu.Lock()
	defer f.execMu.Unlock()

	start := time.Now()

	f.mu.RLock()
	defer f.mu.RUnlock()

	f.observers.FlowStarted(ctx, f.id)
	state, ran := f.executeLocked(ctx)
	duration := time.Since(start)
	f.observers.FlowFinished(ctx, FlowEvent{
		FlowID:   f.id,
		State:    state,
		Duration: duration,
		TasksRun: ran,
	})

	f.logger.Info("flow executed",
		"flow_id", f.id,
		"state", state,
		"tasks_run", ran,
		"duration", duration,
	)

	if !collect {
		return state, nil
	}
	outputs := make(map[string]map[string]any, len(f.tasks))
	for id, t := range f.tasks {
		outputs[id] = OutputValues(t)
	}
	return state, outputs
}

func (f *Flow) executeLocked(ctx context.Context) (domain.FlowState, int) {
	if len(f.tasks) == 0 {
		f.logger.Warn("flow has no tasks", "flow_id", f.id)
		return domain.FlowStateFailed, 0
	}
	if err := f.validateConnectionsLocked(); err != nil {
		f.logger.Error("flow validation failed", "flow_id", f.id, "error", err)
		return domain.FlowStateFailed, 0
	}
	if f.hasCycleLocked() {
		f.logger.Error("flow has a cycle", "flow_id", f.id, "error", ErrCyclicDependency)
		return domain.FlowStateFailed, 0
	}

	layers, err := f.layersLocked()
	if err != nil {
		f.logger.Error("cannot compute execution order", "flow_id", f.id, "error", err)
		return domain.FlowStateFailed, 0
	}

	ran := 0
	for i, layer := range layers {
		var (
			state domain.FlowState
			n     int
		)
		if f.concurrency > 1 && len(layer) > 1 {
			state, n = f.runLayerConcurrent(ctx, layer)
		} else {
			state, n = f.runLayerSequential(ctx, layer)
		}
		ran += n

		if state != domain.FlowStateSuccess {
			f.logger.Warn("flow execution aborted", "flow_id", f.id, "layer", i, "state", state)
			return state, ran
		}
	}

	return domain.FlowStateSuccess, ran
}

func (f *Flow) runLayerSequential(ctx context.Context, layer []Task) (domain.FlowState, int) {
	ran := 0
	for _, t := range layer {
		if ctx.Err() != nil {
			return domain.FlowStateCancelled, ran
		}
		state := f.runTask(ctx, t)
		ran++
		if !state.IsSuccess() {
			return domain.FlowStateFromTask(state), ran
		}
	}
	return domain.FlowStateSuccess, ran
}

func (f *Flow) runLayerConcurrent(ctx context.Context, layer []Task) (domain.FlowState, int) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	// пустое состояние — task не запускалась
	states := make([]domain.TaskState, len(layer))
	for i, t := range layer {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			states[i] = f.runTask(gctx, t)
			if !states[i].IsSuccess() {
				return errLayerAborted
			}
			return nil
		})
	}
	_ = g.Wait()

	ran := 0
	result := domain.FlowStateSuccess
	for _, s := range states {
		switch s {
		case "":
			if result == domain.FlowStateSuccess {
				result = domain.FlowStateCancelled
			}
			continue
		case domain.TaskStateFailed:
			result = domain.FlowStateFailed
		case domain.TaskStateCancelled:
			if result == domain.FlowStateSuccess {
				result = domain.FlowStateCancelled
			}
		}
		ran++
	}
	return result, ran
}

func (f *Flow) runTask(ctx context.Context, t Task) domain.TaskState {
	start := time.Now()
	state := RunTask(ctx, t)
	duration := time.Since(start)

	f.observers.TaskFinished(ctx, TaskEvent{
		FlowID:   f.id,
		TaskID:   t.ID(),
		TaskType: t.Type(),
		State:    state,
		Duration: duration,
	})
	f.logger.Debug("task executed",
		"flow_id", f.id,
		"task_id", t.ID(),
		"task_type", t.Type(),
		"state", state,
		"duration", duration,
	)
	return state
}

// ExecuteAsync выполняет flow в отдельной горутине.
// Канал получает ровно одно значение; паника превращается в FlowStateFailed.
func (f *Flow) ExecuteAsync(ctx context.Context) <-chan domain.FlowState {
	result := make(chan domain.FlowState, 1)
	go func() {
		defer close(result)
		defer func() {
			if r := recover(); r != nil {
				f.logger.Error("flow execution panicked",
					"flow_id", f.id,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				result <- domain.FlowStateFailed
			}
		}()
		result <- f.Execute(ctx)
	}()
	return result
}
