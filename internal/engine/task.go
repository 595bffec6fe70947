package engine

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Taskflow/internal/domain"
)

// Task — узел графа, единица вычисления с именованными портами.
//
// Конкретные типы встраивают *BaseTask (порты, параметры, идентичность)
// и реализуют Execute:
//
//	type EchoTask struct {
//	    *engine.BaseTask
//	}
//
//	func (t *EchoTask) Execute(ctx context.Context) domain.TaskState {
//	    t.SetOutputValue("out", t.InputValue("in"))
//	    return domain.TaskStateSuccess
//	}
//
// Execute читает только input порты и параметры, пишет только в output порты,
// не блокируется бесконечно и не меняет топологию flow.
type Task interface {
	// ID возвращает идентификатор task.
	ID() string

	// Type возвращает имя типа task в реестре.
	Type() string

	// Execute выполняет task.
	Execute(ctx context.Context) domain.TaskState

	base() *BaseTask
}

// BaseTask — общая часть всех tasks: ID, тип, порты и параметры.
type BaseTask struct {
	mu       sync.RWMutex
	id       string
	taskType string
	inputs   []*Port
	outputs  []*Port
	params   map[string]any
	logger   *slog.Logger

	// owner — flow, которому принадлежит task.
	owner *Flow
}

// NewBaseTask создаёт BaseTask с сгенерированным ID вида "<type>_<uuid>".
func NewBaseTask(taskType string) *BaseTask {
	return &BaseTask{
		id:       newTaskID(taskType),
		taskType: taskType,
		params:   make(map[string]any),
	}
}

// idSanitizer убирает разделители связи из префикса сгенерированного ID.
var idSanitizer = strings.NewReplacer(connectionArrow, "_", connectionPortSep, "_")

func newTaskID(taskType string) string {
	prefix := idSanitizer.Replace(taskType)
	if prefix == "" {
		prefix = "task"
	}
	return prefix + "_" + uuid.NewString()
}

func (b *BaseTask) base() *BaseTask {
	return b
}

// ID возвращает идентификатор task.
func (b *BaseTask) ID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

// SetID меняет идентификатор task.
// Task, уже добавленная во flow, свой ID не меняет (flow хранит tasks по ID).
// ID с "." или "->" игнорируется с предупреждением.
func (b *BaseTask) SetID(id string) {
	if err := ValidateIdentifier(id); err != nil {
		b.Logger().Warn("ignoring invalid task ID", "task_id", b.ID(), "error", err)
		return
	}

	b.mu.Lock()
	if b.owner != nil {
		b.mu.Unlock()
		b.Logger().Warn("cannot change ID of a task owned by a flow", "task_id", b.ID(), "new_id", id)
		return
	}
	b.id = id
	b.mu.Unlock()
}

// Type возвращает имя типа task.
func (b *BaseTask) Type() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.taskType
}

func (b *BaseTask) setType(taskType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.taskType = taskType
}

// Logger возвращает логгер task (по умолчанию — глобальный).
func (b *BaseTask) Logger() *slog.Logger {
	if b == nil {
		return slog.Default()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.logger == nil {
		return slog.Default()
	}
	return b.logger
}

// SetLogger задаёт логгер task.
func (b *BaseTask) SetLogger(logger *slog.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
}

// --- Ports ---

// AddInputPort добавляет input порт. Вызывается при конструировании task,
// до добавления во flow. Повторное имя возвращает существующий порт.
// Пустое имя или имя с "." или "->" не добавляется: возвращается nil.
func (b *BaseTask) AddInputPort(name string, valueType ...domain.ValueType) *Port {
	return b.addPort(&b.inputs, name, DirectionInput, valueType)
}

// AddOutputPort добавляет output порт.
func (b *BaseTask) AddOutputPort(name string, valueType ...domain.ValueType) *Port {
	return b.addPort(&b.outputs, name, DirectionOutput, valueType)
}

func (b *BaseTask) addPort(list *[]*Port, name string, direction Direction, valueType []domain.ValueType) *Port {
	if name == "" {
		b.Logger().Warn("ignoring port without name", "task_id", b.ID(), "direction", direction)
		return nil
	}
	if err := ValidateIdentifier(name); err != nil {
		b.Logger().Warn("ignoring port with invalid name", "task_id", b.ID(), "direction", direction, "error", err)
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range *list {
		if p.name == name {
			return p
		}
	}

	vt := domain.ValueTypeAny
	if len(valueType) > 0 {
		vt = valueType[0]
	}
	p := newPort(b, name, direction, vt)
	*list = append(*list, p)
	return p
}

// InputPort возвращает input порт по имени или nil.
func (b *BaseTask) InputPort(name string) *Port {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return findPort(b.inputs, name)
}

// OutputPort возвращает output порт по имени или nil.
func (b *BaseTask) OutputPort(name string) *Port {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return findPort(b.outputs, name)
}

// InputPorts возвращает input порты в порядке объявления.
func (b *BaseTask) InputPorts() []*Port {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Port(nil), b.inputs...)
}

// OutputPorts возвращает output порты в порядке объявления.
func (b *BaseTask) OutputPorts() []*Port {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Port(nil), b.outputs...)
}

func findPort(ports []*Port, name string) *Port {
	for _, p := range ports {
		if p.name == name {
			return p
		}
	}
	return nil
}

// InputValue возвращает значение input порта (с учётом связи) или nil.
func (b *BaseTask) InputValue(name string) any {
	p := b.InputPort(name)
	if p == nil {
		b.Logger().Warn("input port not found", "task_id", b.ID(), "port", name)
		return nil
	}
	return p.Value()
}

// SetOutputValue записывает значение в output порт.
func (b *BaseTask) SetOutputValue(name string, v any) {
	p := b.OutputPort(name)
	if p == nil {
		b.Logger().Warn("output port not found", "task_id", b.ID(), "port", name)
		return
	}
	p.SetValue(v)
}

// --- Params ---

// AddParam объявляет параметр со значением по умолчанию.
// Уже существующее значение не перезаписывается.
func (b *BaseTask) AddParam(name string, defaultValue any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.params[name]; !exists {
		b.params[name] = defaultValue
	}
}

// SetParam устанавливает значение параметра.
func (b *BaseTask) SetParam(name string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.params[name] = value
}

// Param возвращает значение параметра.
func (b *BaseTask) Param(name string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.params[name]
	return v, ok
}

// Params возвращает копию всех параметров.
func (b *BaseTask) Params() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.params))
	for k, v := range b.params {
		out[k] = v
	}
	return out
}

// ParamString извлекает строковый параметр.
func (b *BaseTask) ParamString(name string) string {
	if v, ok := b.Param(name); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ParamInt извлекает числовой параметр.
// После JSON числа приходят как float64.
func (b *BaseTask) ParamInt(name string) int {
	if v, ok := b.Param(name); ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// ParamBool извлекает булев параметр.
func (b *BaseTask) ParamBool(name string, defaultVal bool) bool {
	if v, ok := b.Param(name); ok {
		if v, ok := v.(bool); ok {
			return v
		}
	}
	return defaultVal
}

// --- Serialization ---

// ToDocument сериализует ID, тип и параметры task.
// Значения портов не сохраняются.
func (b *BaseTask) ToDocument() domain.TaskDocument {
	doc := domain.TaskDocument{
		TaskID:   b.ID(),
		TaskType: b.Type(),
	}
	if params := b.Params(); len(params) > 0 {
		doc.Params = params
	}
	return doc
}

// LoadDocument загружает ID и параметры из документа.
// Параметры документа накладываются поверх объявленных по умолчанию.
func (b *BaseTask) LoadDocument(doc domain.TaskDocument) error {
	if doc.TaskID == "" {
		return fmt.Errorf("%w: taskId is missing", ErrEmptyTaskID)
	}
	if err := ValidateIdentifier(doc.TaskID); err != nil {
		return err
	}

	b.SetID(doc.TaskID)
	if b.ID() != doc.TaskID {
		return fmt.Errorf("task %s is owned by a flow", b.ID())
	}

	b.mu.Lock()
	for k, v := range doc.Params {
		b.params[k] = v
	}
	b.mu.Unlock()

	return nil
}

func (b *BaseTask) setOwner(f *Flow) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.owner = f
	if f != nil && b.logger == nil {
		b.logger = f.logger
	}
}

func (b *BaseTask) ownerFlow() *Flow {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.owner
}

// --- Execution ---

// RunTask выполняет task с преобразованием паники в TaskStateFailed.
// Паника никогда не выходит за эту границу.
func RunTask(ctx context.Context, t Task) (state domain.TaskState) {
	defer func() {
		if r := recover(); r != nil {
			t.base().Logger().Error("task panicked",
				"task_id", t.ID(),
				"task_type", t.Type(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			state = domain.TaskStateFailed
		}
	}()

	state = t.Execute(ctx)
	switch state {
	case domain.TaskStateSuccess, domain.TaskStateFailed, domain.TaskStateCancelled:
		return state
	default:
		t.base().Logger().Warn("task returned unknown state", "task_id", t.ID(), "state", state)
		return domain.TaskStateFailed
	}
}

// ExecuteTaskAsync запускает task в отдельной горутине.
// Канал получает ровно одно значение и закрывается.
func ExecuteTaskAsync(ctx context.Context, t Task) <-chan domain.TaskState {
	result := make(chan domain.TaskState, 1)
	go func() {
		defer close(result)
		result <- RunTask(ctx, t)
	}()
	return result
}

// OutputValues возвращает локальные значения output портов task
// по имени порта. Незаписанные порты дают nil.
func OutputValues(t Task) map[string]any {
	if isNilTask(t) {
		return nil
	}
	ports := t.base().OutputPorts()
	values := make(map[string]any, len(ports))
	for _, p := range ports {
		values[p.Name()] = p.LocalValue()
	}
	return values
}

// isNilTask ловит и nil интерфейс, и типизированный nil указатель.
func isNilTask(t Task) bool {
	if t == nil {
		return true
	}
	v := reflect.ValueOf(t)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// sortTasks сортирует tasks по ID.
func sortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID() < tasks[j].ID()
	})
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
