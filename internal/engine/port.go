package engine

import (
	"sync"

	"github.com/shaiso/Taskflow/internal/domain"
)

// Direction — направление порта.
type Direction string

const (
	// DirectionInput — входной порт, читает значение из связи.
	DirectionInput Direction = "input"

	// DirectionOutput — выходной порт, в него пишет task.
	DirectionOutput Direction = "output"
)

// Port — именованный типизированный слот значения, принадлежащий одной task.
//
// Идентичность порта: (ID task-владельца, имя, направление).
// Input порт имеет не более одной входящей связи (single writer),
// output порт может быть источником любого числа связей (fan-out).
type Port struct {
	owner     *BaseTask
	name      string
	direction Direction

	mu        sync.RWMutex
	valueType domain.ValueType
	value     any

	// conn — связь, отслеживаемая портом. Для input это единственный writer,
	// для output — одна из исходящих связей.
	conn *Connection

	// upstream — output порт-источник (только для input с подключённой связью).
	upstream *Port
}

func newPort(owner *BaseTask, name string, direction Direction, valueType domain.ValueType) *Port {
	if valueType == "" {
		valueType = domain.ValueTypeAny
	}
	return &Port{
		owner:     owner,
		name:      name,
		direction: direction,
		valueType: valueType,
	}
}

// Name возвращает имя порта.
func (p *Port) Name() string {
	return p.name
}

// Direction возвращает направление порта.
func (p *Port) Direction() Direction {
	return p.direction
}

// TaskID возвращает ID task-владельца.
func (p *Port) TaskID() string {
	if p.owner == nil {
		return ""
	}
	return p.owner.ID()
}

// Ref возвращает ссылку на порт в виде (taskID, имя).
func (p *Port) Ref() PortRef {
	return PortRef{TaskID: p.TaskID(), Port: p.name}
}

// ValueType возвращает объявленный тип значения.
func (p *Port) ValueType() domain.ValueType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.valueType
}

// SetValueType меняет объявленный тип значения.
func (p *Port) SetValueType(t domain.ValueType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.valueType = t
}

// SetValue сохраняет локальное значение порта.
// Несовпадение с объявленным типом логируется, но значение всё равно сохраняется.
func (p *Port) SetValue(v any) {
	p.mu.Lock()
	valueType := p.valueType
	p.value = v
	p.mu.Unlock()

	if !valueType.Accepts(v) {
		p.owner.Logger().Warn("port value type mismatch",
			"task_id", p.TaskID(),
			"port", p.name,
			"expected", valueType,
			"got", typeName(v),
		)
	}
}

// LocalValue возвращает локально сохранённое значение (без учёта связи).
func (p *Port) LocalValue() any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Value возвращает значение порта.
//
// Для подключённого input порта читается текущее значение upstream output
// порта (pull, без кэширования), поэтому upstream task должна быть выполнена
// раньше. В остальных случаях возвращается локальное значение.
func (p *Port) Value() any {
	if v, ok := p.ConnectedValue(); ok {
		return v
	}
	return p.LocalValue()
}

// ConnectedValue возвращает значение upstream порта.
// ok=false, если у порта нет входящей связи.
func (p *Port) ConnectedValue() (any, bool) {
	p.mu.RLock()
	upstream := p.upstream
	p.mu.RUnlock()

	if upstream == nil {
		return nil, false
	}
	return upstream.LocalValue(), true
}

// Connection возвращает отслеживаемую портом связь или nil.
func (p *Port) Connection() *Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

// HasConnection проверяет, есть ли у порта связь.
func (p *Port) HasConnection() bool {
	return p.Connection() != nil
}

// attach регистрирует связь на порту. Вызывается только Flow под его блокировкой.
func (p *Port) attach(c *Connection, upstream *Port) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = c
	if p.direction == DirectionInput {
		p.upstream = upstream
	}
}

// detach снимает связь с порта, если порт отслеживает именно её.
func (p *Port) detach(c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != c {
		return
	}
	p.conn = nil
	p.upstream = nil
}
