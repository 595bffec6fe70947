package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
)

// Разделители в строковой форме связи "srcTask.srcPort->tgtTask.tgtPort".
const (
	connectionArrow   = "->"
	connectionPortSep = "."
)

// ValidateIdentifier проверяет ID task или имя порта.
// Разделители строковой формы связи в идентификаторе недопустимы,
// иначе связь не разберётся обратно.
func ValidateIdentifier(s string) error {
	if strings.Contains(s, connectionPortSep) || strings.Contains(s, connectionArrow) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	return nil
}

// PortRef — ссылка на порт через (ID task, имя порта).
//
// Связи хранят ссылки, а не указатели на task:
// концы разрешаются через Flow, которому принадлежит связь.
type PortRef struct {
	TaskID string `json:"task_id"`
	Port   string `json:"port"`
}

// String возвращает "taskID.port".
func (r PortRef) String() string {
	return r.TaskID + connectionPortSep + r.Port
}

// Connection — направленное ребро от output порта одной task
// к input порту другой task.
type Connection struct {
	// flow — владелец; nil после удаления связи.
	flow atomic.Pointer[Flow]

	source PortRef
	target PortRef
}

// Source возвращает ссылку на порт-источник.
func (c *Connection) Source() PortRef {
	return c.source
}

// Target возвращает ссылку на порт-приёмник.
func (c *Connection) Target() PortRef {
	return c.target
}

// String возвращает "srcTaskId.srcPort->tgtTaskId.tgtPort".
func (c *Connection) String() string {
	return c.source.String() + connectionArrow + c.target.String()
}

// MarshalJSON сериализует связь в строковой форме.
func (c *Connection) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// Flow возвращает flow-владелец или nil, если связь удалена.
func (c *Connection) Flow() *Flow {
	return c.flow.Load()
}

// IsValid проверяет, что оба конца связи существуют во flow,
// направления портов корректны и task источника отличается от task приёмника.
//
// Не вызывать из Task.Execute: метод берёт блокировку flow на чтение.
func (c *Connection) IsValid() bool {
	f := c.flow.Load()
	if f == nil {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return c.validLocked(f)
}

// IsTypeCompatible проверяет совместимость типов значений концов связи.
//
// Как и IsValid, не вызывается из Task.Execute или Observer.
func (c *Connection) IsTypeCompatible() bool {
	f := c.flow.Load()
	if f == nil {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !c.validLocked(f) {
		return false
	}
	src, _ := f.outputPortLocked(c.source)
	tgt, _ := f.inputPortLocked(c.target)
	return src.ValueType().CompatibleWith(tgt.ValueType())
}

// SourcePort разрешает порт-источник через flow.
func (c *Connection) SourcePort() (*Port, bool) {
	f := c.flow.Load()
	if f == nil {
		return nil, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.outputPortLocked(c.source)
}

// TargetPort разрешает порт-приёмник через flow.
func (c *Connection) TargetPort() (*Port, bool) {
	f := c.flow.Load()
	if f == nil {
		return nil, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.inputPortLocked(c.target)
}

// validLocked — IsValid под уже взятой блокировкой flow.
func (c *Connection) validLocked(f *Flow) bool {
	if c.source.TaskID == "" || c.target.TaskID == "" {
		return false
	}
	if c.source.TaskID == c.target.TaskID {
		return false
	}
	if _, ok := f.outputPortLocked(c.source); !ok {
		return false
	}
	if _, ok := f.inputPortLocked(c.target); !ok {
		return false
	}
	return true
}

// ParseConnection разбирает строку "srcTask.srcPort->tgtTask.tgtPort".
//
// Строка делится по "->", затем каждая половина по "." —
// каждая часть должна состоять ровно из двух непустых элементов.
func ParseConnection(s string) (source, target PortRef, err error) {
	parts := strings.Split(s, connectionArrow)
	if len(parts) != 2 {
		return PortRef{}, PortRef{}, fmt.Errorf("%w: %q", ErrMalformedConnection, s)
	}

	source, err = parsePortRef(parts[0])
	if err != nil {
		return PortRef{}, PortRef{}, fmt.Errorf("%w: %q", ErrMalformedConnection, s)
	}
	target, err = parsePortRef(parts[1])
	if err != nil {
		return PortRef{}, PortRef{}, fmt.Errorf("%w: %q", ErrMalformedConnection, s)
	}

	return source, target, nil
}

func parsePortRef(s string) (PortRef, error) {
	parts := strings.Split(s, connectionPortSep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return PortRef{}, ErrMalformedConnection
	}
	return PortRef{TaskID: parts[0], Port: parts[1]}, nil
}
