package steps

import (
	"errors"
	"fmt"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
)

// Ошибки шагов.
var (
	// ErrInvalidConfig — невалидные параметры task.
	ErrInvalidConfig = errors.New("invalid task config")

	// ErrStepCancelled — выполнение task отменено.
	ErrStepCancelled = errors.New("task execution cancelled")

	// ErrMissingInput — на обязательном input порту нет значения.
	ErrMissingInput = errors.New("missing input value")
)

// Общие имена портов.
const (
	PortIn    = "in"
	PortOut   = "out"
	PortError = "error"
)

// fail пишет ошибку в порт error (если он есть) и возвращает TaskStateFailed.
func fail(b *engine.BaseTask, err error) domain.TaskState {
	b.Logger().Warn("task failed", "task_id", b.ID(), "task_type", b.Type(), "error", err)
	if b.OutputPort(PortError) != nil {
		b.SetOutputValue(PortError, err.Error())
	}
	return domain.TaskStateFailed
}

// cancelled логирует отмену и возвращает TaskStateCancelled.
func cancelled(b *engine.BaseTask, cause error) domain.TaskState {
	b.Logger().Info("task cancelled", "task_id", b.ID(), "task_type", b.Type(), "cause", cause)
	if b.OutputPort(PortError) != nil {
		b.SetOutputValue(PortError, fmt.Errorf("%w: %v", ErrStepCancelled, cause).Error())
	}
	return domain.TaskStateCancelled
}

// toString приводит значение порта к строке. nil — пустая строка.
func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}

// toInt64 приводит числовое значение порта к int64.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// paramStringMap извлекает map[string]string из параметра.
func paramStringMap(b *engine.BaseTask, key string) map[string]string {
	v, ok := b.Param(key)
	if !ok {
		return nil
	}
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		result := make(map[string]string, len(m))
		for k, val := range m {
			if s, ok := val.(string); ok {
				result[k] = s
			}
		}
		return result
	}
	return nil
}
