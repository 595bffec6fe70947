package engine

import (
	"encoding/json"
	"fmt"

	"github.com/shaiso/Taskflow/internal/domain"
)

// Document возвращает сериализованную форму flow.
// Tasks отсортированы по ID, связи идут в порядке добавления.
func (f *Flow) Document() domain.FlowDocument {
	f.mu.RLock()
	defer f.mu.RUnlock()

	doc := domain.FlowDocument{
		FlowID:      f.id,
		Tasks:       make([]domain.TaskDocument, 0, len(f.tasks)),
		Connections: make([]string, 0, len(f.connections)),
	}
	for _, t := range f.tasksLocked() {
		doc.Tasks = append(doc.Tasks, t.base().ToDocument())
	}
	for _, c := range f.connections {
		doc.Connections = append(doc.Connections, c.String())
	}
	return doc
}

// MarshalJSON сериализует flow в JSON.
func (f *Flow) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Document())
}

// FromDocument восстанавливает flow из документа.
//
// Каждый taskType должен быть известен реестру: неизвестный тип, task без
// taskId или дубликат ID отклоняют загрузку целиком. Связи с неверным
// форматом или несуществующими концами пропускаются с предупреждением.
func FromDocument(doc domain.FlowDocument, reg *Registry, opts ...Option) (*Flow, error) {
	if reg == nil {
		return nil, NewLoadError(doc.FlowID, "", "", "cannot load flow", ErrNilRegistry)
	}

	f := NewFlow(doc.FlowID, opts...)

	for i, td := range doc.Tasks {
		if td.TaskType == "" {
			return nil, NewLoadError(f.id, td.TaskID, "taskType",
				fmt.Sprintf("tasks[%d]: taskType is missing", i), ErrMalformedDocument)
		}

		t, ok := reg.Create(td.TaskType)
		if !ok {
			return nil, NewLoadError(f.id, td.TaskID, "taskType",
				fmt.Sprintf("unknown task type %q", td.TaskType), ErrUnknownTaskType)
		}
		if err := t.base().LoadDocument(td); err != nil {
			return nil, NewLoadError(f.id, td.TaskID, "taskId",
				fmt.Sprintf("tasks[%d]: %v", i, err), err)
		}
		if err := f.AddTask(t); err != nil {
			return nil, NewLoadError(f.id, td.TaskID, "taskId", err.Error(), err)
		}
	}

	dropped := 0
	for _, s := range doc.Connections {
		src, tgt, err := ParseConnection(s)
		if err != nil {
			f.logger.Warn("dropping malformed connection", "flow_id", f.id, "connection", s, "error", err)
			dropped++
			continue
		}
		if _, err := f.Connect(src.TaskID, src.Port, tgt.TaskID, tgt.Port); err != nil {
			f.logger.Warn("dropping connection", "flow_id", f.id, "connection", s, "error", err)
			dropped++
		}
	}

	f.logger.Debug("flow loaded",
		"flow_id", f.id,
		"tasks", len(doc.Tasks),
		"connections", len(doc.Connections)-dropped,
		"dropped", dropped,
	)
	return f, nil
}

// Parse разбирает JSON документ flow.
func Parse(data []byte, reg *Registry, opts ...Option) (*Flow, error) {
	var doc domain.FlowDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return FromDocument(doc, reg, opts...)
}
