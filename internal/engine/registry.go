package engine

import (
	"log/slog"
	"sort"
	"sync"
)

// Factory создаёт новый экземпляр task.
type Factory func() Task

// Registry — реестр типов tasks: имя типа → фабрика.
//
// Каждый вызов Create возвращает новый экземпляр.
// Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *slog.Logger
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		logger:    slog.Default(),
	}
}

// SetLogger задаёт логгер реестра.
func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register регистрирует фабрику под именем типа.
// Если тип уже зарегистрирован, фабрика будет перезаписана.
func (r *Registry) Register(taskType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if taskType == "" || factory == nil {
		r.logger.Warn("ignoring invalid task type registration", "task_type", taskType)
		return
	}

	if _, exists := r.factories[taskType]; exists {
		r.logger.Info("task type re-registered", "task_type", taskType)
	} else {
		r.logger.Debug("task type registered", "task_type", taskType)
	}
	r.factories[taskType] = factory
}

// Create создаёт task зарегистрированного типа.
// Неизвестный тип, nil результат или паника фабрики дают ok=false.
func (r *Registry) Create(taskType string) (task Task, ok bool) {
	r.mu.RLock()
	factory, exists := r.factories[taskType]
	logger := r.logger
	r.mu.RUnlock()

	if !exists {
		logger.Warn("unknown task type", "task_type", taskType)
		return nil, false
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("task factory panicked", "task_type", taskType, "panic", rec)
			task, ok = nil, false
		}
	}()

	task = factory()
	if isNilTask(task) || task.base() == nil {
		logger.Error("task factory returned nil", "task_type", taskType)
		return nil, false
	}

	task.base().setType(taskType)
	return task, true
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(taskType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[taskType]
	return exists
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count возвращает количество зарегистрированных типов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// Unregister удаляет тип из реестра.
func (r *Registry) Unregister(taskType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, taskType)
}

// Clone возвращает независимую копию реестра.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := &Registry{
		factories: make(map[string]Factory, len(r.factories)),
		logger:    r.logger,
	}
	for k, v := range r.factories {
		c.factories[k] = v
	}
	return c
}
