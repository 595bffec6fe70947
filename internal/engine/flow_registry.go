package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shaiso/Taskflow/internal/domain"
)

// FlowCreator строит flow шаблона с заданным ID.
// Пустой flowID оставляет сгенерированный.
type FlowCreator func(m *Manager, flowID string) (*Flow, error)

// FlowRegistry — реестр шаблонов flows: имя типа → FlowCreator.
type FlowRegistry struct {
	mu       sync.RWMutex
	creators map[string]FlowCreator
	logger   *slog.Logger
}

// NewFlowRegistry создаёт пустой реестр шаблонов.
func NewFlowRegistry() *FlowRegistry {
	return &FlowRegistry{
		creators: make(map[string]FlowCreator),
		logger:   slog.Default(),
	}
}

// SetLogger задаёт логгер реестра.
func (r *FlowRegistry) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register регистрирует шаблон. Повторная регистрация перезаписывает прежний.
func (r *FlowRegistry) Register(flowType string, creator FlowCreator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if flowType == "" || creator == nil {
		r.logger.Warn("ignoring invalid flow type registration", "flow_type", flowType)
		return
	}
	r.creators[flowType] = creator
	r.logger.Debug("flow type registered", "flow_type", flowType)
}

// Create строит flow шаблона. Менеджер передаётся шаблону как есть
// и в Create не добавляется.
func (r *FlowRegistry) Create(m *Manager, flowType, flowID string) (f *Flow, err error) {
	r.mu.RLock()
	creator, ok := r.creators[flowType]
	logger := r.logger
	r.mu.RUnlock()

	if !ok {
		logger.Warn("unknown flow type", "flow_type", flowType)
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlowType, flowType)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("flow creator panicked", "flow_type", flowType, "panic", rec)
			f, err = nil, fmt.Errorf("flow type %s: creator panicked: %v", flowType, rec)
		}
	}()

	f, err = creator(m, flowID)
	if err != nil {
		return nil, fmt.Errorf("flow type %s: %w", flowType, err)
	}
	if f == nil {
		return nil, fmt.Errorf("flow type %s: %w", flowType, ErrNilFlow)
	}
	return f, nil
}

// Has проверяет, зарегистрирован ли шаблон.
func (r *FlowRegistry) Has(flowType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.creators[flowType]
	return ok
}

// Types возвращает отсортированный список шаблонов.
func (r *FlowRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.creators))
	for t := range r.creators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// FlowTemplate возвращает FlowCreator, который строит flow из документа
// через реестр tasks и опции менеджера. FlowID документа заменяется.
func FlowTemplate(doc domain.FlowDocument) FlowCreator {
	return func(m *Manager, flowID string) (*Flow, error) {
		if m == nil {
			return nil, ErrNilRegistry
		}
		d := doc
		d.FlowID = flowID
		return FromDocument(d, m.registry, m.flowOpts...)
	}
}
