package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/shaiso/Taskflow/internal/domain"
)

// Store — внешнее хранилище коллекции flows.
// Реализации: repo.PostgresStore, repo.SQLiteStore.
type Store interface {
	SaveDocument(ctx context.Context, doc domain.ManagerDocument) error
	LoadDocument(ctx context.Context) (domain.ManagerDocument, error)
}

// ManagerOption настраивает Manager.
type ManagerOption func(*Manager)

// WithManagerLogger задаёт логгер менеджера.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithFlowOptions задаёт опции для flows, создаваемых и загружаемых менеджером.
func WithFlowOptions(opts ...Option) ManagerOption {
	return func(m *Manager) {
		m.flowOpts = append(m.flowOpts, opts...)
	}
}

// WithFlowRegistry задаёт реестр шаблонов flows.
func WithFlowRegistry(r *FlowRegistry) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.flowRegistry = r
		}
	}
}

// Manager — именованная коллекция flows с массовой сериализацией.
//
// Flow с уже существующим ID заменяет прежний; прежний flow очищается.
type Manager struct {
	mu       sync.RWMutex
	flows    map[string]*Flow
	registry *Registry
	flowOpts []Option

	flowRegistry *FlowRegistry
	logger   *slog.Logger
}

// NewManager создаёт менеджер. nil реестр заменяется пустым.
func NewManager(reg *Registry, opts ...ManagerOption) *Manager {
	if reg == nil {
		reg = NewRegistry()
	}
	m := &Manager{
		flows:        make(map[string]*Flow),
		registry:     reg,
		flowRegistry: NewFlowRegistry(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry возвращает реестр типов tasks.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// AvailableTaskTypes возвращает зарегистрированные типы tasks.
func (m *Manager) AvailableTaskTypes() []string {
	return m.registry.Types()
}

// FlowRegistry возвращает реестр шаблонов flows.
func (m *Manager) FlowRegistry() *FlowRegistry {
	return m.flowRegistry
}

// AvailableFlowTypes возвращает зарегистрированные шаблоны flows.
func (m *Manager) AvailableFlowTypes() []string {
	return m.flowRegistry.Types()
}

// CreateFlowFromType строит flow по шаблону и добавляет его.
// replaced=true, если flow с тем же ID уже был.
func (m *Manager) CreateFlowFromType(flowType, flowID string) (f *Flow, replaced bool, err error) {
	f, err = m.flowRegistry.Create(m, flowType, flowID)
	if err != nil {
		return nil, false, err
	}
	replaced = m.HasFlow(f.ID())
	if err := m.AddFlow(f); err != nil {
		return nil, false, err
	}
	m.logger.Info("flow created from type", "flow_type", flowType, "flow_id", f.ID())
	return f, replaced, nil
}

// CreateFlow создаёт flow с опциями менеджера и добавляет его.
func (m *Manager) CreateFlow(id string) *Flow {
	f := NewFlow(id, m.flowOpts...)
	// ошибка невозможна: flow не nil и ID не пустой
	_ = m.AddFlow(f)
	return f
}

// AddFlow добавляет flow. Flow с тем же ID заменяется и очищается.
func (m *Manager) AddFlow(f *Flow) error {
	if f == nil {
		m.logger.Warn("rejecting nil flow")
		return ErrNilFlow
	}
	if f.ID() == "" {
		m.logger.Warn("rejecting flow without ID")
		return ErrEmptyFlowID
	}

	m.mu.Lock()
	old := m.flows[f.ID()]
	m.flows[f.ID()] = f
	m.mu.Unlock()

	if old != nil && old != f {
		old.Clear()
		m.logger.Info("flow replaced", "flow_id", f.ID())
	} else {
		m.logger.Debug("flow added", "flow_id", f.ID())
	}
	return nil
}

// AddFlowDocument строит flow из документа с опциями менеджера и добавляет его.
// replaced=true, если flow с тем же ID уже был.
func (m *Manager) AddFlowDocument(doc domain.FlowDocument) (f *Flow, replaced bool, err error) {
	f, err = FromDocument(doc, m.registry, m.flowOpts...)
	if err != nil {
		return nil, false, err
	}
	replaced = m.HasFlow(f.ID())
	if err := m.AddFlow(f); err != nil {
		return nil, false, err
	}
	return f, replaced, nil
}

// RemoveFlow удаляет и очищает flow. Возвращает false, если flow не найден.
func (m *Manager) RemoveFlow(id string) bool {
	m.mu.Lock()
	f, ok := m.flows[id]
	delete(m.flows, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	f.Clear()
	m.logger.Debug("flow removed", "flow_id", id)
	return true
}

// Flow возвращает flow по ID; ok=false, если flow нет.
func (m *Manager) Flow(id string) (*Flow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.flows[id]
	return f, ok
}

// HasFlow проверяет наличие flow.
func (m *Manager) HasFlow(id string) bool {
	_, ok := m.Flow(id)
	return ok
}

// Flows возвращает все flows, отсортированные по ID.
func (m *Manager) Flows() []*Flow {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flows := make([]*Flow, 0, len(m.flows))
	for _, f := range m.flows {
		flows = append(flows, f)
	}
	sort.Slice(flows, func(i, j int) bool {
		return flows[i].ID() < flows[j].ID()
	})
	return flows
}

// FlowIDs возвращает отсортированные ID flows.
func (m *Manager) FlowIDs() []string {
	flows := m.Flows()
	ids := make([]string, len(flows))
	for i, f := range flows {
		ids[i] = f.ID()
	}
	return ids
}

// Len возвращает количество flows.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.flows)
}

// Clear удаляет и очищает все flows.
func (m *Manager) Clear() {
	m.mu.Lock()
	old := m.flows
	m.flows = make(map[string]*Flow)
	m.mu.Unlock()

	m.logger.Info("removing flows", "count", len(old))
	for _, f := range old {
		f.Clear()
	}
}

// Execute выполняет flow по ID.
func (m *Manager) Execute(ctx context.Context, id string) (domain.FlowState, error) {
	f, ok := m.Flow(id)
	if !ok {
		return domain.FlowStateFailed, fmt.Errorf("%w: %s", ErrFlowNotFound, id)
	}
	return f.Execute(ctx), nil
}

// --- Persistence ---

// Document возвращает сериализованную коллекцию flows.
func (m *Manager) Document() domain.ManagerDocument {
	flows := m.Flows()
	doc := domain.ManagerDocument{
		Flows:     make([]domain.FlowDocument, 0, len(flows)),
		FlowCount: len(flows),
	}
	for _, f := range flows {
		doc.Flows = append(doc.Flows, f.Document())
	}
	return doc
}

// MarshalJSON сериализует коллекцию flows.
func (m *Manager) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Document())
}

// LoadDocument заменяет содержимое менеджера flows из документа.
//
// Загрузка атомарна: сначала строятся все flows, ошибка любого из них
// отклоняет документ целиком и текущее содержимое не меняется.
func (m *Manager) LoadDocument(doc domain.ManagerDocument) error {
	loaded := make(map[string]*Flow, len(doc.Flows))
	for _, fd := range doc.Flows {
		f, err := FromDocument(fd, m.registry, m.flowOpts...)
		if err != nil {
			for _, built := range loaded {
				built.Clear()
			}
			return err
		}
		if prev, exists := loaded[f.ID()]; exists {
			m.logger.Warn("duplicate flow in document, last wins", "flow_id", f.ID())
			prev.Clear()
		}
		loaded[f.ID()] = f
	}

	if doc.FlowCount != len(doc.Flows) {
		m.logger.Warn("flowCount does not match flows",
			"flow_count", doc.FlowCount,
			"flows", len(doc.Flows),
		)
	}

	m.mu.Lock()
	old := m.flows
	m.flows = loaded
	m.mu.Unlock()

	for _, f := range old {
		f.Clear()
	}

	m.logger.Info("flows loaded", "count", len(loaded))
	return nil
}

// LoadJSON разбирает JSON коллекции flows и загружает её.
func (m *Manager) LoadJSON(data []byte) error {
	var doc domain.ManagerDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return m.LoadDocument(doc)
}

// SaveFile записывает коллекцию flows в файл.
// Запись идёт во временный файл рядом с целевым и завершается rename.
func (m *Manager) SaveFile(path string) error {
	data, err := json.MarshalIndent(m.Document(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal flows: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write flows file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close flows file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename flows file: %w", err)
	}

	m.logger.Info("flows saved", "path", path, "count", m.Len())
	return nil
}

// LoadFile загружает коллекцию flows из файла.
func (m *Manager) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read flows file: %w", err)
	}
	return m.LoadJSON(data)
}

// Save сохраняет коллекцию flows во внешнее хранилище.
func (m *Manager) Save(ctx context.Context, store Store) error {
	if err := store.SaveDocument(ctx, m.Document()); err != nil {
		return fmt.Errorf("save flows: %w", err)
	}
	return nil
}

// Load загружает коллекцию flows из внешнего хранилища.
func (m *Manager) Load(ctx context.Context, store Store) error {
	doc, err := store.LoadDocument(ctx)
	if err != nil {
		return fmt.Errorf("load flows: %w", err)
	}
	return m.LoadDocument(doc)
}
