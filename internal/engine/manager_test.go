package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskflow/internal/domain"
)

// memoryStore — Store в памяти для тестов.
type memoryStore struct {
	doc     domain.ManagerDocument
	saveErr error
	loadErr error
}

func (s *memoryStore) SaveDocument(_ context.Context, doc domain.ManagerDocument) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.doc = doc
	return nil
}

func (s *memoryStore) LoadDocument(context.Context) (domain.ManagerDocument, error) {
	return s.doc, s.loadErr
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	reg := newTestRegistry()
	m := NewManager(reg)
	require.NoError(t, m.AddFlow(buildRegistryFlow(t, reg)))

	second := m.CreateFlow("second")
	_, err := second.CreateTask(reg, "producer", "only", map[string]any{"value": "v"})
	require.NoError(t, err)
	return m
}

func TestManager_AddFlowRejections(t *testing.T) {
	m := NewManager(nil)

	assert.ErrorIs(t, m.AddFlow(nil), ErrNilFlow)
	assert.ErrorIs(t, m.AddFlow(&Flow{}), ErrEmptyFlowID)
	assert.Equal(t, 0, m.Len())
	assert.NotNil(t, m.Registry())
}

func TestManager_ReplaceClearsPreviousFlow(t *testing.T) {
	m := NewManager(newTestRegistry())

	old := NewFlow("f")
	mustAdd(t, old, newSink("a"))
	require.NoError(t, m.AddFlow(old))

	replacement := NewFlow("f")
	require.NoError(t, m.AddFlow(replacement))

	got, ok := m.Flow("f")
	require.True(t, ok)
	assert.Same(t, replacement, got)
	assert.Equal(t, 0, old.Len())
	assert.Equal(t, 1, m.Len())

	// Повторное добавление того же flow не очищает его
	mustAdd(t, replacement, newSink("b"))
	require.NoError(t, m.AddFlow(replacement))
	assert.Equal(t, 1, replacement.Len())
}

func TestManager_FlowMiss(t *testing.T) {
	m := NewManager(nil)

	f, ok := m.Flow("missing")
	assert.False(t, ok)
	assert.Nil(t, f)
	assert.False(t, m.HasFlow("missing"))
	assert.False(t, m.RemoveFlow("missing"))
}

func TestManager_FlowsSorted(t *testing.T) {
	m := NewManager(nil)
	m.CreateFlow("b")
	m.CreateFlow("a")
	m.CreateFlow("c")

	assert.Equal(t, []string{"a", "b", "c"}, m.FlowIDs())

	require.True(t, m.RemoveFlow("b"))
	assert.Equal(t, []string{"a", "c"}, m.FlowIDs())

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestManager_AvailableTaskTypes(t *testing.T) {
	m := NewManager(newTestRegistry())
	assert.Equal(t, []string{"producer", "sink", "suffix"}, m.AvailableTaskTypes())
}

func TestManager_Execute(t *testing.T) {
	m := newTestManager(t)

	state, err := m.Execute(context.Background(), "pipeline")
	require.NoError(t, err)
	assert.Equal(t, domain.FlowStateSuccess, state)

	state, err = m.Execute(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrFlowNotFound)
	assert.Equal(t, domain.FlowStateFailed, state)
}

func TestManager_JSONRoundTrip(t *testing.T) {
	m := newTestManager(t)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, 2, raw["flowCount"])

	restored := NewManager(m.Registry())
	require.NoError(t, restored.LoadJSON(data))

	assert.Equal(t, m.Document(), restored.Document())
}

func TestManager_LoadIsAtomic(t *testing.T) {
	m := newTestManager(t)
	before := m.Document()

	bad := domain.ManagerDocument{
		Flows: []domain.FlowDocument{
			{FlowID: "ok", Tasks: []domain.TaskDocument{{TaskID: "a", TaskType: "sink"}}},
			{FlowID: "bad", Tasks: []domain.TaskDocument{{TaskID: "a", TaskType: "Unregistered"}}},
		},
		FlowCount: 2,
	}

	err := m.LoadDocument(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTaskType))

	// Содержимое менеджера не изменилось
	assert.Equal(t, before, m.Document())

	assert.ErrorIs(t, m.LoadJSON([]byte(`{"flows": [`)), ErrMalformedDocument)
	assert.Equal(t, before, m.Document())
}

func TestManager_LoadReplacesContents(t *testing.T) {
	m := newTestManager(t)
	old, _ := m.Flow("second")

	doc := domain.ManagerDocument{
		Flows: []domain.FlowDocument{
			{FlowID: "fresh", Tasks: []domain.TaskDocument{{TaskID: "a", TaskType: "sink"}}},
		},
		// flowCount информационный, расхождение только логируется
		FlowCount: 5,
	}
	require.NoError(t, m.LoadDocument(doc))

	assert.Equal(t, []string{"fresh"}, m.FlowIDs())
	assert.Equal(t, 0, old.Len())
}

func TestManager_FileRoundTrip(t *testing.T) {
	m := newTestManager(t)
	path := filepath.Join(t.TempDir(), "flows.json")

	require.NoError(t, m.SaveFile(path))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be renamed")

	restored := NewManager(m.Registry())
	require.NoError(t, restored.LoadFile(path))
	assert.Equal(t, m.Document(), restored.Document())

	err = restored.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestManager_StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	store := &memoryStore{}

	require.NoError(t, m.Save(ctx, store))
	assert.Equal(t, 2, store.doc.FlowCount)

	restored := NewManager(m.Registry())
	require.NoError(t, restored.Load(ctx, store))
	assert.Equal(t, m.Document(), restored.Document())

	failing := &memoryStore{saveErr: errors.New("disk full"), loadErr: errors.New("unavailable")}
	assert.Error(t, m.Save(ctx, failing))
	assert.Error(t, restored.Load(ctx, failing))
	assert.Equal(t, []string{"pipeline", "second"}, restored.FlowIDs())
}

func TestManager_FlowOptions(t *testing.T) {
	obs := &recordingObserver{}
	m := NewManager(newTestRegistry(), WithFlowOptions(WithObserver(obs)))

	f := m.CreateFlow("observed")
	mustAdd(t, f, newSink("a"))

	_, err := m.Execute(context.Background(), "observed")
	require.NoError(t, err)
	assert.Len(t, obs.flows, 1)
}

func TestManager_AddFlowDocument(t *testing.T) {
	obs := &recordingObserver{}
	m := NewManager(newTestRegistry(), WithFlowOptions(WithObserver(obs)))

	doc := domain.FlowDocument{
		FlowID: "doc",
		Tasks: []domain.TaskDocument{
			{TaskID: "p", TaskType: "producer", Params: map[string]any{"value": "x"}},
			{TaskID: "s", TaskType: "sink"},
		},
		Connections: []string{"p.out->s.in"},
	}

	f, replaced, err := m.AddFlowDocument(doc)
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Len(t, f.Connections(), 1)

	_, replaced, err = m.AddFlowDocument(doc)
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, 1, m.Len())

	// Опции менеджера применяются к построенному flow
	_, err = m.Execute(context.Background(), "doc")
	require.NoError(t, err)
	assert.Len(t, obs.flows, 1)

	doc.Tasks = append(doc.Tasks, domain.TaskDocument{TaskID: "u", TaskType: "unknown"})
	_, _, err = m.AddFlowDocument(doc)
	assert.ErrorIs(t, err, ErrUnknownTaskType)
	assert.Equal(t, 1, m.Len())
}
