package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskflow/internal/domain"
)

func greetingTemplate() domain.FlowDocument {
	return domain.FlowDocument{
		FlowID: "ignored",
		Tasks: []domain.TaskDocument{
			{TaskID: "p", TaskType: "producer", Params: map[string]any{"value": "hello"}},
			{TaskID: "s", TaskType: "sink"},
		},
		Connections: []string{"p.out->s.in"},
	}
}

func TestFlowRegistry_CreateUnknown(t *testing.T) {
	r := NewFlowRegistry()

	f, err := r.Create(NewManager(newTestRegistry()), "missing", "x")
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrUnknownFlowType)
}

func TestFlowRegistry_TypesAndInvalidRegistration(t *testing.T) {
	r := NewFlowRegistry()
	r.Register("b", FlowTemplate(greetingTemplate()))
	r.Register("a", FlowTemplate(greetingTemplate()))
	r.Register("", FlowTemplate(greetingTemplate()))
	r.Register("nil", nil)

	assert.Equal(t, []string{"a", "b"}, r.Types())
	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("nil"))
}

func TestFlowRegistry_BadCreators(t *testing.T) {
	r := NewFlowRegistry()
	r.Register("nil", func(*Manager, string) (*Flow, error) { return nil, nil })
	r.Register("panic", func(*Manager, string) (*Flow, error) { panic("boom") })
	r.Register("error", func(*Manager, string) (*Flow, error) { return nil, errors.New("broken") })
	m := NewManager(newTestRegistry())

	_, err := r.Create(m, "nil", "x")
	assert.ErrorIs(t, err, ErrNilFlow)

	_, err = r.Create(m, "panic", "x")
	assert.ErrorContains(t, err, "panicked")

	_, err = r.Create(m, "error", "x")
	assert.ErrorContains(t, err, "broken")
}

func TestFlowTemplate_UnknownTaskType(t *testing.T) {
	r := NewFlowRegistry()
	r.Register("bad", FlowTemplate(domain.FlowDocument{
		Tasks: []domain.TaskDocument{{TaskID: "a", TaskType: "Unregistered"}},
	}))

	_, err := r.Create(NewManager(newTestRegistry()), "bad", "x")
	assert.ErrorIs(t, err, ErrUnknownTaskType)
}

func TestManager_CreateFlowFromType(t *testing.T) {
	obs := &recordingObserver{}
	fr := NewFlowRegistry()
	fr.Register("greeting", FlowTemplate(greetingTemplate()))

	m := NewManager(newTestRegistry(),
		WithFlowRegistry(fr),
		WithFlowOptions(WithObserver(obs)),
	)
	assert.Same(t, fr, m.FlowRegistry())
	assert.Equal(t, []string{"greeting"}, m.AvailableFlowTypes())

	f, replaced, err := m.CreateFlowFromType("greeting", "first")
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, "first", f.ID())
	assert.Equal(t, []string{"p.out->s.in"}, f.Document().Connections)

	// Каждый вызов строит независимый flow
	second, _, err := m.CreateFlowFromType("greeting", "second")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, m.FlowIDs())
	first, _ := f.Task("p")
	other, _ := second.Task("p")
	assert.NotSame(t, first, other)

	_, replaced, err = m.CreateFlowFromType("greeting", "first")
	require.NoError(t, err)
	assert.True(t, replaced)

	state, err := m.Execute(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, domain.FlowStateSuccess, state)
	require.Len(t, obs.flows, 1)

	_, _, err = m.CreateFlowFromType("missing", "x")
	assert.ErrorIs(t, err, ErrUnknownFlowType)
	assert.Len(t, m.FlowIDs(), 2)
}

func TestManager_DefaultFlowRegistryEmpty(t *testing.T) {
	m := NewManager(nil)
	require.NotNil(t, m.FlowRegistry())
	assert.Empty(t, m.AvailableFlowTypes())
}
