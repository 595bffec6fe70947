package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "Success", TaskStateSuccess.String())
	assert.Equal(t, "Unknown", TaskState("").String())
	assert.Equal(t, "Cancelled", FlowStateCancelled.String())
	assert.Equal(t, "Unknown", FlowState("").String())

	assert.True(t, TaskStateSuccess.IsSuccess())
	assert.False(t, TaskStateFailed.IsSuccess())
	assert.True(t, FlowStateSuccess.IsSuccess())
	assert.False(t, FlowStateCancelled.IsSuccess())
}

func TestFlowStateFromTask(t *testing.T) {
	assert.Equal(t, FlowStateSuccess, FlowStateFromTask(TaskStateSuccess))
	assert.Equal(t, FlowStateCancelled, FlowStateFromTask(TaskStateCancelled))
	assert.Equal(t, FlowStateFailed, FlowStateFromTask(TaskStateFailed))
	assert.Equal(t, FlowStateFailed, FlowStateFromTask("bogus"))
}

func TestParseValueType(t *testing.T) {
	for _, s := range []string{"", "Any", "String", "Number", "Boolean"} {
		_, err := ParseValueType(s)
		assert.NoError(t, err, s)
	}

	vt, err := ParseValueType("")
	require.NoError(t, err)
	assert.Equal(t, ValueTypeAny, vt)

	_, err = ParseValueType("Date")
	assert.Error(t, err)
}

func TestValueType_CompatibleWith(t *testing.T) {
	assert.True(t, ValueTypeAny.CompatibleWith(ValueTypeString))
	assert.True(t, ValueTypeNumber.CompatibleWith(""))
	assert.True(t, ValueTypeString.CompatibleWith(ValueTypeString))
	assert.False(t, ValueTypeString.CompatibleWith(ValueTypeNumber))
}

func TestValueType_Accepts(t *testing.T) {
	tests := []struct {
		vt   ValueType
		v    any
		want bool
	}{
		{ValueTypeString, "x", true},
		{ValueTypeString, 1, false},
		{ValueTypeNumber, 1, true},
		{ValueTypeNumber, 1.5, true},
		{ValueTypeNumber, json.Number("3"), true},
		{ValueTypeNumber, "3", false},
		{ValueTypeBoolean, true, true},
		{ValueTypeBoolean, "true", false},
		{ValueTypeAny, struct{}{}, true},
		{ValueTypeNumber, nil, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.vt.Accepts(tt.v), "%s accepts %#v", tt.vt, tt.v)
	}
}

func TestFlowDocument_JSONShape(t *testing.T) {
	doc := FlowDocument{
		FlowID:      "f",
		Tasks:       []TaskDocument{{TaskID: "a", TaskType: "echo"}},
		Connections: []string{"a.out->b.in"},
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"flowId":"f","tasks":[{"taskId":"a","taskType":"echo"}],"connections":["a.out->b.in"]}`,
		string(data))
}
