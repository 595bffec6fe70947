package steps

import (
	"context"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
)

const (
	// TypeConstant — task, выдающая значение параметра.
	TypeConstant = "constant"

	// TypeEcho — task, передающая вход на выход.
	TypeEcho = "echo"

	// TypeConcat — task, склеивающая два входа.
	TypeConcat = "concat"
)

// ConstantTask пишет параметр value в порт out.
//
// Параметры:
//
//	{"value": "hello"}
type ConstantTask struct {
	*engine.BaseTask
}

// NewConstantTask создаёт ConstantTask.
func NewConstantTask() *ConstantTask {
	t := &ConstantTask{BaseTask: engine.NewBaseTask(TypeConstant)}
	t.AddOutputPort(PortOut)
	t.AddParam("value", nil)
	return t
}

// Execute реализует engine.Task.
func (t *ConstantTask) Execute(context.Context) domain.TaskState {
	v, _ := t.Param("value")
	t.SetOutputValue(PortOut, v)
	return domain.TaskStateSuccess
}

// EchoTask передаёт значение in в out без изменений.
type EchoTask struct {
	*engine.BaseTask
}

// NewEchoTask создаёт EchoTask.
func NewEchoTask() *EchoTask {
	t := &EchoTask{BaseTask: engine.NewBaseTask(TypeEcho)}
	t.AddInputPort(PortIn)
	t.AddOutputPort(PortOut)
	return t
}

// Execute реализует engine.Task.
func (t *EchoTask) Execute(context.Context) domain.TaskState {
	t.SetOutputValue(PortOut, t.InputValue(PortIn))
	return domain.TaskStateSuccess
}

// ConcatTask склеивает строковые формы входов a и b через separator.
//
// Параметры:
//
//	{"separator": " "}
type ConcatTask struct {
	*engine.BaseTask
}

// NewConcatTask создаёт ConcatTask.
func NewConcatTask() *ConcatTask {
	t := &ConcatTask{BaseTask: engine.NewBaseTask(TypeConcat)}
	t.AddInputPort("a")
	t.AddInputPort("b")
	t.AddOutputPort(PortOut, domain.ValueTypeString)
	t.AddParam("separator", "")
	return t
}

// Execute реализует engine.Task.
func (t *ConcatTask) Execute(context.Context) domain.TaskState {
	a := toString(t.InputValue("a"))
	b := toString(t.InputValue("b"))
	t.SetOutputValue(PortOut, a+t.ParamString("separator")+b)
	return domain.TaskStateSuccess
}
