package engine

import "errors"

// Структурные ошибки: операция отклонена и ничего не изменила.
var (
	// ErrNilTask — передана nil task.
	ErrNilTask = errors.New("task is nil")

	// ErrEmptyTaskID — task не имеет ID.
	ErrEmptyTaskID = errors.New("task has empty ID")

	// ErrInvalidIdentifier — ID task или имя порта содержит "." или "->".
	ErrInvalidIdentifier = errors.New("identifier contains connection separator")

	// ErrDuplicateTask — task с таким ID уже есть во flow.
	ErrDuplicateTask = errors.New("duplicate task ID")

	// ErrTaskOwned — task уже принадлежит другому flow.
	ErrTaskOwned = errors.New("task already belongs to another flow")

	// ErrNilPort — передан nil порт.
	ErrNilPort = errors.New("port is nil")

	// ErrPortDirection — источник не output или приёмник не input.
	ErrPortDirection = errors.New("connection must go from output port to input port")

	// ErrTaskNotInFlow — task порта не принадлежит этому flow.
	ErrTaskNotInFlow = errors.New("task is not part of the flow")

	// ErrPortNotFound — у task нет порта с таким именем.
	ErrPortNotFound = errors.New("port not found")

	// ErrSelfConnection — связь task с самой собой.
	ErrSelfConnection = errors.New("connection source and target belong to the same task")

	// ErrInputOccupied — у input порта уже есть входящая связь.
	ErrInputOccupied = errors.New("input port already has an incoming connection")

	// ErrIncompatibleTypes — типы портов несовместимы (только при TypeCheckStrict).
	ErrIncompatibleTypes = errors.New("incompatible port value types")

	// ErrNilFlow — передан nil flow.
	ErrNilFlow = errors.New("flow is nil")

	// ErrEmptyFlowID — flow не имеет ID.
	ErrEmptyFlowID = errors.New("flow has empty ID")

	// ErrFlowNotFound — flow не найден в менеджере.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrUnknownFlowType — шаблон flow не зарегистрирован.
	ErrUnknownFlowType = errors.New("unknown flow type")
)

// Ошибки валидации графа.
var (
	// ErrInvalidConnection — связь ссылается на отсутствующую task или порт.
	ErrInvalidConnection = errors.New("invalid connection")

	// ErrCyclicDependency — обнаружен цикл в графе.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrEmptyFlow — flow не содержит tasks.
	ErrEmptyFlow = errors.New("flow has no tasks")
)

// Ошибки сериализации: загрузка отклоняется целиком.
var (
	// ErrUnknownTaskType — тип task не зарегистрирован в реестре.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrMalformedDocument — документ не удалось разобрать.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrMalformedConnection — строка связи не в формате "a.x->b.y".
	ErrMalformedConnection = errors.New("malformed connection string")

	// ErrNilRegistry — загрузка без реестра типов.
	ErrNilRegistry = errors.New("task registry is nil")
)

// LoadError — ошибка загрузки flow с контекстом.
type LoadError struct {
	FlowID  string // ID flow, где произошла ошибка
	TaskID  string // ID task (если применимо)
	Field   string // поле документа, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *LoadError) Error() string {
	msg := e.Message
	if e.TaskID != "" {
		msg = "task " + e.TaskID + ": " + msg
	}
	if e.FlowID != "" {
		msg = "flow " + e.FlowID + ": " + msg
	}
	return msg
}

// Unwrap возвращает базовую ошибку.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError создаёт новую ошибку загрузки.
func NewLoadError(flowID, taskID, field, message string, err error) *LoadError {
	return &LoadError{
		FlowID:  flowID,
		TaskID:  taskID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
