package domain

// TaskState — результат выполнения одной task.
//
// Task возвращает состояние из Execute; паника внутри task
// преобразуется движком в TaskStateFailed.
type TaskState string

const (
	// TaskStateSuccess — task успешно выполнена.
	TaskStateSuccess TaskState = "Success"

	// TaskStateFailed — task завершилась ошибкой.
	TaskStateFailed TaskState = "Failed"

	// TaskStateCancelled — task кооперативно отменена.
	TaskStateCancelled TaskState = "Cancelled"
)

// String возвращает строковое представление TaskState.
func (s TaskState) String() string {
	if s == "" {
		return "Unknown"
	}
	return string(s)
}

// IsSuccess возвращает true для TaskStateSuccess.
func (s TaskState) IsSuccess() bool {
	return s == TaskStateSuccess
}

// FlowState — итог одного вызова Flow.Execute.
//
// Состояние терминально только для конкретного вызова:
// flow можно выполнять повторно.
//
//	Execute → Success
//	        ↘ Failed    (пустой граф, невалидная связь, цикл, упавшая task)
//	        ↘ Cancelled (task вернула Cancelled или отменён context)
type FlowState string

const (
	// FlowStateSuccess — все tasks выполнены успешно.
	FlowStateSuccess FlowState = "Success"

	// FlowStateFailed — выполнение прервано ошибкой.
	FlowStateFailed FlowState = "Failed"

	// FlowStateCancelled — выполнение отменено.
	FlowStateCancelled FlowState = "Cancelled"
)

// String возвращает строковое представление FlowState.
func (s FlowState) String() string {
	if s == "" {
		return "Unknown"
	}
	return string(s)
}

// IsSuccess возвращает true для FlowStateSuccess.
func (s FlowState) IsSuccess() bool {
	return s == FlowStateSuccess
}

// FlowStateFromTask переводит состояние упавшей или отменённой task
// в итог выполнения flow.
func FlowStateFromTask(s TaskState) FlowState {
	switch s {
	case TaskStateSuccess:
		return FlowStateSuccess
	case TaskStateCancelled:
		return FlowStateCancelled
	default:
		return FlowStateFailed
	}
}
