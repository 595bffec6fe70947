package steps

import (
	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
)

// Стандартные шаблоны flows.
const (
	// FlowTypeFileAnalysis — file_info → file_category по всем четырём портам.
	// Путь к файлу задаётся параметром file_path task "info".
	FlowTypeFileAnalysis = "file_analysis"

	// FlowTypeGreeting — constant → echo.
	FlowTypeGreeting = "greeting"
)

// DefaultFlowRegistry создаёт реестр со стандартными шаблонами flows.
func DefaultFlowRegistry() *engine.FlowRegistry {
	r := engine.NewFlowRegistry()
	RegisterFlows(r)
	return r
}

// RegisterFlows регистрирует стандартные шаблоны flows.
func RegisterFlows(r *engine.FlowRegistry) {
	r.Register(FlowTypeFileAnalysis, engine.FlowTemplate(fileAnalysisTemplate()))
	r.Register(FlowTypeGreeting, engine.FlowTemplate(greetingTemplate()))
}

func fileAnalysisTemplate() domain.FlowDocument {
	return domain.FlowDocument{
		Tasks: []domain.TaskDocument{
			{TaskID: "info", TaskType: TypeFileInfo},
			{TaskID: "category", TaskType: TypeFileCategory},
		},
		Connections: []string{
			"info.file_path->category.file_path",
			"info.file_size->category.file_size",
			"info.last_modified->category.last_modified",
			"info.completed->category.completed",
		},
	}
}

func greetingTemplate() domain.FlowDocument {
	return domain.FlowDocument{
		Tasks: []domain.TaskDocument{
			{TaskID: "source", TaskType: TypeConstant, Params: map[string]any{"value": "hello"}},
			{TaskID: "echo", TaskType: TypeEcho},
		},
		Connections: []string{"source.out->echo.in"},
	}
}
