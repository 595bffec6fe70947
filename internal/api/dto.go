package api

import (
	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
)

// FlowSummary — краткое описание flow для списка.
type FlowSummary struct {
	FlowID      string `json:"flow_id"`
	Tasks       int    `json:"tasks"`
	Connections int    `json:"connections"`
}

// FlowSummaryFromEngine конвертирует engine.Flow в FlowSummary.
func FlowSummaryFromEngine(f *engine.Flow) FlowSummary {
	return FlowSummary{
		FlowID:      f.ID(),
		Tasks:       f.Len(),
		Connections: len(f.Connections()),
	}
}

// TaskTypesResponse — зарегистрированные типы tasks.
type TaskTypesResponse struct {
	Types []string `json:"types"`
}

// FlowTypesResponse — зарегистрированные шаблоны flows.
type FlowTypesResponse struct {
	Types []string `json:"types"`
}

// CreateFromTypeRequest — запрос на создание flow по шаблону.
// Пустой FlowID — ID генерируется.
type CreateFromTypeRequest struct {
	FlowID string `json:"flow_id"`
}

// OrderResponse — порядок выполнения flow.
type OrderResponse struct {
	FlowID string     `json:"flow_id"`
	Order  []string   `json:"order"`
	Layers [][]string `json:"layers"`
}

// OrderFromLayers строит OrderResponse из слоёв топологического порядка.
func OrderFromLayers(flowID string, layers [][]engine.Task) OrderResponse {
	resp := OrderResponse{
		FlowID: flowID,
		Order:  []string{},
		Layers: make([][]string, len(layers)),
	}
	for i, layer := range layers {
		ids := make([]string, len(layer))
		for j, t := range layer {
			ids[j] = t.ID()
		}
		resp.Layers[i] = ids
		resp.Order = append(resp.Order, ids...)
	}
	return resp
}

// ExecuteResponse — результат синхронного выполнения flow.
type ExecuteResponse struct {
	FlowID     string                    `json:"flow_id"`
	State      domain.FlowState          `json:"state"`
	DurationMs int64                     `json:"duration_ms"`
	Outputs    map[string]map[string]any `json:"outputs"`
}

// ExecuteAcceptedResponse — ответ на асинхронный запуск.
type ExecuteAcceptedResponse struct {
	FlowID    string `json:"flow_id"`
	RequestID string `json:"request_id"`
}

