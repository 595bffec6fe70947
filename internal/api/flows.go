package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/mq"
	"github.com/shaiso/Taskflow/internal/telemetry"
)

// ListTaskTypes возвращает зарегистрированные типы tasks.
// GET /api/v1/task-types
func (h *Handler) ListTaskTypes(w http.ResponseWriter, r *http.Request) {
	Success(w, TaskTypesResponse{Types: h.manager.AvailableTaskTypes()})
}

// ListFlowTypes возвращает зарегистрированные шаблоны flows.
// GET /api/v1/flow-types
func (h *Handler) ListFlowTypes(w http.ResponseWriter, r *http.Request) {
	Success(w, FlowTypesResponse{Types: h.manager.AvailableFlowTypes()})
}

// CreateFlowFromType создаёт flow по шаблону. Тело запроса необязательно.
// POST /api/v1/flow-types/{type}/flows
func (h *Handler) CreateFlowFromType(w http.ResponseWriter, r *http.Request) {
	var req CreateFromTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	f, replaced, err := h.manager.CreateFlowFromType(r.PathValue("type"), req.FlowID)
	if HandleEngineError(w, h.logger, err) {
		return
	}

	if !h.persist(w, r) {
		return
	}

	if replaced {
		Success(w, f.Document())
		return
	}
	Created(w, f.Document())
}

// ListFlows возвращает список всех flows.
// GET /api/v1/flows
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	flows := h.manager.Flows()

	result := make([]FlowSummary, len(flows))
	for i, f := range flows {
		result[i] = FlowSummaryFromEngine(f)
	}

	List(w, result, len(result))
}

// GetFlow возвращает документ flow.
// GET /api/v1/flows/{id}
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	f, ok := h.manager.Flow(r.PathValue("id"))
	if !ok {
		NotFound(w, "flow not found")
		return
	}

	Success(w, f.Document())
}

// PutFlow создаёт или заменяет flow из документа.
// PUT /api/v1/flows/{id}
func (h *Handler) PutFlow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var doc domain.FlowDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if doc.FlowID == "" {
		doc.FlowID = id
	}
	if doc.FlowID != id {
		BadRequest(w, "flowId does not match path")
		return
	}

	f, replaced, err := h.manager.AddFlowDocument(doc)
	if HandleEngineError(w, h.logger, err) {
		return
	}

	if !h.persist(w, r) {
		return
	}

	if replaced {
		Success(w, f.Document())
		return
	}
	Created(w, f.Document())
}

// DeleteFlow удаляет flow.
// DELETE /api/v1/flows/{id}
func (h *Handler) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	if !h.manager.RemoveFlow(r.PathValue("id")) {
		NotFound(w, "flow not found")
		return
	}

	if !h.persist(w, r) {
		return
	}

	NoContent(w)
}

// GetFlowOrder возвращает порядок выполнения flow.
// GET /api/v1/flows/{id}/order
func (h *Handler) GetFlowOrder(w http.ResponseWriter, r *http.Request) {
	f, ok := h.manager.Flow(r.PathValue("id"))
	if !ok {
		NotFound(w, "flow not found")
		return
	}

	if err := f.Validate(); HandleEngineError(w, h.logger, err) {
		return
	}

	layers, err := f.ExecutionLayers()
	if HandleEngineError(w, h.logger, err) {
		return
	}

	Success(w, OrderFromLayers(f.ID(), layers))
}

// ExecuteFlow выполняет flow.
// POST /api/v1/flows/{id}/execute
//
// По умолчанию выполнение синхронное: ответ содержит итоговое состояние
// и значения output портов. С ?async=true запрос публикуется в очередь
// flows.execute и сразу возвращается 202.
func (h *Handler) ExecuteFlow(w http.ResponseWriter, r *http.Request) {
	f, ok := h.manager.Flow(r.PathValue("id"))
	if !ok {
		NotFound(w, "flow not found")
		return
	}

	async := false
	if v := r.URL.Query().Get("async"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			BadRequest(w, "invalid async parameter")
			return
		}
		async = parsed
	}

	if async {
		h.executeAsync(w, r, f.ID())
		return
	}

	ctx := mq.WithRequestID(r.Context(), r.Header.Get(HeaderRequestID))
	start := time.Now()
	state, outputs := f.ExecuteWithOutputs(ctx)

	Success(w, ExecuteResponse{
		FlowID:     f.ID(),
		State:      state,
		DurationMs: time.Since(start).Milliseconds(),
		Outputs:    outputs,
	})
}

func (h *Handler) executeAsync(w http.ResponseWriter, r *http.Request, flowID string) {
	if h.publisher == nil {
		Unavailable(w, "async execution is not configured")
		return
	}

	requestID, err := mq.RequestExecute(r.Context(), h.publisher, flowID)
	if err != nil {
		InternalError(w, telemetry.FromContext(r.Context()), err)
		return
	}

	Accepted(w, ExecuteAcceptedResponse{FlowID: flowID, RequestID: requestID})
}

// persist сохраняет коллекцию flows в хранилище, если оно задано.
// При ошибке отправляет 500 и возвращает false.
func (h *Handler) persist(w http.ResponseWriter, r *http.Request) bool {
	if h.store == nil {
		return true
	}
	if err := h.manager.Save(r.Context(), h.store); err != nil {
		InternalError(w, telemetry.FromContext(r.Context()), err)
		return false
	}
	return true
}
