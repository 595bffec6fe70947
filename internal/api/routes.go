package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		RequestID(),
		Logging(h.logger),
	)

	// Task types
	mux.Handle("GET /api/v1/task-types", chain(http.HandlerFunc(h.ListTaskTypes)))

	// Flow types
	mux.Handle("GET /api/v1/flow-types", chain(http.HandlerFunc(h.ListFlowTypes)))
	mux.Handle("POST /api/v1/flow-types/{type}/flows", chain(http.HandlerFunc(h.CreateFlowFromType)))

	// Flows
	mux.Handle("GET /api/v1/flows", chain(http.HandlerFunc(h.ListFlows)))
	mux.Handle("GET /api/v1/flows/{id}", chain(http.HandlerFunc(h.GetFlow)))
	mux.Handle("PUT /api/v1/flows/{id}", chain(http.HandlerFunc(h.PutFlow)))
	mux.Handle("DELETE /api/v1/flows/{id}", chain(http.HandlerFunc(h.DeleteFlow)))

	// Execution
	mux.Handle("GET /api/v1/flows/{id}/order", chain(http.HandlerFunc(h.GetFlowOrder)))
	mux.Handle("POST /api/v1/flows/{id}/execute", chain(http.HandlerFunc(h.ExecuteFlow)))
}
