package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Taskflow/internal/engine"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeInvalidFlow   ErrorCode = "INVALID_FLOW"
	ErrCodeUnavailable   ErrorCode = "UNAVAILABLE"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — ответ с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	TaskID  string    `json:"task_id,omitempty"`
	Field   string    `json:"field,omitempty"`
}

// DataResponse — успешный ответ.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — ответ со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success отправляет 200 с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created отправляет 201 с данными.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, DataResponse{Data: data})
}

// Accepted отправляет 202 с данными.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, DataResponse{Data: data})
}

// NoContent отправляет 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// List отправляет ответ со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// BadRequest отправляет 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound отправляет 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// Unavailable отправляет 503.
func Unavailable(w http.ResponseWriter, message string) {
	Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// InternalError логирует ошибку и отправляет 500.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// HandleEngineError преобразует ошибку движка в HTTP ответ.
// Возвращает false, если err == nil.
func HandleEngineError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	var loadErr *engine.LoadError
	switch {
	case errors.Is(err, engine.ErrFlowNotFound):
		NotFound(w, "flow not found")
	case errors.Is(err, engine.ErrUnknownFlowType):
		NotFound(w, "flow type not found")
	case errors.As(err, &loadErr):
		JSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ErrorDetail{
			Code:    ErrCodeInvalidFlow,
			Message: loadErr.Error(),
			TaskID:  loadErr.TaskID,
			Field:   loadErr.Field,
		}})
	case errors.Is(err, engine.ErrCyclicDependency),
		errors.Is(err, engine.ErrInvalidConnection),
		errors.Is(err, engine.ErrInvalidIdentifier),
		errors.Is(err, engine.ErrMalformedDocument):
		Error(w, http.StatusUnprocessableEntity, ErrCodeInvalidFlow, err.Error())
	default:
		InternalError(w, logger, err)
	}
	return true
}
