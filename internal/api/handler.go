package api

import (
	"log/slog"

	"github.com/shaiso/Taskflow/internal/engine"
	"github.com/shaiso/Taskflow/internal/mq"
)

// Handler — обработчик API поверх engine.Manager.
type Handler struct {
	manager   *engine.Manager
	store     engine.Store
	publisher mq.MessagePublisher
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	// Manager — коллекция flows (обязателен).
	Manager *engine.Manager

	// Store — хранилище; после изменения flows коллекция сохраняется.
	// nil — изменения живут только в памяти.
	Store engine.Store

	// Publisher — для асинхронного выполнения через flows.execute.
	// nil — ?async=true недоступен.
	Publisher mq.MessagePublisher

	Logger *slog.Logger
}

// NewHandler создаёт Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		manager:   cfg.Manager,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}
