package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Taskflow/internal/engine"
	"github.com/shaiso/Taskflow/internal/repo"
	"github.com/shaiso/Taskflow/internal/steps"
)

// WorkspaceFunc лениво открывает Workspace после парсинга флагов.
type WorkspaceFunc func(ctx context.Context) (*Workspace, error)

// Workspace — коллекция flows, загруженная из хранилища.
type Workspace struct {
	Manager *engine.Manager

	store   engine.Store
	closeFn func()
}

// OpenWorkspace открывает хранилище по конфигурации и загружает из него flows.
// Tasks создаются по стандартному реестру steps.
func OpenWorkspace(ctx context.Context, cfg repo.Config, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, closeFn, err := repo.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	manager := engine.NewManager(steps.DefaultRegistry(),
		engine.WithManagerLogger(logger),
		engine.WithFlowRegistry(steps.DefaultFlowRegistry()),
		engine.WithFlowOptions(engine.WithLogger(logger)),
	)
	if err := manager.Load(ctx, store); err != nil {
		closeFn()
		return nil, err
	}

	return &Workspace{Manager: manager, store: store, closeFn: closeFn}, nil
}

// Flow возвращает flow по ID или ошибку с engine.ErrFlowNotFound.
func (w *Workspace) Flow(id string) (*engine.Flow, error) {
	f, ok := w.Manager.Flow(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrFlowNotFound, id)
	}
	return f, nil
}

// Save сохраняет коллекцию flows обратно в хранилище.
func (w *Workspace) Save(ctx context.Context) error {
	return w.Manager.Save(ctx, w.store)
}

// Close закрывает хранилище.
func (w *Workspace) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}
