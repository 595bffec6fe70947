package worker

import "errors"

// Ошибки воркера.
var (
	// ErrInvalidRequest — сообщение flow.execute без flow_id или с битым payload.
	ErrInvalidRequest = errors.New("invalid execute request")

	// ErrFlowFailed — flow завершился не в состоянии Success.
	ErrFlowFailed = errors.New("flow did not succeed")

	// ErrWorkerStopped — выполнение прервано остановкой воркера.
	ErrWorkerStopped = errors.New("worker stopped")
)
