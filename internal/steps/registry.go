package steps

import (
	"github.com/shaiso/Taskflow/internal/engine"
)

// DefaultRegistry создаёт реестр со всеми стандартными типами tasks.
func DefaultRegistry() *engine.Registry {
	r := engine.NewRegistry()
	Register(r)
	return r
}

// Register регистрирует стандартные типы tasks в реестре.
// Уже зарегистрированные типы с теми же именами перезаписываются.
func Register(r *engine.Registry) {
	r.Register(TypeConstant, func() engine.Task { return NewConstantTask() })
	r.Register(TypeEcho, func() engine.Task { return NewEchoTask() })
	r.Register(TypeConcat, func() engine.Task { return NewConcatTask() })
	r.Register(TypeTemplate, func() engine.Task { return NewTemplateTask() })
	r.Register(TypeTransform, func() engine.Task { return NewTransformTask() })
	r.Register(TypeDelay, func() engine.Task { return NewDelayTask() })
	r.Register(TypeHTTP, func() engine.Task { return NewHTTPTask() })
	r.Register(TypeFileInfo, func() engine.Task { return NewFileInfoTask() })
	r.Register(TypeFileCategory, func() engine.Task { return NewFileCategoryTask() })
}
