package steps

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
)

const (
	// TypeFileInfo — task чтения метаданных файла.
	TypeFileInfo = "file_info"

	// TypeFileCategory — task классификации файла по размеру.
	TypeFileCategory = "file_category"

	// Границы категорий размера.
	mediumFileThreshold = 1024
	largeFileThreshold  = 1024 * 1024
)

// Категории файлов.
const (
	CategorySmall  = "small"
	CategoryMedium = "medium"
	CategoryLarge  = "large"
)

// FileInfoTask читает метаданные файла.
//
// Путь берётся из порта file_path (если подключён), иначе из параметра file_path.
//
// Outputs: file_path, file_size, last_modified (RFC 3339), completed, error.
type FileInfoTask struct {
	*engine.BaseTask
}

// NewFileInfoTask создаёт FileInfoTask.
func NewFileInfoTask() *FileInfoTask {
	t := &FileInfoTask{BaseTask: engine.NewBaseTask(TypeFileInfo)}
	t.AddInputPort("file_path", domain.ValueTypeString)
	t.AddOutputPort("file_path", domain.ValueTypeString)
	t.AddOutputPort("file_size", domain.ValueTypeNumber)
	t.AddOutputPort("last_modified", domain.ValueTypeString)
	t.AddOutputPort("completed", domain.ValueTypeBoolean)
	t.AddOutputPort(PortError, domain.ValueTypeString)
	t.AddParam("file_path", "")
	return t
}

// Execute реализует engine.Task.
func (t *FileInfoTask) Execute(ctx context.Context) domain.TaskState {
	if err := ctx.Err(); err != nil {
		return cancelled(t.BaseTask, err)
	}

	path := toString(t.InputValue("file_path"))
	if path == "" {
		path = t.ParamString("file_path")
	}
	if path == "" {
		return fail(t.BaseTask, fmt.Errorf("%w: %s: file path is empty", ErrInvalidConfig, TypeFileInfo))
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fail(t.BaseTask, fmt.Errorf("file does not exist: %s", path))
		}
		return fail(t.BaseTask, fmt.Errorf("stat %s: %w", path, err))
	}
	if info.IsDir() {
		return fail(t.BaseTask, fmt.Errorf("path is a directory: %s", path))
	}

	t.SetOutputValue("file_path", path)
	t.SetOutputValue("file_size", info.Size())
	t.SetOutputValue("last_modified", info.ModTime().UTC().Format(time.RFC3339))
	t.SetOutputValue("completed", true)

	t.Logger().Debug("file processed", "task_id", t.ID(), "path", path, "size", info.Size())
	return domain.TaskStateSuccess
}

// FileCategoryTask классифицирует файл по размеру: small, medium, large.
//
// Требует completed=true на входе (результат FileInfoTask).
//
// Outputs: analysis_result, file_category, analyzed_file, analysis_timestamp,
// completed, error.
type FileCategoryTask struct {
	*engine.BaseTask
	now func() time.Time
}

// NewFileCategoryTask создаёт FileCategoryTask.
func NewFileCategoryTask() *FileCategoryTask {
	t := &FileCategoryTask{
		BaseTask: engine.NewBaseTask(TypeFileCategory),
		now:      time.Now,
	}
	t.AddInputPort("file_path", domain.ValueTypeString)
	t.AddInputPort("file_size", domain.ValueTypeNumber)
	t.AddInputPort("last_modified", domain.ValueTypeString)
	t.AddInputPort("completed", domain.ValueTypeBoolean)

	t.AddOutputPort("analysis_result", domain.ValueTypeString)
	t.AddOutputPort("file_category", domain.ValueTypeString)
	t.AddOutputPort("analyzed_file", domain.ValueTypeString)
	t.AddOutputPort("analysis_timestamp", domain.ValueTypeString)
	t.AddOutputPort("completed", domain.ValueTypeBoolean)
	t.AddOutputPort(PortError, domain.ValueTypeString)
	return t
}

// Execute реализует engine.Task.
func (t *FileCategoryTask) Execute(ctx context.Context) domain.TaskState {
	if err := ctx.Err(); err != nil {
		return cancelled(t.BaseTask, err)
	}

	if done, _ := t.InputValue("completed").(bool); !done {
		return fail(t.BaseTask, fmt.Errorf("%w: completed", ErrMissingInput))
	}

	size, ok := toInt64(t.InputValue("file_size"))
	if !ok {
		return fail(t.BaseTask, fmt.Errorf("%w: file_size", ErrMissingInput))
	}
	path := toString(t.InputValue("file_path"))

	category := Categorize(size)
	result := map[string]string{
		CategorySmall:  "Small file detected",
		CategoryMedium: "Medium file detected",
		CategoryLarge:  "Large file detected",
	}[category]

	t.SetOutputValue("analysis_result", result)
	t.SetOutputValue("file_category", category)
	t.SetOutputValue("analyzed_file", path)
	t.SetOutputValue("analysis_timestamp", t.now().UTC().Format(time.RFC3339))
	t.SetOutputValue("completed", true)

	t.Logger().Debug("file categorized", "task_id", t.ID(), "path", path, "category", category)
	return domain.TaskStateSuccess
}

// Categorize возвращает категорию файла по размеру в байтах.
func Categorize(size int64) string {
	switch {
	case size > largeFileThreshold:
		return CategoryLarge
	case size > mediumFileThreshold:
		return CategoryMedium
	default:
		return CategorySmall
	}
}
