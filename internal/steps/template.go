package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
)

const (
	// TypeTemplate — task рендеринга строкового шаблона.
	TypeTemplate = "template"

	// TypeTransform — task трансформации данных через набор шаблонов.
	TypeTransform = "transform"
)

// Ошибки шаблонов.
var (
	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse error")

	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render error")
)

// TemplateData — данные, доступные в шаблоне:
//   - {{ .Inputs.in }}   — значения input портов
//   - {{ .Params.name }} — параметры task
type TemplateData struct {
	Inputs map[string]any `json:"inputs"`
	Params map[string]any `json:"params"`
}

// templateData собирает входы и параметры task.
func templateData(b *engine.BaseTask) *TemplateData {
	inputs := make(map[string]any)
	for _, p := range b.InputPorts() {
		inputs[p.Name()] = p.Value()
	}
	return &TemplateData{
		Inputs: inputs,
		Params: b.Params(),
	}
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — значение по умолчанию для пустого аргумента
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// coalesce — первое непустое значение
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if v != nil {
				if s, ok := v.(string); ok && s == "" {
					continue
				}
				return v
			}
		}
		return nil
	},

	"fromJSON": func(s string) any {
		var result any
		if err := json.Unmarshal([]byte(s), &result); err != nil {
			return nil
		}
		return result
	},

	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
	"split": func(sep, s string) []string {
		return strings.Split(s, sep)
	},

	"contains":  strings.Contains,
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"replace":   strings.ReplaceAll,
}

// Render рендерит строковый шаблон.
//
//	{{ .Inputs.in }}
//	{{ upper .Params.greeting }}
//	{{ if .Inputs.flag }}...{{ end }}
func Render(tmpl string, data *TemplateData) (string, error) {
	// Строка без выражений возвращается как есть
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// TemplateTask рендерит параметр template со значениями входов in, a, b.
//
// Параметры:
//
//	{"template": "Hello, {{ .Inputs.in }}!"}
type TemplateTask struct {
	*engine.BaseTask
}

// NewTemplateTask создаёт TemplateTask.
func NewTemplateTask() *TemplateTask {
	t := &TemplateTask{BaseTask: engine.NewBaseTask(TypeTemplate)}
	t.AddInputPort(PortIn)
	t.AddInputPort("a")
	t.AddInputPort("b")
	t.AddOutputPort(PortOut, domain.ValueTypeString)
	t.AddOutputPort(PortError, domain.ValueTypeString)
	t.AddParam("template", "")
	return t
}

// Execute реализует engine.Task.
func (t *TemplateTask) Execute(ctx context.Context) domain.TaskState {
	if err := ctx.Err(); err != nil {
		return cancelled(t.BaseTask, err)
	}

	tmpl := t.ParamString("template")
	if tmpl == "" {
		return fail(t.BaseTask, fmt.Errorf("%w: %s: template is required", ErrInvalidConfig, TypeTemplate))
	}

	out, err := Render(tmpl, templateData(t.BaseTask))
	if err != nil {
		return fail(t.BaseTask, err)
	}

	t.SetOutputValue(PortOut, out)
	return domain.TaskStateSuccess
}

// TransformTask рендерит каждый шаблон из mappings и пишет результат в out.
//
// Параметры:
//
//	{
//	    "mappings": {
//	        "name": "{{ .Inputs.in.name }}",
//	        "size": "{{ len .Inputs.in.items }}"
//	    }
//	}
//
// out — map[string]any; результат, похожий на JSON, разбирается в значение.
type TransformTask struct {
	*engine.BaseTask
}

// NewTransformTask создаёт TransformTask.
func NewTransformTask() *TransformTask {
	t := &TransformTask{BaseTask: engine.NewBaseTask(TypeTransform)}
	t.AddInputPort(PortIn)
	t.AddOutputPort(PortOut)
	t.AddOutputPort(PortError, domain.ValueTypeString)
	return t
}

// Execute реализует engine.Task.
func (t *TransformTask) Execute(ctx context.Context) domain.TaskState {
	if err := ctx.Err(); err != nil {
		return cancelled(t.BaseTask, err)
	}

	mappings := paramStringMap(t.BaseTask, "mappings")
	data := templateData(t.BaseTask)

	outputs := make(map[string]any, len(mappings))
	for key, tmpl := range mappings {
		rendered, err := Render(tmpl, data)
		if err != nil {
			return fail(t.BaseTask, fmt.Errorf("transform %s: %w", key, err))
		}
		outputs[key] = parseValue(rendered)
	}

	t.SetOutputValue(PortOut, outputs)
	return domain.TaskStateSuccess
}

// parseValue пытается распарсить строку как JSON.
// Если не получается — возвращает строку как есть.
func parseValue(value string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err == nil {
		return obj
	}

	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}

	var num json.Number
	if err := json.Unmarshal([]byte(value), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}
