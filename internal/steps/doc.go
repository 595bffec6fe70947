// Package steps содержит стандартные типы tasks для flow.
//
// # Обзор
//
// Каждая task встраивает *engine.BaseTask, объявляет порты в конструкторе
// и реализует Execute(ctx) domain.TaskState. Входы читаются через
// InputValue, результаты пишутся через SetOutputValue.
//
// Ошибка выполнения пишется в порт error (если он объявлен) и возвращается
// как TaskStateFailed. Отмена ctx даёт TaskStateCancelled.
//
// # Registry
//
//	reg := steps.DefaultRegistry()
//	flow := engine.NewFlow("report")
//	flow.CreateTask(reg, steps.TypeHTTP, "fetch", map[string]any{"url": url})
//
// # Типы tasks
//
//   - constant      — параметр value в out
//   - echo          — in в out
//   - concat        — a + separator + b
//   - template      — рендер параметра template (text/template)
//   - transform     — набор шаблонов mappings, результат в out как map
//   - delay         — пауза duration_sec / duration_ms, in передаётся в out
//   - http          — HTTP запрос; outputs status_code, headers, body
//   - file_info     — метаданные файла: file_path, file_size, last_modified
//   - file_category — категория файла по размеру: small, medium, large
//
// Шаблоны видят данные через TemplateData:
//
//	{{ .Inputs.in }}      — значение input порта
//	{{ .Params.greeting }} — параметр task
//
// Дополнительные функции: json, fromJSON, default, coalesce, join, split,
// contains, hasPrefix, hasSuffix, lower, upper, trim, replace.
//
// # Файлы пакета
//
//   - step.go     — общие ошибки, имена портов, helpers
//   - registry.go — DefaultRegistry, Register
//   - basic.go    — ConstantTask, EchoTask, ConcatTask
//   - template.go — Render, TemplateTask, TransformTask
//   - delay.go    — DelayTask
//   - http.go     — HTTPTask
//   - file.go     — FileInfoTask, FileCategoryTask
//   - flows.go    — шаблоны flows: file_analysis, greeting
package steps
