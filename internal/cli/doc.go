// Package cli реализует инструмент командной строки Taskflow.
//
// # Обзор
//
// CLI работает напрямую с хранилищем flows (файл, Postgres, SQLite или Redis,
// см. repo.Config): загружает коллекцию в engine.Manager, выполняет команду
// и, если коллекция изменилась, сохраняет её обратно.
//
// # Ключевые компоненты
//
// ## Workspace
//
// Менеджер flows, загруженный из хранилища со стандартным реестром steps.
//
//	ws, err := cli.OpenWorkspace(ctx, repo.ConfigFromEnv(), logger)
//	defer ws.Close()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: taskflow flow list --json | jq .
//
// ## Commands
//
//   - types: список типов tasks и шаблонов flows
//   - flow: list, show, order, validate, import, create, delete
//   - run FLOW_ID [--async]: локальное выполнение или публикация в flows.execute
//   - schedule: next, parse
//
// Команды создаются фабричными функциями (NewFlowCmd и т.д.), принимающими
// замыкания для ленивого создания Workspace, publisher и Output после
// парсинга PersistentFlags.
package cli
