// Package repo реализует хранилища коллекции flows (engine.Store).
//
// Хранилища:
//   - FileStore     — один JSON файл, атомарная запись через rename
//   - PostgresStore — pgxpool, таблица taskflow_flows (JSONB на flow)
//   - SQLiteStore   — database/sql + modernc.org/sqlite
//   - RedisStore    — go-redis, hash <prefix>flows
//
// Сохранение заменяет всё содержимое хранилища в одной транзакции.
// Open выбирает хранилище по TASKFLOW_STORE.
package repo
