// Package api содержит HTTP API поверх engine.Manager.
//
// Структура:
//   - handler.go    — Handler с DI (менеджер, хранилище, publisher, logger)
//   - routes.go     — регистрация маршрутов
//   - middleware.go — middleware (request id, logging, recovery)
//   - response.go   — унифицированные JSON-ответы и обработка ошибок движка
//   - dto.go        — Data Transfer Objects
//   - flows.go      — обработчики для /task-types, /flow-types и /flows
//
// Изменения flows сохраняются в engine.Store, если он задан.
// Выполнение синхронное либо, с ?async=true, через очередь flows.execute.
package api
