// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с переподключением
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — конверт Message, payloads, публикация
//   - consumer.go   — потребление сообщений с ack/nack
//   - events.go     — EventPublisher (engine.Observer) и ID запроса в контексте
//
// Типы сообщений:
//   - flow.execute  — запрос на выполнение flow (потребитель: worker)
//   - flow.finished — flow выполнен
//   - task.finished — task выполнена
//
// Exchanges:
//   - taskflow.flows — запросы и события flows
//   - taskflow.dlq   — dead letter queue
package mq
