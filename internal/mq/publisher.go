package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeFlowExecute  MessageType = "flow.execute"
	MessageTypeFlowFinished MessageType = "flow.finished"
	MessageTypeTaskFinished MessageType = "task.finished"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// FlowExecutePayload — запрос на выполнение flow.
type FlowExecutePayload struct {
	FlowID    string `json:"flow_id"`
	RequestID string `json:"request_id,omitempty"`
}

// FlowFinishedPayload — результат выполнения flow.
type FlowFinishedPayload struct {
	FlowID     string `json:"flow_id"`
	RequestID  string `json:"request_id,omitempty"`
	State      string `json:"state"`
	TasksRun   int    `json:"tasks_run"`
	DurationMs int64  `json:"duration_ms"`
}

// TaskFinishedPayload — результат выполнения task.
type TaskFinishedPayload struct {
	FlowID     string `json:"flow_id"`
	RequestID  string `json:"request_id,omitempty"`
	TaskID     string `json:"task_id"`
	TaskType   string `json:"task_type"`
	State      string `json:"state"`
	DurationMs int64  `json:"duration_ms"`
}

// MessagePublisher публикует сообщение в exchange.
// Реализация: Publisher.
type MessagePublisher interface {
	Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// RequestExecute публикует запрос на выполнение flow.
// Возвращает ID запроса (он же ID сообщения).
func RequestExecute(ctx context.Context, p MessagePublisher, flowID string) (string, error) {
	msg := NewMessage(MessageTypeFlowExecute, nil)
	msg.Payload = FlowExecutePayload{FlowID: flowID, RequestID: msg.ID}

	if err := p.Publish(ctx, ExchangeFlows, RoutingKeyExecute, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}
