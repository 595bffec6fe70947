package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPermanent помечает ошибку обработки, после которой сообщение
// не возвращается в очередь (уходит в DLQ).
var ErrPermanent = errors.New("permanent failure")

// Handler обрабатывает сообщение.
// nil — ack; ошибка с ErrPermanent — nack без requeue; иначе nack с requeue.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение.
type Delivery struct {
	Message Message
	Raw     amqp.Delivery
}

// Consumer потребляет сообщения из очереди.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	Queue    string
	Handler  Handler
	Prefetch int // default: 1
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Run потребляет сообщения до отмены ctx.
// После разрыва соединения ждёт переподключения и продолжает.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
		} else {
			c.logger.Info("consumer started", "queue", c.queue)
			c.processDeliveries(ctx, deliveries)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, waiting for reconnect", "queue", c.queue)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
		}
	}
}

func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue, // queue
		"",      // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// processDeliveries обрабатывает сообщения, пока канал открыт.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				return
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery разбирает одно сообщение и подтверждает его по результату handler.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message",
			"queue", c.queue,
			"error", err,
			"body", string(raw.Body),
		)
		c.settle(raw.Nack(false, false))
		return
	}

	c.logger.Debug("received message",
		"queue", c.queue,
		"message_id", msg.ID,
		"type", msg.Type,
	)

	err := c.handler(ctx, &Delivery{Message: msg, Raw: raw})
	switch {
	case err == nil:
		c.settle(raw.Ack(false))
	case errors.Is(err, ErrPermanent):
		c.logger.Error("handler rejected message",
			"queue", c.queue,
			"message_id", msg.ID,
			"error", err,
		)
		c.settle(raw.Nack(false, false))
	default:
		c.logger.Error("handler failed, requeue",
			"queue", c.queue,
			"message_id", msg.ID,
			"error", err,
		)
		c.settle(raw.Nack(false, true))
	}
}

func (c *Consumer) settle(err error) {
	if err != nil {
		c.logger.Warn("failed to settle delivery", "queue", c.queue, "error", err)
	}
}

// ParsePayload разбирает payload сообщения в T.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// После json.Unmarshal в Message payload — map[string]any
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
