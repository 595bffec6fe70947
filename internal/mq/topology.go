package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeFlows Exchange = "taskflow.flows"
	ExchangeDLQ   Exchange = "taskflow.dlq"
)

// Queues.
const (
	QueueFlowsExecute Queue = "flows.execute"
	QueueFlowsEvents  Queue = "flows.events"
	QueueDLQFlows     Queue = "dlq.flows"
)

// Routing keys.
const (
	RoutingKeyExecute      RoutingKey = "execute"
	RoutingKeyFlowFinished RoutingKey = "flow.finished"
	RoutingKeyTaskFinished RoutingKey = "task.finished"
	RoutingKeyDLQFlows     RoutingKey = "flows"
)

// binding — привязка очереди к обменнику.
type binding struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topologyBindings — все привязки топологии.
var topologyBindings = []binding{
	{QueueFlowsExecute, RoutingKeyExecute, ExchangeFlows},
	{QueueFlowsEvents, RoutingKeyFlowFinished, ExchangeFlows},
	{QueueFlowsEvents, RoutingKeyTaskFinished, ExchangeFlows},
	{QueueDLQFlows, RoutingKeyDLQFlows, ExchangeDLQ},
}

// SetupTopology объявляет exchanges, queues и bindings.
// Объявления идемпотентны, вызывать можно из каждого процесса.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeFlows, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name), // name
			"direct",     // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	// Запросы, отклонённые без requeue, уходят в DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQFlows),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueFlowsExecute, dlqArgs},
		{QueueFlowsEvents, nil},
		{QueueDLQFlows, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	for _, b := range topologyBindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Taskflow RabbitMQ Topology:

    taskflow.flows (direct)
    ├── flows.execute [routing: execute]
    │       Consumer: Worker
    │       DLQ: dlq.flows
    └── flows.events [routing: flow.finished, task.finished]
            Consumer: external

    taskflow.dlq (direct)
    └── dlq.flows [routing: flows]
            Manual processing
`
}
