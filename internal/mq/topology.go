package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeRuns Exchange = "stepflow.runs"
	ExchangeDLQ  Exchange = "stepflow.dlq"
)

// Queues — имена очередей.
const (
	QueueRunsRequested Queue = "runs.requested"
	QueueRunsFinished  Queue = "runs.finished"
	QueueDLQRuns       Queue = "dlq.runs"
)

// Routing keys.
const (
	RoutingKeyRequested RoutingKey = "requested"
	RoutingKeyFinished  RoutingKey = "finished"
	RoutingKeyDLQRuns   RoutingKey = "runs"
)

// ExchangeSpec описывает обменник.
type ExchangeSpec struct {
	Name Exchange
	Kind string
}

// QueueSpec описывает очередь и её привязку.
type QueueSpec struct {
	Name       Queue
	Exchange   Exchange
	RoutingKey RoutingKey
	Args       amqp.Table
	Consumer   string
}

// Topology — полный набор обменников и очередей Stepflow.
type Topology struct {
	Exchanges []ExchangeSpec
	Queues    []QueueSpec
}

// DefaultTopology возвращает топологию Stepflow.
//
// runs.requested отправляет отклонённые сообщения в dlq.runs:
// run не перезапускается бесконечно.
func DefaultTopology() Topology {
	return Topology{
		Exchanges: []ExchangeSpec{
			{Name: ExchangeRuns, Kind: amqp.ExchangeDirect},
			{Name: ExchangeDLQ, Kind: amqp.ExchangeDirect},
		},
		Queues: []QueueSpec{
			{
				Name:       QueueRunsRequested,
				Exchange:   ExchangeRuns,
				RoutingKey: RoutingKeyRequested,
				Args: amqp.Table{
					"x-dead-letter-exchange":    string(ExchangeDLQ),
					"x-dead-letter-routing-key": string(RoutingKeyDLQRuns),
				},
				Consumer: "stepflow-worker",
			},
			{
				Name:       QueueRunsFinished,
				Exchange:   ExchangeRuns,
				RoutingKey: RoutingKeyFinished,
				Consumer:   "external subscribers",
			},
			{
				Name:       QueueDLQRuns,
				Exchange:   ExchangeDLQ,
				RoutingKey: RoutingKeyDLQRuns,
				Consumer:   "manual processing",
			},
		},
	}
}

// SetupTopology объявляет exchanges и queues и связывает их.
// Операция идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	topology := DefaultTopology()

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range topology.Exchanges {
			err := ch.ExchangeDeclare(
				string(ex.Name), // name
				ex.Kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.Name, err)
			}
		}

		for _, q := range topology.Queues {
			_, err := ch.QueueDeclare(
				string(q.Name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.Args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.Name, err)
			}

			err = ch.QueueBind(
				string(q.Name),       // queue name
				string(q.RoutingKey), // routing key
				string(q.Exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", q.Name, q.Exchange, err)
			}
		}

		return nil
	})
}

// String возвращает описание топологии для логирования.
func (t Topology) String() string {
	var b strings.Builder
	b.WriteString("Stepflow RabbitMQ topology:\n")
	for _, ex := range t.Exchanges {
		fmt.Fprintf(&b, "  %s (%s)\n", ex.Name, ex.Kind)
		for _, q := range t.Queues {
			if q.Exchange != ex.Name {
				continue
			}
			fmt.Fprintf(&b, "    └── %s [routing: %s] consumer: %s", q.Name, q.RoutingKey, q.Consumer)
			if dlx, ok := q.Args["x-dead-letter-exchange"]; ok {
				fmt.Fprintf(&b, ", dead letters: %v", dlx)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
