package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Stepflow/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunRequested MessageType = "run.requested"
	MessageTypeRunFinished  MessageType = "run.finished"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunRequestedPayload — запрос на выполнение workflow.
type RunRequestedPayload struct {
	WorkflowID uuid.UUID `json:"workflow_id"`

	// ScheduleID — расписание, создавшее запрос (nil для ручного запуска).
	ScheduleID *uuid.UUID `json:"schedule_id,omitempty"`
}

// RunFinishedPayload — итог выполнения run.
type RunFinishedPayload struct {
	RunID       uuid.UUID        `json:"run_id"`
	WorkflowID  uuid.UUID        `json:"workflow_id"`
	Status      domain.RunStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
		now:    time.Now,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	publishing, err := newPublishing(msg)
	if err != nil {
		return err
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.PublishWithContext(ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			publishing,
		); err != nil {
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

// PublishRunRequested публикует запрос на выполнение workflow.
// Потребитель: worker.
func (p *Publisher) PublishRunRequested(ctx context.Context, workflowID uuid.UUID, scheduleID *uuid.UUID) error {
	msg := p.newMessage(MessageTypeRunRequested, RunRequestedPayload{
		WorkflowID: workflowID,
		ScheduleID: scheduleID,
	})
	return p.Publish(ctx, ExchangeRuns, RoutingKeyRequested, msg)
}

// NotifyRunFinished публикует итог run в runs.finished.
func (p *Publisher) NotifyRunFinished(ctx context.Context, run *domain.Run) error {
	msg := p.newMessage(MessageTypeRunFinished, NewRunFinishedPayload(run))
	return p.Publish(ctx, ExchangeRuns, RoutingKeyFinished, msg)
}

func (p *Publisher) newMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: p.now().UTC(),
	}
}

// NewRunFinishedPayload собирает payload из run.
func NewRunFinishedPayload(run *domain.Run) RunFinishedPayload {
	return RunFinishedPayload{
		RunID:       run.ID,
		WorkflowID:  run.WorkflowID,
		Status:      run.Status,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}

// newPublishing сериализует сообщение в persistent AMQP publishing.
func newPublishing(msg *Message) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	}, nil
}
