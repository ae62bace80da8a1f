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
	MessageTypeRunPending   MessageType = "run.pending"
	MessageTypeRunCancelled MessageType = "run.cancelled"
	MessageTypeJobReady     MessageType = "job.ready"
	MessageTypeJobCompleted MessageType = "job.completed"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
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

// RunPendingPayload — payload о новом run, ожидающем оркестрации.
type RunPendingPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// RunCancelledPayload — payload о запросе отмены run.
type RunCancelledPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// JobReadyPayload — payload о job instance, готовом к выполнению.
type JobReadyPayload struct {
	JobID uuid.UUID `json:"job_id"`
	RunID uuid.UUID `json:"run_id"`
}

// JobCompletedPayload — payload о завершённом job instance.
type JobCompletedPayload struct {
	JobID       uuid.UUID `json:"job_id"`
	RunID       uuid.UUID `json:"run_id"`
	JobName     string    `json:"job_name"`
	InstanceKey string    `json:"instance_key"`
	Status      string    `json:"status"` // SUCCEEDED или FAILED
	Error       string    `json:"error,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
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

// PublishRunPending публикует событие о новом run.
// Потребитель: Orchestrator.
func (p *Publisher) PublishRunPending(ctx context.Context, runID uuid.UUID) error {
	return p.publish(ctx, ExchangeRuns, RoutingKeyPending, MessageTypeRunPending,
		RunPendingPayload{RunID: runID})
}

// PublishRunCancelled публикует запрос отмены run.
// Потребитель: Orchestrator.
func (p *Publisher) PublishRunCancelled(ctx context.Context, runID uuid.UUID) error {
	return p.publish(ctx, ExchangeRuns, RoutingKeyCancelled, MessageTypeRunCancelled,
		RunCancelledPayload{RunID: runID})
}

// PublishJobReady публикует событие о готовом job instance.
// Потребитель: Worker.
func (p *Publisher) PublishJobReady(ctx context.Context, jobID, runID uuid.UUID) error {
	return p.publish(ctx, ExchangeJobs, RoutingKeyReady, MessageTypeJobReady,
		JobReadyPayload{JobID: jobID, RunID: runID})
}

// PublishJobCompleted публикует событие о завершённом job instance.
// Потребитель: Orchestrator.
func (p *Publisher) PublishJobCompleted(ctx context.Context, payload JobCompletedPayload) error {
	return p.publish(ctx, ExchangeJobs, RoutingKeyCompleted, MessageTypeJobCompleted, payload)
}

// publish — общий путь публикации типизированного payload.
func (p *Publisher) publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, exchange, routingKey, msg)
}
