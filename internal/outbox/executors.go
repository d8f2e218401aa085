package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/labdesk/backoffice/internal/model"
	"github.com/labdesk/backoffice/libs/kafkax"
)

// Executor performs one queued effect. Executors must be safe to re-run: the
// queue guarantees at-least-once, not exactly-once.
type Executor interface {
	Execute(ctx context.Context, rcd Record) error
}

// EffectGateway is the slice of the platform gateway the executors need.
type EffectGateway interface {
	CreateNotification(ctx context.Context, n model.Notification) error
	UpdateTask(ctx context.Context, task model.Task) error
}

type NotifyExecutor struct {
	gateway EffectGateway
}

func NewNotifyExecutor(gateway EffectGateway) *NotifyExecutor {
	return &NotifyExecutor{gateway: gateway}
}

func (e *NotifyExecutor) Execute(ctx context.Context, rcd Record) error {
	var p NotifyPayload
	if err := json.Unmarshal(rcd.Payload, &p); err != nil {
		return fmt.Errorf("decode notify payload: %w", err)
	}
	return e.gateway.CreateNotification(ctx, model.Notification{
		Title:   p.Title,
		Message: p.Message,
		Type:    "appointment_status",
		UserID:  p.UserID,
	})
}

type TaskExecutor struct {
	gateway EffectGateway
}

func NewTaskExecutor(gateway EffectGateway) *TaskExecutor {
	return &TaskExecutor{gateway: gateway}
}

func (e *TaskExecutor) Execute(ctx context.Context, rcd Record) error {
	var p TaskPayload
	if err := json.Unmarshal(rcd.Payload, &p); err != nil {
		return fmt.Errorf("decode task payload: %w", err)
	}
	task := model.Task{ID: p.TaskID, Status: p.Status, TaskType: p.TaskType}
	if p.Done {
		now := time.Now().UTC()
		task.CompletedDate = &now
	}
	return e.gateway.UpdateTask(ctx, task)
}

// MessageWriter is what PublishExecutor needs from a kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type PublishExecutor struct {
	writer MessageWriter
}

func NewPublishExecutor(writer MessageWriter) *PublishExecutor {
	return &PublishExecutor{writer: writer}
}

func (e *PublishExecutor) Execute(ctx context.Context, rcd Record) error {
	msg := kafka.Message{
		Topic: TopicStatusChanged,
		Key:   []byte(rcd.AppointmentID),
		Value: rcd.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(rcd.EventID)},
			{Key: "event_type", Value: []byte(TopicStatusChanged)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return e.writer.WriteMessages(ctx, msg)
}
