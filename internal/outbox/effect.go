// Package outbox durably queues the side effects of a status transition
// (customer notification, lab task update, status-changed event) so the
// transition itself never blocks on, or rolls back for, a flaky downstream.
// A poller drains the queue with retries and a failure parking state.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/labdesk/backoffice/internal/model"
)

// EffectType selects the executor that will perform a queued effect.
type EffectType string

const (
	EffectNotifyCustomer EffectType = "notify_customer"
	EffectUpdateTask     EffectType = "update_task"
	EffectPublishStatus  EffectType = "publish_status_event"
)

// TopicStatusChanged carries StatusChangedPayload messages keyed by
// appointment id.
const TopicStatusChanged = "backoffice.appointment.status_changed.v1"

// Effect is a side effect to enqueue alongside a transition.
type Effect struct {
	AppointmentID string
	Type          EffectType
	Payload       []byte
}

// NotifyPayload is the payload for EffectNotifyCustomer.
type NotifyPayload struct {
	UserID  string       `json:"user_id"`
	Title   string       `json:"title"`
	Message string       `json:"message"`
	Status  model.Status `json:"status"`
}

// TaskPayload is the payload for EffectUpdateTask.
type TaskPayload struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	TaskType string `json:"task_type"`
	Done     bool   `json:"done"`
}

// StatusChangedPayload is the payload for EffectPublishStatus and the body of
// TopicStatusChanged messages.
type StatusChangedPayload struct {
	AppointmentID string       `json:"appointment_id"`
	From          model.Status `json:"from"`
	To            model.Status `json:"to"`
	Location      string       `json:"location_type"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

func NewEffect(appointmentID string, t EffectType, payload any) (Effect, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Effect{}, err
	}
	return Effect{AppointmentID: appointmentID, Type: t, Payload: raw}, nil
}

// Record is a queued effect as read back from the effects table.
type Record struct {
	ID            int64
	EventID       string
	AppointmentID string
	Type          EffectType
	Payload       []byte
	Traceparent   string
	Tracestate    string
	Attempts      int
	MaxAttempts   int
	NextRunAt     time.Time
	CreatedAt     time.Time
}
