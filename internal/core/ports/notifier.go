package ports

import (
	"context"
	"encoding/json"
	"time"
)

// Change event kinds.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// Topic names. Per-record topics are built with the helpers below.
const (
	TopicMessages   = "messages"
	TopicAdminQueue = "admin:queue"
)

// UserTopic carries changes to one user record.
func UserTopic(userID string) string { return "user:" + userID }

// RequestTopic carries changes to one session request.
func RequestTopic(requestID string) string { return "session_request:" + requestID }

// AdmissionTopic carries changes to one client's admission.
func AdmissionTopic(userID string) string { return "admission:" + userID }

// ChangeEvent notifies subscribers that a record changed.
type ChangeEvent struct {
	Topic   string          `json:"topic"`
	Kind    string          `json:"kind"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Subscription is a live feed of change events.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// Notifier fans change events out to subscribers, possibly across processes.
type Notifier interface {
	Publish(ctx context.Context, ev ChangeEvent) error
	// Subscribe returns once the subscription is live.
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
}

// EventPublisher accepts change events for asynchronous delivery.
type EventPublisher interface {
	Enqueue(ev ChangeEvent)
}
