// Package events publishes task lifecycle notifications to a message broker.
package events

import (
	"context"
	"time"
)

// Routing keys
const (
	TaskCreated = "task.created"
	TaskUpdated = "task.updated"
	TaskDeleted = "task.deleted"
)

// TaskEvent is the JSON payload published for every task mutation.
type TaskEvent struct {
	TaskID     int64     `json:"taskId"`
	Title      string    `json:"title,omitempty"`
	IsDone     bool      `json:"isDone"`
	UserID     int64     `json:"userId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher hands events to a broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close() error                               { return nil }
