package interfaces

import "context"

// EventType represents the event kinds published by the engine
type EventType string

const (
	EventJobProgress   EventType = "job_progress"
	EventBatchProgress EventType = "batch_progress"
)

// Event is a published event with its typed payload
// (models.JobProgressUpdate or models.BatchProgressUpdate)
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// Subscription is a revocable handle returned by Subscribe. Unsubscribing
// twice is a no-op.
type Subscription interface {
	Unsubscribe()
}

// EventService is the process-lifetime pub/sub bus. Delivery is at-most-once
// per publish with synchronous fan-out to the subscribers registered at
// publish time; there is no persistence and no replay of missed events.
type EventService interface {
	// Subscribe registers a handler for an event type and returns a
	// revocable subscription handle
	Subscribe(eventType EventType, handler EventHandler) (Subscription, error)

	// Publish delivers an event to all current subscribers before returning.
	// Handler errors are logged, never propagated to the publisher.
	Publish(ctx context.Context, event Event)

	// Close drops all subscribers
	Close() error
}
