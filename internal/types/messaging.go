package types

import "time"

// IntentMessage is the SQS transport envelope carrying a NotificationIntent
// from the lifecycle runner (or a business flow) to the notify worker.
type IntentMessage struct {
	// MessageID uniquely identifies this envelope, independent of SQS's own
	// message ID, so logs on both sides of the queue can be correlated.
	MessageID string `json:"message_id"`

	Intent NotificationIntent `json:"intent"`

	// RetryCount is how many times this envelope has already been delivered
	// and failed. The worker derives it from the queue's receive count on
	// consumption; it is 0 when publishing.
	RetryCount int `json:"retry_count"`

	// Observability
	TraceID    string    `json:"trace_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
