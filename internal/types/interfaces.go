package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// ChannelAdapter is the common contract every delivery channel implements.
// Send must never return an error through a side path: all failure modes,
// including provider rejections and timeouts, are captured inside the
// returned DeliveryOutcome so one broken channel cannot abort a dispatch.
type ChannelAdapter interface {
	// Channel returns the channel this adapter serves.
	Channel() ChannelType

	// Configured reports whether the provider credentials were present at
	// startup. Unconfigured adapters still Send, producing simulated outcomes.
	Configured() bool

	// Send attempts one delivery and reports what happened.
	Send(ctx context.Context, to Recipient, msg RenderedMessage, priority Priority) DeliveryOutcome
}

// DeliveryLog records delivery outcomes for auditing. Append failures are
// infrastructure errors; callers log them but never fail the dispatch.
type DeliveryLog interface {
	Append(ctx context.Context, rec DeliveryRecord) error
}

// IntentPublisher enqueues notification intents for asynchronous delivery.
type IntentPublisher interface {
	Publish(ctx context.Context, msg IntentMessage) error
}

// TenantLister pages through tenants in a given subscription status.
// Listing is keyset-paginated: pass the last seen ID (empty for the first
// page) and results come back ordered by ID ascending.
type TenantLister interface {
	ListByStatus(ctx context.Context, status SubscriptionStatus, afterID string, limit int) ([]Tenant, error)
}

// TenantMutator applies evaluator decisions to tenant rows.
type TenantMutator interface {
	// TransitionStatus applies a compare-and-set status change. Returns
	// ErrCodeConflictStatusChanged when the row no longer matches From.
	TransitionStatus(ctx context.Context, tenantID string, tr StatusTransition) error

	// SetTrialReminderSentAt stamps the trial-reminder watermark.
	SetTrialReminderSentAt(ctx context.Context, tenantID string, at time.Time) error
}

// MetricsRecorder publishes delivery metrics. Implementations must be
// fire-and-forget: a metrics failure is logged, never propagated.
type MetricsRecorder interface {
	RecordDelivery(ctx context.Context, channel ChannelType, outcome DeliveryOutcome, latency time.Duration)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
