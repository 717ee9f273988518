package types

import (
	"time"
)

// Tenant is a customer organization (a pet shop) whose subscription state the
// lifecycle scheduler tracks. The evaluator reads the whole record; only the
// status, watermark, and updated_at fields are ever written back by this
// subsystem.
//
// Invariant: TrialEnd is set iff Status == trial. Once the evaluator moves a
// tenant to expired it never silently reverts it; only an external
// reactivation action may do that.
type Tenant struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	ContactEmail string             `json:"contact_email"`
	ContactPhone string             `json:"contact_phone"`
	// PushUserID is the identifier registered with the push provider for the
	// tenant's primary device, empty when the tenant never opted in to push.
	PushUserID string             `json:"push_user_id,omitempty"`
	Status     SubscriptionStatus `json:"subscription_status"`
	// TrialEnd is non-nil only while Status == trial.
	TrialEnd *time.Time `json:"trial_end,omitempty"`
	// TrialReminderSentAt is the per-tenant watermark for the expiring-trial
	// reminder: the reminder is emitted at most once per UTC calendar day.
	// The past-due dunning reminder deliberately has no watermark.
	TrialReminderSentAt *time.Time `json:"trial_reminder_sent_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`
}

// Recipient carries the channel addressing data for a notification. Each
// channel needs a different subset: chat and sms need Phone, push needs
// UserID. A channel whose field is empty is skipped by the dispatcher.
type Recipient struct {
	Phone  string `json:"phone,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

// NotificationIntent is the ephemeral unit of work produced by the evaluator
// (or a business flow) and consumed by the dispatcher. It is not persisted by
// this subsystem; delivery history goes to the DeliveryLog.
type NotificationIntent struct {
	TenantID    string            `json:"tenant_id" validate:"required"`
	TemplateKey TemplateKey       `json:"template_key" validate:"required"`
	Variables   map[string]string `json:"variables,omitempty"`
	// Channels is an ordered set; the dispatcher attempts them in order.
	Channels  []ChannelType `json:"channels" validate:"required,min=1,dive,oneof=push chat sms"`
	Recipient Recipient     `json:"recipient"`
	Priority  Priority      `json:"priority,omitempty"`
	// Data is an optional structured payload forwarded to channels that
	// support it (push). Access codes travel here.
	Data map[string]string `json:"data,omitempty"`
}

// RenderedMessage is the output of the template renderer: the final title and
// body with all placeholders substituted.
type RenderedMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	// MediaURL is an optional attachment reference. The chat adapter accepts
	// it but only logs it; no multipart upload is implemented.
	MediaURL string `json:"media_url,omitempty"`
	// Data carries the intent's structured payload through to channels that
	// support one; the dispatcher copies it over after rendering.
	Data map[string]string `json:"data,omitempty"`
}

// DeliveryOutcome is the result of one adapter attempt. One intent yields one
// outcome per channel attempted. Simulated outcomes are successes produced
// without any network call when the provider is not configured.
type DeliveryOutcome struct {
	Channel           ChannelType `json:"channel"`
	Success           bool        `json:"success"`
	Simulated         bool        `json:"simulated"`
	ProviderMessageID string      `json:"provider_message_id,omitempty"`
	Error             string      `json:"error,omitempty"`
}

// AccessCode is a short collision-free code delivered as a notification
// payload (staff invites). Uniqueness is enforced case-insensitively against
// all available and used codes.
type AccessCode struct {
	Code      string           `json:"code"`
	OwnerID   string           `json:"owner_id"`
	Status    AccessCodeStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UsedAt    *time.Time       `json:"used_at,omitempty"`
}

// DeliveryRecord is the persisted form of a DeliveryOutcome, appended to the
// delivery log by the dispatcher.
type DeliveryRecord struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id"`
	TemplateKey TemplateKey `json:"template_key"`
	Outcome     DeliveryOutcome
	CreatedAt   time.Time `json:"created_at"`
}

// StatusTransition describes a subscription state change decided by the
// evaluator. From carries the status the decision was based on so the
// repository can apply it as a compare-and-set.
type StatusTransition struct {
	From SubscriptionStatus
	To   SubscriptionStatus
	At   time.Time
}

// OnTrial reports whether the tenant is in its trial period.
func (t *Tenant) OnTrial() bool {
	return t.Status == SubStatusTrial && t.TrialEnd != nil
}
