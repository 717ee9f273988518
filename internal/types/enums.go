package types

// SubscriptionStatus represents the billing lifecycle state of a tenant.
type SubscriptionStatus string

const (
	SubStatusTrial    SubscriptionStatus = "trial"
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusExpired  SubscriptionStatus = "expired"
	SubStatusCanceled SubscriptionStatus = "canceled"
	SubStatusBlocked  SubscriptionStatus = "blocked"
)

// validSubStatuses is the closed set of recognized subscription states.
var validSubStatuses = map[SubscriptionStatus]bool{
	SubStatusTrial:    true,
	SubStatusActive:   true,
	SubStatusPastDue:  true,
	SubStatusExpired:  true,
	SubStatusCanceled: true,
	SubStatusBlocked:  true,
}

// IsValidSubscriptionStatus checks whether a subscription status is recognized.
func IsValidSubscriptionStatus(s SubscriptionStatus) bool {
	return validSubStatuses[s]
}

// ChannelType identifies a notification delivery channel.
// The set is closed: adding a channel means adding a constant here and an
// adapter implementation behind the ChannelAdapter interface, checked at
// compile time rather than discovered at runtime.
type ChannelType string

const (
	ChannelPush ChannelType = "push"
	ChannelChat ChannelType = "chat"
	ChannelSMS  ChannelType = "sms"
)

// Priority determines how urgently a notification should be presented on
// channels that support it. Adapters map this coarse scale onto whatever
// numeric scale their provider uses.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// TemplateKey identifies an entry in the static template registry.
type TemplateKey string

const (
	TemplateSubscriptionExpiring TemplateKey = "subscription_expiring"
	TemplatePaymentReminder      TemplateKey = "payment_reminder"
	TemplateAppointmentReminder  TemplateKey = "appointment_reminder"
	TemplateAppointmentConfirmed TemplateKey = "appointment_confirmed"
	TemplatePetReady             TemplateKey = "pet_ready"
	TemplatePetCheckedIn         TemplateKey = "pet_checked_in"
	TemplatePetCheckedOut        TemplateKey = "pet_checked_out"
	TemplateStaffInvite          TemplateKey = "staff_invite"
)

// AccessCodeStatus represents the lifecycle state of an invitation/access code.
// A code moves available -> used exactly once, or available -> expired via a
// separate expiry sweep.
type AccessCodeStatus string

const (
	CodeStatusAvailable AccessCodeStatus = "available"
	CodeStatusUsed      AccessCodeStatus = "used"
	CodeStatusExpired   AccessCodeStatus = "expired"
)

// TaskType identifies which lifecycle job a scheduled trigger should run.
// Each constant maps to a Runner method in the scheduler package.
type TaskType string

const (
	TaskTrialCheck TaskType = "trial_check"
	TaskDunning    TaskType = "dunning"
)
