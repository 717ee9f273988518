package types

import (
	"github.com/go-playground/validator/v10"
)

// Validation constraint constants.
const (
	MinCodeLength = 4
	MaxCodeLength = 16
	// DefaultCodeLength is the standard access-code length.
	DefaultCodeLength = 8
	// MaxChannelsPerIntent bounds the channel fan-out of a single intent.
	MaxChannelsPerIntent = 3
)

// validate is the shared struct validator. validator.Validate is safe for
// concurrent use and caches struct metadata, so one instance serves the
// whole package.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the intent's structural invariants: tenant and template
// identifiers present, at least one channel, every channel from the closed
// set. Recipient fields are intentionally not required here; channel
// eligibility is the dispatcher's concern.
func (n *NotificationIntent) Validate() error {
	if err := validate.Struct(n); err != nil {
		return NewAppError(ErrCodeValidationMissingField, "notification intent failed validation", err)
	}
	if len(n.Channels) > MaxChannelsPerIntent {
		return NewAppError(ErrCodeValidationInvalidChannel, "too many channels on intent", nil)
	}
	if n.Priority != "" && n.Priority != PriorityNormal && n.Priority != PriorityHigh && n.Priority != PriorityUrgent {
		return NewAppError(ErrCodeValidationMissingField, "unknown priority", nil).
			WithDetails(map[string]any{"priority": string(n.Priority)})
	}
	return nil
}
