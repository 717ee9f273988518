package channels

import (
	"context"

	"github.com/google/uuid"

	"pawdesk/internal/types"
)

// SMSAdapter is the SMS channel. No SMS provider is integrated yet, so every
// send is simulated; the adapter exists so intents may already target the
// channel and delivery logs record the attempts.
type SMSAdapter struct {
	logger             types.Logger
	defaultCountryCode string
}

// NewSMSAdapter creates the SMS channel adapter.
func NewSMSAdapter(logger types.Logger, defaultCountryCode string) *SMSAdapter {
	return &SMSAdapter{
		logger:             logger.With("channel", string(types.ChannelSMS)),
		defaultCountryCode: defaultCountryCode,
	}
}

// Channel implements types.ChannelAdapter.
func (a *SMSAdapter) Channel() types.ChannelType { return types.ChannelSMS }

// Configured implements types.ChannelAdapter. Always false: there is no real
// provider behind this channel.
func (a *SMSAdapter) Configured() bool { return false }

// Send implements types.ChannelAdapter. The phone is still normalized so bad
// recipient data surfaces as a failed outcome rather than a phantom success.
func (a *SMSAdapter) Send(_ context.Context, to types.Recipient, msg types.RenderedMessage, _ types.Priority) types.DeliveryOutcome {
	phone, err := NormalizePhone(to.Phone, a.defaultCountryCode)
	if err != nil {
		return failedOutcome(types.ChannelSMS, err)
	}

	a.logger.Info("simulated sms delivery", "phone", phone, "title", msg.Title)
	return types.DeliveryOutcome{
		Channel:           types.ChannelSMS,
		Success:           true,
		Simulated:         true,
		ProviderMessageID: "sim-" + uuid.NewString(),
	}
}
