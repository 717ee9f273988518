// Package flows contains the business-event call sites of the notification
// subsystem. Each helper fixes the template, channel set, and priority for
// one event and enqueues the resulting intent.
package flows

import (
	"context"
	"log/slog"
	"time"

	"pawdesk/internal/codes"
	"pawdesk/internal/types"
)

// AccessCodeStore is the persistence surface the staff-invite flow needs.
type AccessCodeStore interface {
	ListActiveCodes(ctx context.Context) (map[string]struct{}, error)
	Insert(ctx context.Context, code types.AccessCode) error
}

// Service enqueues notification intents for business events. It never
// delivers anything itself; the notify worker does that.
type Service struct {
	publisher types.IntentPublisher
	codes     AccessCodeStore
	clock     types.Clock
	logger    *slog.Logger
}

// NewService creates a flows Service. The codes store may be nil when the
// staff-invite flow is not used.
func NewService(publisher types.IntentPublisher, codeStore AccessCodeStore, clock types.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		publisher: publisher,
		codes:     codeStore,
		clock:     clock,
		logger:    logger,
	}
}

// Appointment describes a scheduled grooming or veterinary visit.
type Appointment struct {
	PetName   string
	OwnerName string
	When      time.Time
	Recipient types.Recipient
}

// AppointmentConfirmed notifies the pet owner that their booking is set.
func (s *Service) AppointmentConfirmed(ctx context.Context, tenantID string, appt Appointment) error {
	return s.publish(ctx, types.NotificationIntent{
		TenantID:    tenantID,
		TemplateKey: types.TemplateAppointmentConfirmed,
		Variables: map[string]string{
			"pet":  appt.PetName,
			"time": appt.When.Format("02/01 15:04"),
		},
		Channels:  []types.ChannelType{types.ChannelChat, types.ChannelPush},
		Recipient: appt.Recipient,
		Priority:  types.PriorityNormal,
	})
}

// AppointmentReminder nudges the pet owner ahead of the visit.
func (s *Service) AppointmentReminder(ctx context.Context, tenantID string, appt Appointment) error {
	return s.publish(ctx, types.NotificationIntent{
		TenantID:    tenantID,
		TemplateKey: types.TemplateAppointmentReminder,
		Variables: map[string]string{
			"name": appt.OwnerName,
			"pet":  appt.PetName,
			"time": appt.When.Format("02/01 15:04"),
		},
		Channels:  []types.ChannelType{types.ChannelChat, types.ChannelPush, types.ChannelSMS},
		Recipient: appt.Recipient,
		Priority:  types.PriorityHigh,
	})
}

// PetReady tells the owner their pet can be picked up.
func (s *Service) PetReady(ctx context.Context, tenantID, petName string, recipient types.Recipient) error {
	return s.publish(ctx, types.NotificationIntent{
		TenantID:    tenantID,
		TemplateKey: types.TemplatePetReady,
		Variables:   map[string]string{"pet": petName},
		Channels:    []types.ChannelType{types.ChannelChat, types.ChannelPush},
		Recipient:   recipient,
		Priority:    types.PriorityHigh,
	})
}

// PetCheckedIn confirms drop-off to the owner.
func (s *Service) PetCheckedIn(ctx context.Context, tenantID, petName string, recipient types.Recipient) error {
	return s.publish(ctx, types.NotificationIntent{
		TenantID:    tenantID,
		TemplateKey: types.TemplatePetCheckedIn,
		Variables:   map[string]string{"pet": petName},
		Channels:    []types.ChannelType{types.ChannelChat},
		Recipient:   recipient,
		Priority:    types.PriorityNormal,
	})
}

// PetCheckedOut confirms pick-up to the owner.
func (s *Service) PetCheckedOut(ctx context.Context, tenantID, petName string, recipient types.Recipient) error {
	return s.publish(ctx, types.NotificationIntent{
		TenantID:    tenantID,
		TemplateKey: types.TemplatePetCheckedOut,
		Variables:   map[string]string{"pet": petName},
		Channels:    []types.ChannelType{types.ChannelChat},
		Recipient:   recipient,
		Priority:    types.PriorityNormal,
	})
}

// InviteStaff generates a fresh access code for a staff member, persists it,
// and sends it over chat and sms. The code rides in both the message body
// and the structured payload so the mobile app can prefill it.
func (s *Service) InviteStaff(ctx context.Context, tenantID, shopName string, recipient types.Recipient) (string, error) {
	existing, err := s.codes.ListActiveCodes(ctx)
	if err != nil {
		return "", err
	}

	code, err := codes.GenerateUnique(existing, types.DefaultCodeLength, codes.DefaultMaxAttempts)
	if err != nil {
		return "", err
	}

	if err := s.codes.Insert(ctx, types.AccessCode{
		Code:      code,
		OwnerID:   tenantID,
		Status:    types.CodeStatusAvailable,
		CreatedAt: s.clock.Now(),
	}); err != nil {
		return "", err
	}

	err = s.publish(ctx, types.NotificationIntent{
		TenantID:    tenantID,
		TemplateKey: types.TemplateStaffInvite,
		Variables: map[string]string{
			"shop": shopName,
			"code": code,
		},
		Channels:  []types.ChannelType{types.ChannelChat, types.ChannelSMS},
		Recipient: recipient,
		Priority:  types.PriorityHigh,
		Data:      map[string]string{"access_code": code},
	})
	if err != nil {
		// The code is already persisted and stays redeemable; the invite can
		// be resent without generating a new one.
		return code, err
	}

	return code, nil
}

func (s *Service) publish(ctx context.Context, intent types.NotificationIntent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, types.IntentMessage{Intent: intent}); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "business event intent enqueued",
		"tenant_id", intent.TenantID,
		"template_key", string(intent.TemplateKey),
	)
	return nil
}
