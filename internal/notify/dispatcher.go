// Package notify contains the notification dispatcher: the orchestrator that
// turns one NotificationIntent into per-channel delivery attempts.
package notify

import (
	"context"

	"github.com/google/uuid"

	"pawdesk/internal/template"
	"pawdesk/internal/types"
)

// Dispatcher renders an intent once and fans it out to the eligible channel
// adapters in the intent's channel order. It applies no retries of its own;
// redelivery is the queue's job and per-attempt retries are the HTTP
// client's.
type Dispatcher struct {
	renderer *template.Renderer
	adapters map[types.ChannelType]types.ChannelAdapter
	log      types.DeliveryLog // optional
	metrics  types.MetricsRecorder
	clock    types.Clock
	logger   types.Logger
}

// NewDispatcher wires the dispatcher. deliveryLog may be nil (outcomes are
// then only returned, not persisted); metrics may be nil (disabled).
func NewDispatcher(
	renderer *template.Renderer,
	adapters []types.ChannelAdapter,
	deliveryLog types.DeliveryLog,
	metrics types.MetricsRecorder,
	clock types.Clock,
	logger types.Logger,
) *Dispatcher {
	byChannel := make(map[types.ChannelType]types.ChannelAdapter, len(adapters))
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Dispatcher{
		renderer: renderer,
		adapters: byChannel,
		log:      deliveryLog,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
	}
}

// Dispatch validates and renders the intent, then attempts each requested
// channel in order. The returned slice holds one outcome per attempted
// channel; channels skipped for missing recipient data or a missing adapter
// produce no outcome. A nil error with an empty slice means nothing was
// eligible.
//
// Only intent-level problems (validation, unknown template) return an error;
// per-channel failures are carried inside the outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, intent types.NotificationIntent) ([]types.DeliveryOutcome, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	msg, err := d.renderer.Render(intent.TemplateKey, intent.Variables)
	if err != nil {
		return nil, err
	}
	msg.Data = intent.Data

	priority := intent.Priority
	if priority == "" {
		priority = types.PriorityNormal
	}

	outcomes := make([]types.DeliveryOutcome, 0, len(intent.Channels))
	for _, channel := range intent.Channels {
		adapter, ok := d.adapters[channel]
		if !ok {
			d.logger.Warn("no adapter registered for channel",
				"channel", string(channel), "tenant_id", intent.TenantID)
			continue
		}
		if !eligible(channel, intent.Recipient) {
			d.logger.Info("skipping channel, recipient data missing",
				"channel", string(channel), "tenant_id", intent.TenantID)
			continue
		}

		start := d.clock.Now()
		outcome := adapter.Send(ctx, intent.Recipient, msg, priority)
		latency := d.clock.Now().Sub(start)

		d.metrics.RecordDelivery(ctx, channel, outcome, latency)
		d.record(ctx, intent, outcome)
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

// eligible reports whether the recipient carries the addressing data the
// channel needs.
func eligible(channel types.ChannelType, to types.Recipient) bool {
	switch channel {
	case types.ChannelPush:
		return to.UserID != ""
	case types.ChannelChat, types.ChannelSMS:
		return to.Phone != ""
	default:
		return false
	}
}

// record appends the outcome to the delivery log. Append failures are logged
// and swallowed: losing an audit row must not fail a delivery that already
// happened.
func (d *Dispatcher) record(ctx context.Context, intent types.NotificationIntent, outcome types.DeliveryOutcome) {
	if d.log == nil {
		return
	}
	rec := types.DeliveryRecord{
		ID:          uuid.NewString(),
		TenantID:    intent.TenantID,
		TemplateKey: intent.TemplateKey,
		Outcome:     outcome,
		CreatedAt:   d.clock.Now(),
	}
	if err := d.log.Append(ctx, rec); err != nil {
		d.logger.Error("delivery log append failed",
			"error", err.Error(),
			"tenant_id", intent.TenantID,
			"channel", string(outcome.Channel),
		)
	}
}
