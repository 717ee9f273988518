// Package channels implements the delivery channel adapters. Every adapter
// satisfies types.ChannelAdapter: it reports its configuration state once at
// construction and converts every failure mode into a DeliveryOutcome instead
// of an error, so a broken provider degrades one channel rather than the
// whole dispatch.
package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"pawdesk/internal/config"
	"pawdesk/internal/external"
	"pawdesk/internal/types"
)

// priorityToPush maps the coarse domain priority onto the provider's 1-10
// scale.
var priorityToPush = map[types.Priority]int{
	types.PriorityNormal: 5,
	types.PriorityHigh:   8,
	types.PriorityUrgent: 10,
}

// pushRequest is the provider's create-notification payload (OneSignal-style
// REST API).
type pushRequest struct {
	AppID          string              `json:"app_id"`
	IncludeAliases map[string][]string `json:"include_aliases"`
	TargetChannel  string              `json:"target_channel"`
	Headings       map[string]string   `json:"headings"`
	Contents       map[string]string   `json:"contents"`
	Priority       int                 `json:"priority"`
	Data           map[string]string   `json:"data,omitempty"`
}

// pushResponse is the subset of the provider response we read back.
type pushResponse struct {
	ID     string   `json:"id"`
	Errors []string `json:"errors,omitempty"`
}

// PushAdapter delivers notifications through a push provider's REST API.
type PushAdapter struct {
	cfg     config.PushConfig
	client  *external.Client
	logger  types.Logger
	timeout time.Duration
}

// NewPushAdapter creates the push channel adapter. When cfg is not fully
// populated the adapter runs in simulated mode and never touches the network.
func NewPushAdapter(cfg config.PushConfig, client *external.Client, logger types.Logger, timeout time.Duration) *PushAdapter {
	return &PushAdapter{
		cfg:     cfg,
		client:  client,
		logger:  logger.With("channel", string(types.ChannelPush)),
		timeout: timeout,
	}
}

// Channel implements types.ChannelAdapter.
func (a *PushAdapter) Channel() types.ChannelType { return types.ChannelPush }

// Configured implements types.ChannelAdapter.
func (a *PushAdapter) Configured() bool { return a.cfg.Enabled() }

// Send implements types.ChannelAdapter. A msg.Data payload, when present,
// rides along in the provider's data field for deep-linking in the app (e.g.
// staff invites carrying an access code).
func (a *PushAdapter) Send(ctx context.Context, to types.Recipient, msg types.RenderedMessage, priority types.Priority) types.DeliveryOutcome {
	if !a.Configured() {
		a.logger.Info("simulated push delivery",
			"user_id", to.UserID,
			"title", msg.Title,
		)
		return types.DeliveryOutcome{
			Channel:           types.ChannelPush,
			Success:           true,
			Simulated:         true,
			ProviderMessageID: "sim-" + uuid.NewString(),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	provPriority, ok := priorityToPush[priority]
	if !ok {
		provPriority = priorityToPush[types.PriorityNormal]
	}

	payload := pushRequest{
		AppID:          a.cfg.AppID,
		IncludeAliases: map[string][]string{"external_id": {to.UserID}},
		TargetChannel:  "push",
		Headings:       map[string]string{"en": msg.Title},
		Contents:       map[string]string{"en": msg.Body},
		Priority:       provPriority,
		Data:           msg.Data,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return failedOutcome(types.ChannelPush, fmt.Errorf("encoding push payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return failedOutcome(types.ChannelPush, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+a.cfg.APIKey.Unmask())

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("push delivery failed", "user_id", to.UserID, "error", err)
		return failedOutcome(types.ChannelPush, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := types.NewAppError(types.ErrCodeUpstreamPush,
			fmt.Sprintf("push provider returned %d: %s", resp.StatusCode, raw), nil)
		a.logger.Warn("push delivery rejected", "user_id", to.UserID, "status", resp.StatusCode)
		return failedOutcome(types.ChannelPush, err)
	}

	var out pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// Provider accepted the message; a garbled body only costs us the ID.
		a.logger.Warn("push response decode failed", "error", err)
	}
	if len(out.Errors) > 0 {
		return failedOutcome(types.ChannelPush, types.NewAppError(types.ErrCodeUpstreamPush,
			fmt.Sprintf("push provider errors: %v", out.Errors), nil))
	}

	return types.DeliveryOutcome{
		Channel:           types.ChannelPush,
		Success:           true,
		ProviderMessageID: out.ID,
	}
}

// failedOutcome wraps an error into a non-success DeliveryOutcome.
func failedOutcome(channel types.ChannelType, err error) types.DeliveryOutcome {
	return types.DeliveryOutcome{
		Channel: channel,
		Success: false,
		Error:   err.Error(),
	}
}
