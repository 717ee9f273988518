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

// chatTextRequest is the Cloud-API text message payload.
type chatTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             chatText `json:"text"`
}

type chatText struct {
	Body string `json:"body"`
}

// chatTemplateRequest is the Cloud-API template message payload, used for
// messages outside the 24h customer service window.
type chatTemplateRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         chatTemplate `json:"template"`
}

type chatTemplate struct {
	Name       string          `json:"name"`
	Language   chatLanguage    `json:"language"`
	Components []chatComponent `json:"components,omitempty"`
}

type chatLanguage struct {
	Code string `json:"code"`
}

type chatComponent struct {
	Type       string          `json:"type"`
	Parameters []chatParameter `json:"parameters,omitempty"`
}

type chatParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// chatResponse is the subset of the provider response we read back.
type chatResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// ChatAdapter delivers notifications as chat messages through a WhatsApp
// Cloud API style endpoint (POST /{phone_number_id}/messages).
//
// Known limitation: a RenderedMessage.MediaURL is logged but not uploaded;
// messages always go out as text.
type ChatAdapter struct {
	cfg     config.ChatConfig
	client  *external.Client
	logger  types.Logger
	timeout time.Duration
}

// NewChatAdapter creates the chat channel adapter. When cfg is not fully
// populated the adapter runs in simulated mode and never touches the network.
func NewChatAdapter(cfg config.ChatConfig, client *external.Client, logger types.Logger, timeout time.Duration) *ChatAdapter {
	return &ChatAdapter{
		cfg:     cfg,
		client:  client,
		logger:  logger.With("channel", string(types.ChannelChat)),
		timeout: timeout,
	}
}

// Channel implements types.ChannelAdapter.
func (a *ChatAdapter) Channel() types.ChannelType { return types.ChannelChat }

// Configured implements types.ChannelAdapter.
func (a *ChatAdapter) Configured() bool { return a.cfg.Enabled() }

// Send implements types.ChannelAdapter. The recipient phone is normalized
// (digits only, default country code) before the provider call; a phone that
// cannot be normalized fails the outcome without a network round trip.
func (a *ChatAdapter) Send(ctx context.Context, to types.Recipient, msg types.RenderedMessage, _ types.Priority) types.DeliveryOutcome {
	phone, err := NormalizePhone(to.Phone, a.cfg.DefaultCountryCode)
	if err != nil {
		return failedOutcome(types.ChannelChat, err)
	}

	if msg.MediaURL != "" {
		a.logger.Info("chat media attachment ignored, sending text only", "media_url", msg.MediaURL)
	}

	// Title and body travel as a single text message; chat has no heading
	// concept.
	text := msg.Body
	if msg.Title != "" {
		text = "*" + msg.Title + "*\n" + msg.Body
	}

	if !a.Configured() {
		a.logger.Info("simulated chat delivery", "phone", phone, "title", msg.Title)
		return types.DeliveryOutcome{
			Channel:           types.ChannelChat,
			Success:           true,
			Simulated:         true,
			ProviderMessageID: "sim-" + uuid.NewString(),
		}
	}

	return a.post(ctx, phone, chatTextRequest{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "text",
		Text:             chatText{Body: text},
	})
}

// SendTemplate sends a pre-approved provider template by name. Business
// messages outside the 24h service window must use this path; Send covers
// everything inside it. Each body parameter becomes one positional {{n}}
// substitution on the provider side.
func (a *ChatAdapter) SendTemplate(ctx context.Context, to types.Recipient, name, language string, bodyParams []string) types.DeliveryOutcome {
	phone, err := NormalizePhone(to.Phone, a.cfg.DefaultCountryCode)
	if err != nil {
		return failedOutcome(types.ChannelChat, err)
	}

	if !a.Configured() {
		a.logger.Info("simulated chat template delivery", "phone", phone, "template", name)
		return types.DeliveryOutcome{
			Channel:           types.ChannelChat,
			Success:           true,
			Simulated:         true,
			ProviderMessageID: "sim-" + uuid.NewString(),
		}
	}

	tmpl := chatTemplate{
		Name:     name,
		Language: chatLanguage{Code: language},
	}
	if len(bodyParams) > 0 {
		comp := chatComponent{Type: "body"}
		for _, p := range bodyParams {
			comp.Parameters = append(comp.Parameters, chatParameter{Type: "text", Text: p})
		}
		tmpl.Components = []chatComponent{comp}
	}

	return a.post(ctx, phone, chatTemplateRequest{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "template",
		Template:         tmpl,
	})
}

// post marshals one message payload and runs the provider round trip shared
// by the text and template paths.
func (a *ChatAdapter) post(ctx context.Context, phone string, payload any) types.DeliveryOutcome {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return failedOutcome(types.ChannelChat, fmt.Errorf("encoding chat payload: %w", err))
	}

	url := fmt.Sprintf("%s/%s/messages", a.cfg.Endpoint, a.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return failedOutcome(types.ChannelChat, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.AccessToken.Unmask())

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("chat delivery failed", "phone", phone, "error", err)
		return failedOutcome(types.ChannelChat, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := types.NewAppError(types.ErrCodeUpstreamChat,
			fmt.Sprintf("chat provider returned %d: %s", resp.StatusCode, raw), nil)
		a.logger.Warn("chat delivery rejected", "phone", phone, "status", resp.StatusCode)
		return failedOutcome(types.ChannelChat, err)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		a.logger.Warn("chat response decode failed", "error", err)
	}
	var providerID string
	if len(out.Messages) > 0 {
		providerID = out.Messages[0].ID
	}

	return types.DeliveryOutcome{
		Channel:           types.ChannelChat,
		Success:           true,
		ProviderMessageID: providerID,
	}
}
