// Package queue provides the SQS-based producer that carries notification
// intents from the lifecycle runner and business flows to the notify worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"pawdesk/internal/config"
	"pawdesk/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// IntentPublisher serializes IntentMessage envelopes and sends them to the
// intent queue. It implements types.IntentPublisher.
type IntentPublisher struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

// NewIntentPublisher creates a new IntentPublisher. The queue URL comes from
// the AWS configuration.
func NewIntentPublisher(client SQSSender, awsCfg config.AWSConfig, clock types.Clock, logger *slog.Logger) *IntentPublisher {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IntentPublisher{
		client:   client,
		queueURL: awsCfg.IntentQueue,
		clock:    clock,
		logger:   logger,
	}
}

// Publish sends one envelope to the intent queue. Missing MessageID, TraceID,
// or EnqueuedAt fields are filled in so callers can pass a bare intent
// wrapped in an envelope without bookkeeping.
func (p *IntentPublisher) Publish(ctx context.Context, msg types.IntentMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = uuid.New().String()
	}
	if msg.TraceID == "" {
		if traceID := types.GetTraceID(ctx); traceID != "" {
			msg.TraceID = traceID
		} else {
			msg.TraceID = uuid.New().String()
		}
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = p.clock.Now()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal IntentMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"template_key": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Intent.TemplateKey)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue,
			fmt.Sprintf("failed to send IntentMessage to %s", p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "intent message sent",
		"queue_url", p.queueURL,
		"message_id", msg.MessageID,
		"trace_id", msg.TraceID,
		"tenant_id", msg.Intent.TenantID,
		"template_key", string(msg.Intent.TemplateKey),
		"retry_count", msg.RetryCount,
	)

	return nil
}

// WrapIntent builds a fresh envelope for an intent produced in this process.
func WrapIntent(intent types.NotificationIntent, traceID string, enqueuedAt time.Time) types.IntentMessage {
	return types.IntentMessage{
		MessageID:  uuid.New().String(),
		Intent:     intent,
		TraceID:    traceID,
		EnqueuedAt: enqueuedAt,
	}
}
