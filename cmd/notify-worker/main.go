// Package main is the entrypoint for the notify-worker Lambda function.
//
// The worker consumes IntentMessage envelopes from the intent SQS queue and
// hands them to the dispatcher, which renders the template once and fans out
// to the requested channels. Malformed messages and permanently invalid
// intents are acknowledged and logged; infrastructure failures are reported
// as partial batch failures so SQS redelivers just those records.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"pawdesk/internal/channels"
	"pawdesk/internal/config"
	"pawdesk/internal/db"
	"pawdesk/internal/external"
	"pawdesk/internal/notify"
	"pawdesk/internal/template"
	"pawdesk/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly, but With returns
// *slog.Logger rather than types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// IntentDispatcher is the subset of the dispatcher the handler calls.
type IntentDispatcher interface {
	Dispatch(ctx context.Context, intent types.NotificationIntent) ([]types.DeliveryOutcome, error)
}

// Handler holds the dependencies for the notify-worker Lambda handler.
type Handler struct {
	dispatcher IntentDispatcher
	logger     types.Logger
}

// Handle processes an SQS event. Each record is handled independently; a
// failing record is returned in batchItemFailures so only it is redelivered.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process intent message",
				"sqs_message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processRecord handles one SQS record. A nil return acknowledges the record.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var msg types.IntentMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		// Permanent parse failure; redelivery cannot fix it.
		h.logger.Error("discarding malformed intent message",
			"sqs_message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	if msg.TraceID != "" {
		ctx = types.WithTraceID(ctx, msg.TraceID)
	}
	msg.RetryCount = redeliveryCount(record)
	logger := h.logger.With(
		"message_id", msg.MessageID,
		"tenant_id", msg.Intent.TenantID,
		"template_key", string(msg.Intent.TemplateKey),
		"trace_id", msg.TraceID,
		"retry_count", msg.RetryCount,
	)

	outcomes, err := h.dispatcher.Dispatch(ctx, msg.Intent)
	if err != nil {
		if isPermanent(err) {
			// An invalid or unrenderable intent stays invalid on redelivery.
			logger.Error("discarding undeliverable intent", "error", err.Error())
			return nil
		}
		return err
	}

	delivered, simulated, failed := 0, 0, 0
	for _, o := range outcomes {
		switch {
		case o.Simulated:
			simulated++
		case o.Success:
			delivered++
		default:
			failed++
		}
	}
	logger.Info("intent processed",
		"attempted", len(outcomes),
		"delivered", delivered,
		"simulated", simulated,
		"failed", failed,
	)

	return nil
}

// redeliveryCount derives how many times the record was already delivered and
// failed from the queue's ApproximateReceiveCount attribute. 0 on first
// delivery or when the attribute is absent (local runs, tests).
func redeliveryCount(record events.SQSMessage) int {
	n, err := strconv.Atoi(record.Attributes["ApproximateReceiveCount"])
	if err != nil || n <= 1 {
		return 0
	}
	return n - 1
}

// isPermanent reports whether the error cannot be fixed by redelivery:
// validation errors and missing templates, as opposed to infrastructure
// failures.
func isPermanent(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	code := string(appErr.Code)
	return strings.HasPrefix(code, "validation_") || strings.HasPrefix(code, "not_found_")
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("notify worker initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	registry, err := template.NewRegistry(cfg.Template.OverridesJSON)
	if err != nil {
		logger.Error("invalid template overrides", "error", err)
		os.Exit(1)
	}

	retryPolicy := external.DefaultRetryPolicy()
	retryPolicy.MaxRetries = cfg.Delivery.MaxRetries
	httpClient := &http.Client{Timeout: cfg.Delivery.Timeout}
	userAgent := "pawdesk/" + cfg.Build.Version

	adapters := []types.ChannelAdapter{
		channels.NewPushAdapter(cfg.Push,
			external.NewClient(httpClient, "push", retryPolicy, userAgent),
			typedLogger, cfg.Delivery.Timeout),
		channels.NewChatAdapter(cfg.Chat,
			external.NewClient(httpClient, "chat", retryPolicy, userAgent),
			typedLogger, cfg.Delivery.Timeout),
		channels.NewSMSAdapter(typedLogger, cfg.Chat.DefaultCountryCode),
	}
	if !cfg.Push.Enabled() {
		logger.Warn("push credentials not set, push runs in simulated mode")
	}
	if !cfg.Chat.Enabled() {
		logger.Warn("chat credentials not set, chat runs in simulated mode")
	}

	var metrics types.MetricsRecorder = notify.NopMetrics{}
	if cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		metrics = notify.NewCloudWatchMetrics(cwClient, cfg.Observability.MetricNamespace, typedLogger)
	}

	dispatcher := notify.NewDispatcher(
		template.NewRenderer(registry),
		adapters,
		db.NewDeliveryLogRepository(pool),
		metrics,
		types.RealClock{},
		typedLogger,
	)

	handler := &Handler{dispatcher: dispatcher, logger: typedLogger}

	logger.Info("notify worker initialized",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"intent_queue", cfg.AWS.IntentQueue,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime.
	// Usage: echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run ./cmd/notify-worker
	if cfg.Environment == "local" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(raw, &sqsEvent); err != nil {
			logger.Error("invalid SQS event", "error", err)
			os.Exit(1)
		}
		resp, err := handler.Handle(ctx, sqsEvent)
		if err != nil {
			logger.Error("handler failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("processed %d records, %d failures\n",
			len(sqsEvent.Records), len(resp.BatchItemFailures))
		return
	}

	lambda.Start(handler.Handle)
}
