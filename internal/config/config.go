// Package config defines the global configuration structure for the pawdesk
// notification service. Configuration is loaded once at process initialization
// (Lambda cold start or server boot) and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format aborts startup (fail fast).
package config

import (
	"time"

	"pawdesk/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"pawdesk-notify"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Push          PushConfig
	Chat          ChatConfig
	Scheduler     SchedulerConfig
	Delivery      DeliveryConfig
	Template      TemplateConfig
	Observability ObservabilityConfig

	// Build metadata (injected via ldflags, not env)
	Build BuildInfo
}

// ServerConfig holds the ops HTTP service configuration.
type ServerConfig struct {
	Port        string       `envconfig:"PORT" default:"8080"`
	AdminAPIKey SecretString `envconfig:"ADMIN_API_KEY" validate:"required"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// IntentQueue is the SQS queue carrying notification intents from the
	// lifecycle runner to the notify worker.
	IntentQueue string `envconfig:"SQS_INTENT_QUEUE" validate:"required,url"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// PushConfig holds push provider credentials. The adapter runs in simulated
// mode when AppID or APIKey is empty; enablement is decided once at startup.
type PushConfig struct {
	AppID    string       `envconfig:"PUSH_APP_ID"`
	APIKey   SecretString `envconfig:"PUSH_API_KEY"`
	Endpoint string       `envconfig:"PUSH_ENDPOINT" default:"https://api.onesignal.com/notifications"`
}

// Enabled reports whether real push delivery is configured.
func (c PushConfig) Enabled() bool {
	return c.AppID != "" && c.APIKey.Unmask() != ""
}

// ChatConfig holds chat (WhatsApp Cloud API style) provider credentials.
// The adapter runs in simulated mode when PhoneNumberID or AccessToken is empty.
type ChatConfig struct {
	PhoneNumberID string       `envconfig:"CHAT_PHONE_NUMBER_ID"`
	AccessToken   SecretString `envconfig:"CHAT_ACCESS_TOKEN"`
	Endpoint      string       `envconfig:"CHAT_ENDPOINT" default:"https://graph.facebook.com/v19.0"`
	// DefaultCountryCode is prefixed to phone numbers that arrive without one.
	DefaultCountryCode string `envconfig:"CHAT_DEFAULT_COUNTRY_CODE" default:"55"`
}

// Enabled reports whether real chat delivery is configured.
func (c ChatConfig) Enabled() bool {
	return c.PhoneNumberID != "" && c.AccessToken.Unmask() != ""
}

// SchedulerConfig holds lifecycle batch run tuning.
type SchedulerConfig struct {
	// TrialReminderWindowDays is the look-ahead window for expiring-trial
	// reminders, in days.
	TrialReminderWindowDays int `envconfig:"TRIAL_REMINDER_WINDOW_DAYS" default:"3" validate:"min=1,max=30"`
	// BatchLimit is the keyset page size for tenant scans.
	BatchLimit int `envconfig:"SCHEDULER_BATCH_LIMIT" default:"200" validate:"min=1,max=1000"`
	// Concurrency bounds per-batch tenant evaluation.
	Concurrency int           `envconfig:"SCHEDULER_CONCURRENCY" default:"8" validate:"min=1,max=64"`
	LockTTL     time.Duration `envconfig:"SCHEDULER_LOCK_TTL" default:"10m"`
}

// DeliveryConfig holds per-attempt delivery tuning shared by all channel adapters.
type DeliveryConfig struct {
	Timeout    time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"10s"`
	MaxRetries int           `envconfig:"DELIVERY_MAX_RETRIES" default:"2" validate:"min=0,max=5"`
}

// TemplateConfig holds the optional template registry override.
type TemplateConfig struct {
	// OverridesJSON is a JSON mapping: "template_key" -> {"title": ..., "body": ...}
	// merged over the built-in registry at startup. Empty means no overrides.
	OverridesJSON string `envconfig:"TEMPLATES_JSON" validate:"omitempty,json"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Pawdesk"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
