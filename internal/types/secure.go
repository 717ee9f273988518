package types

import "log/slog"

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a sensitive value (API keys, tokens, connection strings)
// that must never appear in logs or serialized output. Every rendering path
// that could leak it by accident is overridden to emit a fixed placeholder;
// the raw value is only reachable through an explicit Unmask call.
type SecretString string

// String satisfies fmt.Stringer, so %s, %v and friends print the placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON redacts the value in JSON output (config dumps, API responses).
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// LogValue satisfies slog.LogValuer, covering structured log attributes that
// bypass fmt entirely.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// Unmask returns the raw value. Callers are the few places that genuinely
// need the plaintext: Authorization headers, the pgx connection string.
func (s SecretString) Unmask() string {
	return string(s)
}
