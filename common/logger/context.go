package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, enabling zero-touch logging where business
// context (topic_id, document_id, tree_id, etc.) is automatically included in all log statements.
type LogFields struct {
	TopicID       *string // Topic being processed
	DocumentID    *string // Document ID currently driving the orchestrator
	TreeID        *int64  // Reasoning tree ID
	TrajectoryID  *int64  // Trajectory record ID
	MessageID     *string // Redis stream message ID
	EventType     *string // Event type (e.g., "document_ready")
	Component     string  // Component name (OTel semantic convention style, e.g., "engine.orchestrator")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// mergeFields merges two LogFields, preferring non-nil/non-empty values from 'new'.
func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.TopicID != nil {
		result.TopicID = new.TopicID
	}
	if new.DocumentID != nil {
		result.DocumentID = new.DocumentID
	}
	if new.TreeID != nil {
		result.TreeID = new.TreeID
	}
	if new.TrajectoryID != nil {
		result.TrajectoryID = new.TrajectoryID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.EventType != nil {
		result.EventType = new.EventType
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{TopicID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like queries or error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
