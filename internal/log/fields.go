// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldTraceID   = "trace_id"
	FieldUserID    = "user_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldChannel   = "channel"

	// Transport fields
	FieldPath           = "path"
	FieldMethod         = "method"
	FieldBaseURL        = "base_url"
	FieldAttempt        = "attempt"
	FieldIdempotencyKey = "idempotency_key"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
