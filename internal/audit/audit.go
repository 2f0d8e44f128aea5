// SPDX-License-Identifier: MIT

// Package audit provides structured audit logging for adapter operations.
// Events are fire-and-forget from the caller's perspective.
package audit

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/omnihq/omniport/internal/log"
)

// ActionType identifies the audited action.
type ActionType string

const (
	// Port events
	ActionPortRequest ActionType = "omnilink.port.request"
	ActionPortFailure ActionType = "omnilink.port.failure"

	// Configuration events
	ActionConfigReload      ActionType = "config.reload"
	ActionConfigReloadError ActionType = "config.reload.error"
)

// Event represents a structured audit event.
type Event struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	ActionType ActionType        `json:"action_type"`
	Actor      string            `json:"actor,omitempty"`    // WHO: user ID or "system"
	TraceID    string            `json:"trace_id,omitempty"` // Correlation ID
	Metadata   map[string]string `json:"metadata,omitempty"` // Additional context
}

// Sink accepts audit events. Implementations must not block the caller
// beyond the cost of serialising the event.
type Sink interface {
	Record(event Event)
}

// Logger is a Sink writing audit events through the structured logger.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit sink with a dedicated "audit" component.
func NewLogger() *Logger {
	auditLogger := log.WithComponent("audit").With().
		Str("log_type", "audit").
		Logger()

	return &Logger{logger: auditLogger}
}

// Record writes an audit event to the audit log.
func (l *Logger) Record(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = newEventID()
	}

	logEvent := l.logger.Info().
		Str("audit_id", event.ID).
		Time("timestamp", event.Timestamp).
		Str("action_type", string(event.ActionType))

	if event.Actor != "" {
		logEvent = logEvent.Str("actor", event.Actor)
	}
	if event.TraceID != "" {
		logEvent = logEvent.Str(log.FieldTraceID, event.TraceID)
	}
	for key, value := range event.Metadata {
		logEvent = logEvent.Str(key, value)
	}

	logEvent.Msg("audit event")
}

// PortRequest records a successful outbound port request.
func (l *Logger) PortRequest(traceID, path, method string) {
	l.Record(Event{
		ActionType: ActionPortRequest,
		TraceID:    traceID,
		Metadata: map[string]string{
			"path":   path,
			"method": method,
		},
	})
}

// PortFailure records a failed outbound port request.
func (l *Logger) PortFailure(traceID, reason string) {
	l.Record(Event{
		ActionType: ActionPortFailure,
		TraceID:    traceID,
		Metadata: map[string]string{
			"reason": reason,
		},
	})
}

// ConfigReloadEvent builds the audit event for a configuration reload outcome.
func ConfigReloadEvent(actor string, err error) Event {
	action := ActionConfigReload
	meta := map[string]string{"result": "success"}
	if err != nil {
		action = ActionConfigReloadError
		meta = map[string]string{"result": "failure", "error": err.Error()}
	}
	return Event{
		ActionType: action,
		Actor:      actor,
		Metadata:   meta,
	}
}

// ConfigReload records a configuration reload outcome.
func (l *Logger) ConfigReload(actor string, err error) {
	l.Record(ConfigReloadEvent(actor, err))
}

// Nop is a Sink that discards all events.
type Nop struct{}

func (Nop) Record(Event) {}

func newEventID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
