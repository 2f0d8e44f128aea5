// SPDX-License-Identifier: MIT

// Package intent normalizes channel-specific input into the canonical intent
// envelope. Normalization is a pure transformation with no side effects.
package intent

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Channel identifies the inbound channel of an intent.
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelText  Channel = "text"
	ChannelAPI   Channel = "api"
)

// Derived event types for the conversational channels. API intents carry
// their type verbatim in the payload.
const (
	TypeVoiceIntent = "voice.intent"
	TypeTextIntent  = "text.intent"
)

const defaultLanguage = "en"

// ErrValidation is the sentinel for malformed normalizer input.
var ErrValidation = errors.New("intent: invalid input")

// ValidationError describes why normalization rejected an input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("intent: invalid input: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Input is the channel-specific raw input to normalize.
type Input struct {
	Channel Channel

	// Voice channel
	Transcript string

	// Text channel
	Message string

	// Voice and text channels
	Locale string

	// API channel: free-form payload carrying its own "type" field.
	Payload map[string]any

	UserID           string
	RequiresApproval bool
	Notify           bool
	TraceID          string
}

// Envelope is the normalized, channel-independent representation of an
// inbound request.
type Envelope struct {
	Channel          Channel        `json:"channel"`
	Type             string         `json:"type"`
	Payload          map[string]any `json:"payload"`
	RequiresApproval bool           `json:"requiresApproval"`
	Notify           bool           `json:"notify"`
	TraceID          string         `json:"traceId"`
	UserID           string         `json:"userId,omitempty"`
}

// Normalize converts channel-specific input into a canonical envelope.
// The trace ID is preserved when supplied and freshly generated otherwise.
func Normalize(in Input) (Envelope, error) {
	env := Envelope{
		Channel:          in.Channel,
		RequiresApproval: in.RequiresApproval,
		Notify:           in.Notify,
		TraceID:          in.TraceID,
		UserID:           in.UserID,
	}
	if env.TraceID == "" {
		env.TraceID = uuid.New().String()
	}

	switch in.Channel {
	case ChannelVoice:
		message := trimMessage(in.Transcript)
		if message == "" {
			return Envelope{}, &ValidationError{Field: "transcript", Reason: "empty after trimming"}
		}
		env.Type = TypeVoiceIntent
		env.Payload = map[string]any{
			"message":  message,
			"modality": "voice",
			"language": localeOrDefault(in.Locale),
		}

	case ChannelText:
		message := trimMessage(in.Message)
		if message == "" {
			return Envelope{}, &ValidationError{Field: "message", Reason: "empty after trimming"}
		}
		env.Type = TypeTextIntent
		env.Payload = map[string]any{
			"message":  message,
			"modality": "text",
			"language": localeOrDefault(in.Locale),
		}

	case ChannelAPI:
		if len(in.Payload) == 0 {
			return Envelope{}, &ValidationError{Field: "payload", Reason: "missing"}
		}
		eventType, ok := in.Payload["type"].(string)
		if !ok || strings.TrimSpace(eventType) == "" {
			return Envelope{}, &ValidationError{Field: "payload.type", Reason: "missing or not a string"}
		}
		env.Type = eventType
		// Everything but the extracted type passes through untouched.
		payload := make(map[string]any, len(in.Payload)-1)
		for k, v := range in.Payload {
			if k == "type" {
				continue
			}
			payload[k] = v
		}
		env.Payload = payload

	default:
		return Envelope{}, &ValidationError{Field: "channel", Reason: fmt.Sprintf("unrecognized channel %q", in.Channel)}
	}

	return env, nil
}

// trimMessage strips Unicode whitespace plus invisible edge characters that
// speech-to-text and chat frontends are known to attach.
func trimMessage(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) ||
			r == '\u200b' || // zero width space
			r == '\u200c' || // zero width non-joiner
			r == '\u200d' || // zero width joiner
			r == '\ufeff' // zero width no-break space (BOM)
	})
}

func localeOrDefault(locale string) string {
	if locale = strings.TrimSpace(locale); locale != "" {
		return locale
	}
	return defaultLanguage
}
