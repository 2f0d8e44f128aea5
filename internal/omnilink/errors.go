// SPDX-License-Identifier: MIT

package omnilink

import (
	"errors"
	"fmt"

	"github.com/omnihq/omniport/internal/dedupe"
	"github.com/omnihq/omniport/internal/intent"
	"github.com/omnihq/omniport/internal/resilience"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.

	// ErrDisabled is returned while the kill switch is off. Callers must
	// treat it as "feature off", not a transient failure.
	ErrDisabled = errors.New("omnilink adapter disabled")

	// ErrCircuitOpen short-circuits a request before any network attempt.
	ErrCircuitOpen = resilience.ErrCircuitOpen

	// ErrDuplicateRequest rejects a key replayed within its dedupe window.
	ErrDuplicateRequest = dedupe.ErrDuplicateRequest

	// ErrValidation flags malformed normalizer input.
	ErrValidation = intent.ErrValidation

	// ErrTransport is the sentinel for network failures surfaced after the
	// internal retry budget is exhausted.
	ErrTransport = errors.New("omnilink: transport failure")
)

// TransportError wraps the transport sentinel with request context.
type TransportError struct {
	Path     string
	Method   string
	Status   int // last HTTP status, 0 if the wire was never reached
	Attempts int
	Err      error // nested lower-level error (e.g. net.Error)
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("omnilink: %s %s: transport failure", e.Method, e.Path)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return ErrTransport
}

func errorsIsAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
