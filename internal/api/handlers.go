// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/omnihq/omniport/internal/intent"
	"github.com/omnihq/omniport/internal/log"
	"github.com/omnihq/omniport/internal/omnilink"
	"github.com/omnihq/omniport/internal/resilience"
)

type healthResponse struct {
	Status    omnilink.Status `json:"status"`
	LastError string          `json:"lastError,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// handleHealth is the liveness probe: always 200, payload carries the
// adapter snapshot.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.adapter.Health()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    snap.Status,
		LastError: snap.LastError,
		Timestamp: time.Now(),
	})
}

// handleReady is the readiness probe: 503 while the adapter is disabled or
// the breaker is open.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	snap := s.adapter.Health()
	status := http.StatusOK
	if snap.Status != omnilink.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{
		Status:    snap.Status,
		LastError: snap.LastError,
		Timestamp: time.Now(),
	})
}

type normalizeRequest struct {
	Channel          string         `json:"channel"`
	Transcript       string         `json:"transcript,omitempty"`
	Message          string         `json:"message,omitempty"`
	Locale           string         `json:"locale,omitempty"`
	Payload          map[string]any `json:"payload,omitempty"`
	UserID           string         `json:"userId,omitempty"`
	RequiresApproval bool           `json:"requiresApproval,omitempty"`
	Notify           bool           `json:"notify,omitempty"`
	TraceID          string         `json:"traceId,omitempty"`
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	env, err := s.adapter.NormalizeIntent(intent.Input{
		Channel:          intent.Channel(req.Channel),
		Transcript:       req.Transcript,
		Message:          req.Message,
		Locale:           req.Locale,
		Payload:          req.Payload,
		UserID:           req.UserID,
		RequiresApproval: req.RequiresApproval,
		Notify:           req.Notify,
		TraceID:          req.TraceID,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, env)
}

type portRequest struct {
	Path           string          `json:"path"`
	Method         string          `json:"method,omitempty"`
	Body           json.RawMessage `json:"body,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	DedupeTTLMS    int             `json:"dedupeTtlMs,omitempty"`
	TimeoutMS      int             `json:"timeoutMs,omitempty"`
	TraceID        string          `json:"traceId,omitempty"`
}

type portResponse struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body,omitempty"`
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req portRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "missing_path", "path is required")
		return
	}
	if req.DedupeTTLMS < 0 || req.TimeoutMS < 0 {
		writeError(w, http.StatusBadRequest, "invalid_duration", "durations must not be negative")
		return
	}

	result, err := s.adapter.Request(r.Context(), omnilink.Request{
		Path:           req.Path,
		Method:         req.Method,
		Body:           req.Body,
		IdempotencyKey: req.IdempotencyKey,
		DedupeTTL:      time.Duration(req.DedupeTTLMS) * time.Millisecond,
		Timeout:        time.Duration(req.TimeoutMS) * time.Millisecond,
		TraceID:        req.TraceID,
	})
	if err != nil {
		writePortError(w, err)
		return
	}

	body := result.Body
	if len(body) == 0 || !json.Valid(body) {
		body = nil
	}
	writeJSON(w, http.StatusOK, portResponse{StatusCode: result.StatusCode, Body: body})
}

// handleReload triggers an explicit configuration reload, the designated
// kill-switch entry point.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	if err := s.holder.Reload(r.Context()); err != nil {
		logger.Error().Err(err).Msg("manual config reload failed")
		writeError(w, http.StatusInternalServerError, "reload_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func writePortError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, omnilink.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, "adapter_disabled", err.Error())
	case errors.Is(err, omnilink.ErrDuplicateRequest):
		writeError(w, http.StatusConflict, "duplicate_request", err.Error())
	case errors.Is(err, resilience.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "circuit_open", err.Error())
	case errors.Is(err, omnilink.ErrTransport):
		writeError(w, http.StatusBadGateway, "transport_failure", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
