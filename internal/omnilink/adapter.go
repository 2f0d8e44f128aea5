// SPDX-License-Identifier: MIT

// Package omnilink is the OmniPort adapter: a channel-agnostic intent
// normalizer paired with a resilient outbound transport client providing
// idempotent deduplication, circuit breaking, retry with backoff, trace
// propagation and audit/health observability.
package omnilink

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/omnihq/omniport/internal/audit"
	"github.com/omnihq/omniport/internal/config"
	"github.com/omnihq/omniport/internal/dedupe"
	"github.com/omnihq/omniport/internal/intent"
	"github.com/omnihq/omniport/internal/log"
	"github.com/omnihq/omniport/internal/metrics"
	"github.com/omnihq/omniport/internal/resilience"
)

// Status is the adapter's derived health status.
type Status string

const (
	StatusDisabled Status = "disabled"
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// HealthSnapshot is derived on demand, never stored.
type HealthSnapshot struct {
	Status    Status `json:"status"`
	LastError string `json:"lastError,omitempty"`
}

// Adapter is the public facade: normalize, request, health and last-error,
// gated by the kill switch. All state is process-lifetime only; nothing
// survives a restart.
type Adapter struct {
	holder  *config.Holder
	breaker *resilience.CircuitBreaker
	client  *Client
	coord   *dedupe.Coordinator[Result]
	logger  zerolog.Logger

	lastErrMu sync.RWMutex
	lastErr   string
}

// AdapterOption configures the adapter at construction.
type AdapterOption func(*adapterOptions)

type adapterOptions struct {
	sink       audit.Sink
	clientOpts []ClientOption
}

// WithAuditSink replaces the default zerolog-backed audit sink.
func WithAuditSink(s audit.Sink) AdapterOption {
	return func(o *adapterOptions) { o.sink = s }
}

// WithClientOptions forwards options to the transport client.
func WithClientOptions(opts ...ClientOption) AdapterOption {
	return func(o *adapterOptions) { o.clientOpts = append(o.clientOpts, opts...) }
}

// New constructs an adapter from the resolved configuration. Breaker and
// dedup state are owned by this instance; independent adapters never share
// state. The enabled flag is re-read from the holder on every request so a
// config reload can act as the kill switch without clearing in-memory state.
func New(holder *config.Holder, opts ...AdapterOption) *Adapter {
	var o adapterOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.sink == nil {
		o.sink = audit.NewLogger()
	}

	cfg := holder.Get()
	breaker := resilience.NewCircuitBreaker("omnilink", cfg.BreakerThreshold, cfg.BreakerCooldown)
	coord := dedupe.NewCoordinator[Result](cfg.DedupeTTL)
	coord.Decision = metrics.RecordDedupeDecision

	clientOpts := o.clientOpts
	if cfg.RateLimit > 0 {
		clientOpts = append(clientOpts, WithRateLimit(rate.Limit(cfg.RateLimit), cfg.RateBurst))
	}

	return &Adapter{
		holder:  holder,
		breaker: breaker,
		client:  NewClient(cfg.BaseURL, breaker, o.sink, cfg.MaxAttempts, cfg.RequestTimeout, clientOpts...),
		coord:   coord,
		logger: log.Derive(func(c *zerolog.Context) {
			*c = c.Str(log.FieldComponent, "omnilink").Str(log.FieldBaseURL, cfg.BaseURL)
		}),
	}
}

// NormalizeIntent converts channel-specific input into the canonical
// envelope. Pure; works even while the adapter is disabled.
func (a *Adapter) NormalizeIntent(in intent.Input) (intent.Envelope, error) {
	return intent.Normalize(in)
}

// Request performs one logical outbound request through the dedup
// coordinator and the transport client. It fails with ErrDisabled while the
// kill switch is off, ErrDuplicateRequest for a key replayed inside its
// dedupe window, ErrCircuitOpen when the breaker short-circuits, and a
// *TransportError after the retry budget is exhausted.
func (a *Adapter) Request(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if !a.holder.Enabled() {
		a.setLastError(ErrDisabled.Error())
		metrics.RecordRequest("rejected", time.Since(start))
		return Result{}, ErrDisabled
	}

	result, err := a.coord.Do(ctx, req.IdempotencyKey, req.DedupeTTL, func() (Result, error) {
		return a.client.Execute(ctx, req)
	})
	if err != nil {
		a.setLastError(err.Error())
		a.logger.Warn().
			Err(err).
			Str(log.FieldPath, req.Path).
			Str(log.FieldIdempotencyKey, req.IdempotencyKey).
			Str(log.FieldEvent, "port.request_failed").
			Msg("port request failed")
		metrics.RecordRequest(outcomeFor(err), time.Since(start))
		return Result{}, err
	}

	metrics.RecordRequest("success", time.Since(start))
	return result, nil
}

// Health derives the current snapshot: disabled while the kill switch is
// off, degraded while the breaker is not closed, healthy otherwise.
func (a *Adapter) Health() HealthSnapshot {
	if !a.holder.Enabled() {
		return HealthSnapshot{Status: StatusDisabled, LastError: ErrDisabled.Error()}
	}
	status := StatusHealthy
	if a.breaker.State() != resilience.StateClosed {
		status = StatusDegraded
	}
	return HealthSnapshot{Status: status, LastError: a.LastError()}
}

// LastError returns the most recently recorded failure message, or empty.
func (a *Adapter) LastError() string {
	a.lastErrMu.RLock()
	defer a.lastErrMu.RUnlock()
	return a.lastErr
}

func (a *Adapter) setLastError(msg string) {
	a.lastErrMu.Lock()
	a.lastErr = msg
	a.lastErrMu.Unlock()
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "success"
	case errorsIsAny(err, ErrDisabled, ErrDuplicateRequest, ErrCircuitOpen):
		return "rejected"
	default:
		return "failure"
	}
}
