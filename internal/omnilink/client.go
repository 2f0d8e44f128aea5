// SPDX-License-Identifier: MIT

package omnilink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/omnihq/omniport/internal/audit"
	"github.com/omnihq/omniport/internal/log"
	"github.com/omnihq/omniport/internal/metrics"
	"github.com/omnihq/omniport/internal/resilience"
)

// Outbound wire headers.
const (
	HeaderTraceID        = "X-OmniLink-Trace-Id"
	HeaderIdempotencyKey = "X-Idempotency-Key"
)

// Request describes one outbound call.
type Request struct {
	Path   string
	Method string
	Body   []byte

	// IdempotencyKey identifies a logically single operation across retries
	// and duplicates. Empty means no deduplication.
	IdempotencyKey string
	// DedupeTTL overrides the default dedupe window when positive.
	DedupeTTL time.Duration
	// Timeout bounds each network attempt; zero applies the default.
	Timeout time.Duration
	// TraceID propagates end-to-end; generated when empty.
	TraceID string
}

// Result is the parsed outcome of a successful request.
type Result struct {
	StatusCode int
	Body       []byte
}

// DecodeJSON unmarshals the result body into v.
func (r Result) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Client is the resilient transport client: it orchestrates one logical
// request through the circuit breaker gate, header injection, per-attempt
// timeouts and retry with backoff, and reports outcomes to the audit sink.
type Client struct {
	base           string
	http           *http.Client
	breaker        *resilience.CircuitBreaker
	backoff        resilience.BackoffCalculator
	sink           audit.Sink
	limiter        *rate.Limiter
	maxAttempts    int
	defaultTimeout time.Duration
	logger         zerolog.Logger
}

// ClientOption configures the transport client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client (primarily for tests).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithBackoff replaces the retry backoff calculator.
func WithBackoff(b resilience.BackoffCalculator) ClientOption {
	return func(c *Client) { c.backoff = b }
}

// WithRateLimit throttles outbound attempts to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// NewClient creates a transport client for the given base target.
func NewClient(base string, breaker *resilience.CircuitBreaker, sink audit.Sink, maxAttempts int, defaultTimeout time.Duration, opts ...ClientOption) *Client {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	if sink == nil {
		sink = audit.Nop{}
	}

	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker:        breaker,
		backoff:        resilience.QuadraticBackoff(0),
		sink:           sink,
		maxAttempts:    maxAttempts,
		defaultTimeout: defaultTimeout,
		logger:         log.WithComponent("omnilink.client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute performs one logical request. Transient failures (network errors,
// timeouts, upstream 5xx) are retried with backoff up to the attempt ceiling
// and never surface individually; only the final outcome is visible to the
// caller and the audit sink. A request short-circuited by an open breaker
// fails with ErrCircuitOpen without reaching the network and is audited as a
// failure, but does not itself move the breaker.
func (c *Client) Execute(ctx context.Context, req Request) (Result, error) {
	// Trace ID precedence: explicit on the request, inherited from the
	// caller's context, freshly generated.
	traceID := req.TraceID
	if traceID == "" {
		traceID = log.TraceIDFromContext(ctx)
	}
	if traceID == "" {
		traceID = uuid.New().String()
	}

	if !c.breaker.Allow() {
		c.logger.Warn().
			Str(log.FieldTraceID, traceID).
			Str(log.FieldPath, req.Path).
			Str(log.FieldEvent, "port.circuit_open").
			Msg("request short-circuited by open breaker")
		c.auditFailure(traceID, ErrCircuitOpen.Error())
		return Result{}, ErrCircuitOpen
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	var (
		lastErr    error
		lastStatus int
		attempts   int
	)
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		attempts = attempt
		if attempt > 1 {
			if err := c.sleep(ctx, c.backoff.DelayFor(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		res, retryable, err := c.attempt(ctx, method, req, traceID, timeout)
		if err == nil {
			c.breaker.RecordSuccess()
			c.sink.Record(audit.Event{
				ActionType: audit.ActionPortRequest,
				TraceID:    traceID,
				Metadata: map[string]string{
					"path":   req.Path,
					"method": method,
				},
			})
			return res, nil
		}

		lastErr = err
		lastStatus = res.StatusCode
		c.logger.Debug().
			Err(err).
			Str(log.FieldTraceID, traceID).
			Str(log.FieldPath, req.Path).
			Int(log.FieldAttempt, attempt).
			Msg("attempt failed")

		if !retryable {
			break
		}
	}

	c.breaker.RecordFailure()
	terr := &TransportError{
		Path:     req.Path,
		Method:   method,
		Status:   lastStatus,
		Attempts: attempts,
		Err:      lastErr,
	}
	c.auditFailure(traceID, terr.Error())
	return Result{}, terr
}

// attempt issues a single network call under its own timeout. The second
// return value reports whether the failure is transient.
func (c *Client) attempt(ctx context.Context, method string, req Request, traceID string, timeout time.Duration) (Result, bool, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{}, false, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, c.base+req.Path, body)
	if err != nil {
		return Result{}, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderTraceID, traceID)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(HeaderIdempotencyKey, req.IdempotencyKey)
	}

	metrics.RecordAttempt()
	res, err := c.http.Do(httpReq)
	if err != nil {
		// Network error or timeout: transient unless the caller is gone.
		return Result{}, ctx.Err() == nil, err
	}
	defer func() { _ = res.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return Result{StatusCode: res.StatusCode}, ctx.Err() == nil, err
	}

	if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
		return Result{StatusCode: res.StatusCode, Body: payload}, true,
			fmt.Errorf("upstream status %d", res.StatusCode)
	}
	if res.StatusCode >= 400 {
		// Caller-level error: retrying cannot help.
		return Result{StatusCode: res.StatusCode, Body: payload}, false,
			fmt.Errorf("upstream status %d", res.StatusCode)
	}

	return Result{StatusCode: res.StatusCode, Body: payload}, false, nil
}

// sleep suspends only the requesting goroutine between retries.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) auditFailure(traceID, reason string) {
	c.sink.Record(audit.Event{
		ActionType: audit.ActionPortFailure,
		TraceID:    traceID,
		Metadata: map[string]string{
			"reason": reason,
		},
	})
}
