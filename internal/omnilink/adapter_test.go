// SPDX-License-Identifier: MIT

package omnilink

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/omnihq/omniport/internal/config"
	"github.com/omnihq/omniport/internal/intent"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		Enabled:          true,
		BaseURL:          baseURL,
		BreakerThreshold: 3,
		BreakerCooldown:  30 * time.Second,
		DedupeTTL:        time.Minute,
		RequestTimeout:   2 * time.Second,
		MaxAttempts:      1,
	}
}

func newTestAdapter(t *testing.T, handler http.Handler, cfg func(*config.Config)) (*Adapter, *recordingSink) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := testConfig(srv.URL)
	if cfg != nil {
		cfg(&c)
	}
	sink := &recordingSink{}
	adapter := New(config.NewHolder(c, ""),
		WithAuditSink(sink),
		WithClientOptions(WithBackoff(fastBackoff())))
	return adapter, sink
}

func okHandler(hits *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
}

func TestRequest_KillSwitch(t *testing.T) {
	var hits atomic.Int32
	adapter, _ := newTestAdapter(t, okHandler(&hits), func(c *config.Config) {
		c.Enabled = false
	})

	_, err := adapter.Request(context.Background(), Request{Path: "/x"})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Zero(t, hits.Load(), "disabled adapter must not attempt network I/O")

	snap := adapter.Health()
	assert.Equal(t, StatusDisabled, snap.Status)
	assert.Contains(t, snap.LastError, "disabled")
}

func TestRequest_Success(t *testing.T) {
	adapter, _ := newTestAdapter(t, okHandler(nil), nil)

	res, err := adapter.Request(context.Background(), Request{Path: "/v1/op", Method: http.MethodPost})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, adapter.LastError())
	assert.Equal(t, StatusHealthy, adapter.Health().Status)
}

func TestRequest_DuplicateWithinWindow(t *testing.T) {
	var hits atomic.Int32
	adapter, _ := newTestAdapter(t, okHandler(&hits), nil)

	_, err := adapter.Request(context.Background(), Request{Path: "/op", IdempotencyKey: "dup-1"})
	require.NoError(t, err)

	_, err = adapter.Request(context.Background(), Request{Path: "/op", IdempotencyKey: "dup-1"})
	assert.ErrorIs(t, err, ErrDuplicateRequest)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "Duplicate OmniLink request", adapter.LastError())
}

func TestRequest_ConcurrentSameKeySharesOneAttempt(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"n":1}`))
	}), nil)

	const callers = 8
	results := make([]Result, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			res, err := adapter.Request(context.Background(), Request{Path: "/op", IdempotencyKey: "race-1"})
			results[i] = res
			return err
		})
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), hits.Load(), "concurrent same-key callers share one network call")
	for _, res := range results {
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.JSONEq(t, `{"n":1}`, string(res.Body))
	}
}

func TestRequest_BreakerTripScenario(t *testing.T) {
	var hits atomic.Int32
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}), nil)

	// Three consecutive failing calls with distinct keys trip the breaker.
	for i := 0; i < 3; i++ {
		_, err := adapter.Request(context.Background(), Request{
			Path:           "/op",
			IdempotencyKey: fmt.Sprintf("trip-%d", i),
		})
		require.ErrorIs(t, err, ErrTransport)
	}
	before := hits.Load()

	// A fourth call with a new key fails immediately without network I/O.
	_, err := adapter.Request(context.Background(), Request{Path: "/op", IdempotencyKey: "trip-3"})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, before, hits.Load())

	snap := adapter.Health()
	assert.Equal(t, StatusDegraded, snap.Status)
	assert.Contains(t, snap.LastError, "circuit breaker open")
}

func TestRequest_DistinctKeysCompleteConcurrently(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}), nil)

	start := time.Now()
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("par-%d", i)
		g.Go(func() error {
			_, err := adapter.Request(context.Background(), Request{Path: "/op", IdempotencyKey: key})
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Less(t, time.Since(start), time.Second, "independent requests must dispatch in parallel")
}

func TestHealth_ReloadFlipsKillSwitch(t *testing.T) {
	srv := httptest.NewServer(okHandler(nil))
	t.Cleanup(srv.Close)

	t.Setenv(config.EnvEnabled, "true")
	t.Setenv(config.EnvBaseURL, srv.URL)

	cfg, err := config.Load("")
	require.NoError(t, err)
	holder := config.NewHolder(cfg, "")
	adapter := New(holder, WithAuditSink(&recordingSink{}))

	_, err = adapter.Request(context.Background(), Request{Path: "/op"})
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, adapter.Health().Status)

	// Rollback: flip the flag off and reload. In-memory state is untouched,
	// new calls are short-circuited.
	t.Setenv(config.EnvEnabled, "false")
	require.NoError(t, holder.Reload(context.Background()))

	_, err = adapter.Request(context.Background(), Request{Path: "/op"})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Equal(t, StatusDisabled, adapter.Health().Status)
}

func TestNormalizeIntent_Delegates(t *testing.T) {
	adapter, _ := newTestAdapter(t, okHandler(nil), nil)

	env, err := adapter.NormalizeIntent(intent.Input{
		Channel:    intent.ChannelVoice,
		Transcript: " hello ",
		TraceID:    "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, intent.TypeVoiceIntent, env.Type)

	_, err = adapter.NormalizeIntent(intent.Input{Channel: "bogus"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRequest_RateLimitFromConfig(t *testing.T) {
	adapter, _ := newTestAdapter(t, okHandler(nil), func(c *config.Config) {
		c.RateLimit = 20 // one request every 50ms
		c.RateBurst = 1
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := adapter.Request(context.Background(), Request{
			Path:           "/v1/intents",
			IdempotencyKey: fmt.Sprintf("rate-%d", i),
		})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
