// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/omnihq/omniport/internal/log"
	"github.com/omnihq/omniport/internal/omnilink"
)

const headerRequestID = "X-Request-Id"

// requestIDMiddleware ensures every request carries a correlation ID, taken
// from the incoming header or freshly generated. An incoming OmniLink trace
// ID header is lifted into the context so the transport client can continue
// the caller's trace instead of starting a new one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(headerRequestID, id)

		ctx := log.ContextWithRequestID(r.Context(), id)
		if traceID := r.Header.Get(omnilink.HeaderTraceID); traceID != "" {
			ctx = log.ContextWithTraceID(ctx, traceID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit applies a sliding-window per-IP limit with a JSON 429 response.
func rateLimit(requestLimit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`))
		}),
	)
}
