// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the OmniPort adapter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	portRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omniport_requests_total",
		Help: "Total OmniLink port requests by outcome (success, failure, rejected)",
	}, []string{"outcome"})

	portRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "omniport_request_duration_seconds",
		Help:    "Duration of OmniLink port requests including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	portAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omniport_attempts_total",
		Help: "Total network attempts issued by the transport client (retries included)",
	})

	dedupeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omniport_dedupe_events_total",
		Help: "Dedup coordinator decisions (owner, shared, duplicate, expired)",
	}, []string{"decision"})
)

// RecordRequest increments the request counter and observes duration for an outcome.
func RecordRequest(outcome string, d time.Duration) {
	portRequests.WithLabelValues(outcome).Inc()
	portRequestDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordAttempt counts a single network attempt.
func RecordAttempt() {
	portAttempts.Inc()
}

// RecordDedupeDecision counts a dedup coordinator decision.
func RecordDedupeDecision(decision string) {
	dedupeEvents.WithLabelValues(decision).Inc()
}
