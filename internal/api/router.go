// SPDX-License-Identifier: MIT

// Package api exposes the adapter over HTTP for operational use: health and
// readiness probes, Prometheus metrics, and the normalize/request entry
// points.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omnihq/omniport/internal/config"
	"github.com/omnihq/omniport/internal/omnilink"
)

// Server wires the adapter behind a chi router.
type Server struct {
	adapter *omnilink.Adapter
	holder  *config.Holder
}

// NewServer creates the HTTP server facade for the given adapter.
func NewServer(adapter *omnilink.Adapter, holder *config.Holder) *Server {
	return &Server{adapter: adapter, holder: holder}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/omniport", func(r chi.Router) {
		r.Use(rateLimit(60, time.Minute))
		r.Post("/intents", s.handleNormalize)
		r.Post("/request", s.handleRequest)
		r.Post("/reload", s.handleReload)
	})

	return r
}
