// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omnihq/omniport/internal/api"
	"github.com/omnihq/omniport/internal/audit"
	"github.com/omnihq/omniport/internal/config"
	"github.com/omnihq/omniport/internal/log"
	"github.com/omnihq/omniport/internal/omnilink"
	"github.com/omnihq/omniport/internal/telemetry"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	log.Configure(log.Config{Service: "omniport"})
	logger := log.WithComponent("daemon")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Info().
		Str("version", version).
		Bool("enabled", cfg.Enabled).
		Str(log.FieldBaseURL, maskURL(cfg.BaseURL)).
		Str("listen", cfg.ListenAddr).
		Msg("starting omniportd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing, err := telemetry.NewProvider(ctx, telemetry.ConfigFromEnv(version))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown failed")
		}
	}()

	auditLog := audit.NewLogger()
	holder := config.NewHolder(cfg, *configPath, config.WithAuditSink(auditLog))
	if err := holder.Watch(ctx); err != nil {
		logger.Error().Err(err).Msg("config watch unavailable, continuing without hot reload")
	}

	// Log applied config updates; the holder drops the send if this daemon
	// falls behind, so the channel is buffered.
	updates := make(chan config.Config, 1)
	holder.Subscribe(updates)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case next := <-updates:
				logger.Info().
					Bool("enabled", next.Enabled).
					Str(log.FieldBaseURL, maskURL(next.BaseURL)).
					Msg("configuration update applied")
			}
		}
	}()

	// SIGHUP triggers an explicit reload, same path as the HTTP endpoint.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := holder.Reload(ctx); err != nil {
				logger.Error().Err(err).Msg("SIGHUP reload failed")
			}
		}
	}()

	adapter := omnilink.New(holder, omnilink.WithAuditSink(auditLog))
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(adapter, holder).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", cfg.ListenAddr).Msg("HTTP server listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received, draining")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		_ = server.Close()
	}
	logger.Info().Msg("omniportd stopped")
}
