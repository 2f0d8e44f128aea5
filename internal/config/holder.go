// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/omnihq/omniport/internal/audit"
	"github.com/omnihq/omniport/internal/log"
)

// Holder holds configuration with atomic reloading capability.
// It provides thread-safe access and supports hot reloading from file or a
// manual trigger. Reloading is the designated rollback mechanism: flipping the
// enabled flag off takes effect for all subsequent requests without touching
// any in-memory adapter state.
type Holder struct {
	mu         sync.RWMutex
	current    Config
	configPath string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger
	audit      audit.Sink

	reloadMu        sync.RWMutex
	reloadListeners []chan<- Config
}

// HolderOption customizes a Holder.
type HolderOption func(*Holder)

// WithAuditSink routes reload outcomes to the given audit sink.
func WithAuditSink(sink audit.Sink) HolderOption {
	return func(h *Holder) {
		if sink != nil {
			h.audit = sink
		}
	}
}

// NewHolder creates a configuration holder with the initial config.
// configPath may be empty if no file layer is in use; Reload then re-resolves
// from the environment only.
func NewHolder(initial Config, configPath string, opts ...HolderOption) *Holder {
	h := &Holder{
		current:         initial,
		configPath:      configPath,
		logger:          log.WithComponent("config"),
		audit:           audit.Nop{},
		reloadListeners: make([]chan<- Config, 0),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Get returns the current configuration (thread-safe read).
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Enabled reports the current kill-switch position.
func (h *Holder) Enabled() bool {
	return h.Get().Enabled
}

// Subscribe registers a channel that receives the new configuration after
// every successful reload. The channel must be buffered or drained; sends
// never block.
func (h *Holder) Subscribe(ch chan<- Config) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

// Reload re-resolves configuration and validates it. If validation fails the
// old configuration is kept and an error is returned, so updates are atomic:
// either the full config is valid and applied, or nothing changes.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(log.FieldEvent, "config.reload_start").Msg("reloading configuration")

	newCfg, err := Load(h.configPath)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(log.FieldEvent, "config.reload_failed").
			Msg("failed to load new configuration")
		h.audit.Record(audit.ConfigReloadEvent("system", err))
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	if oldCfg.Enabled != newCfg.Enabled {
		h.logger.Warn().
			Bool(log.FieldOldState, oldCfg.Enabled).
			Bool(log.FieldNewState, newCfg.Enabled).
			Str(log.FieldEvent, "config.kill_switch").
			Msg("adapter enabled flag changed")
	}

	h.notify(newCfg)
	h.audit.Record(audit.ConfigReloadEvent("system", nil))
	h.logger.Info().Str(log.FieldEvent, "config.reload_done").Msg("configuration reloaded")
	return nil
}

func (h *Holder) notify(cfg Config) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()
	for _, ch := range h.reloadListeners {
		select {
		case ch <- cfg:
		default:
		}
	}
}

// Watch starts watching the config file for changes and reloads on write or
// create events. It returns immediately; watching stops when ctx is done.
// Watching without a config path is a no-op.
func (h *Holder) Watch(ctx context.Context) error {
	if h.configPath == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Watch the directory, not the file: editors and orchestrators replace
	// config files via rename, which drops a file-level watch.
	dir := filepath.Dir(h.configPath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	defer func() { _ = h.watcher.Close() }()

	// Debounce timer: editors often emit several events per save.
	var pending *time.Timer
	target := filepath.Clean(h.configPath)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(200*time.Millisecond, func() {
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().Err(err).Msg("file-triggered reload failed")
				}
			})
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")
		}
	}
}
