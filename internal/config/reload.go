// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/astralstream/resolver/internal/log"
)

// Holder holds configuration with atomic reloading. Reloads are all or
// nothing: a config that fails validation leaves the current one in place.
type Holder struct {
	mu         sync.RWMutex
	current    Config
	configPath string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger

	listenerMu sync.RWMutex
	listeners  []chan<- Config
}

// NewHolder creates a Holder around an initial configuration.
func NewHolder(initial Config, configPath string) *Holder {
	return &Holder{
		current:    initial,
		configPath: configPath,
		logger:     xglog.WithComponent("config"),
	}
}

// Current returns the active configuration.
func (h *Holder) Current() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload re-reads the config file, validates it and swaps it in.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(xglog.FieldEvent, "config.reload_start").Msg("reloading configuration")

	newCfg, err := Load(h.configPath)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "config.reload_failed").
			Msg("keeping previous configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = newCfg
	h.mu.Unlock()

	if old.LogLevel != newCfg.LogLevel {
		xglog.SetLevel(newCfg.LogLevel)
		h.logger.Info().
			Str("old", old.LogLevel).
			Str("new", newCfg.LogLevel).
			Msg("config changed: LogLevel")
	}
	if old.CacheTTL != newCfg.CacheTTL {
		h.logger.Info().
			Dur("old", old.CacheTTL).
			Dur("new", newCfg.CacheTTL).
			Msg("config changed: CacheTTL")
	}
	if old.PinnedTier != newCfg.PinnedTier {
		h.logger.Info().
			Str("old", old.PinnedTier).
			Str("new", newCfg.PinnedTier).
			Msg("config changed: PinnedTier")
	}

	h.notify(newCfg)
	h.logger.Info().Str(xglog.FieldEvent, "config.reload_success").Msg("configuration reloaded")
	return nil
}

// StartWatcher watches the config file and reloads on change. No-op when
// no config file is in use (ENV-only configuration).
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.configPath == "" {
		h.logger.Info().
			Str(xglog.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(h.configPath); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}
	h.watcher = watcher

	h.logger.Info().
		Str(xglog.FieldEvent, "config.watcher_started").
		Str("path", h.configPath).
		Msg("watching config file for changes")

	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	// Debounce rapid write sequences from editors.
	var debounce *time.Timer
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(xglog.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			_ = h.watcher.Close()
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, func() {
					if err := h.Reload(ctx); err != nil {
						h.logger.Error().
							Err(err).
							Str(xglog.FieldEvent, "config.auto_reload_failed").
							Msg("automatic config reload failed")
					}
				})
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Stop closes the file watcher if one is running.
func (h *Holder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// RegisterListener registers a channel that receives the new configuration
// after each successful reload. Sends are non-blocking.
func (h *Holder) RegisterListener(ch chan<- Config) {
	h.listenerMu.Lock()
	defer h.listenerMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notify(cfg Config) {
	h.listenerMu.RLock()
	defer h.listenerMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().
				Str(xglog.FieldEvent, "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}
