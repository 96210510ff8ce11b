// SPDX-License-Identifier: MIT

// astral-resolver daemon: resolves stream URLs into ranked quality ladders
// and serves them over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/astralstream/resolver/internal/api"
	"github.com/astralstream/resolver/internal/cache"
	"github.com/astralstream/resolver/internal/config"
	"github.com/astralstream/resolver/internal/fetch"
	"github.com/astralstream/resolver/internal/history"
	xglog "github.com/astralstream/resolver/internal/log"
	"github.com/astralstream/resolver/internal/netquality"
	"github.com/astralstream/resolver/internal/resolver"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe logging defaults until the config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "astral-resolver",
		Version: version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit via --config, otherwise auto-load
	// ${ASTRAL_DATA_DIR}/config.yaml when present.
	effectivePath := strings.TrimSpace(*configPath)
	if effectivePath == "" {
		dataDir := strings.TrimSpace(config.ParseString("ASTRAL_DATA_DIR", "./data"))
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectivePath = autoPath
		}
	}

	cfg, err := config.Load(effectivePath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", effectivePath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "astral-resolver",
		Version: version,
	})

	if effectivePath != "" {
		logger.Info().
			Str(xglog.FieldEvent, "config.loaded").
			Str("source", "file").
			Str("path", effectivePath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str(xglog.FieldEvent, "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	if err := run(ctx, cfg, effectivePath); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
	logger.Info().Str(xglog.FieldEvent, "daemon.stopped").Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, configPath string) error {
	logger := xglog.WithComponent("daemon")

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Cache backend.
	var (
		manifestCache cache.Cache
		redisCheck    api.ReadyCheck
	)
	switch cfg.CacheBackend {
	case "redis":
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, xglog.WithComponent("cache"))
		if err != nil {
			return fmt.Errorf("connect redis cache: %w", err)
		}
		manifestCache = rc
		redisCheck = rc.HealthCheck
	case "none":
		manifestCache = cache.NewNoOpCache()
	default:
		manifestCache = cache.NewMemoryCache(cfg.CacheCleanup)
	}
	logger.Info().Str("backend", cfg.CacheBackend).Msg("manifest cache initialized")

	// Network monitor: the adaptive monitor is always constructed and fed
	// with transfer samples so a pinned tier can be toggled on reload; a
	// pinned tier puts a static monitor in front of it.
	adaptive := netquality.NewMonitor()
	network := monitorFor(cfg, adaptive)
	if cfg.PinnedTier != "" {
		logger.Info().Str(xglog.FieldTier, cfg.PinnedTier).Msg("quality tier pinned")
	}

	fetcher := fetch.NewClient(
		fetch.WithTimeout(cfg.FetchTimeout),
		fetch.WithBodyCap(cfg.FetchMaxBody),
		fetch.WithObserver(adaptive.Record),
	)

	res := resolver.New(fetcher, network,
		resolver.WithCache(manifestCache, cfg.CacheTTL))

	// History store.
	var store *history.Store
	if cfg.HistoryEnabled {
		var err error
		store, err = history.Open(cfg.HistoryPath())
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer func() { _ = store.Close() }()
		logger.Info().Str("path", cfg.HistoryPath()).Msg("resolution history enabled")
	}

	// API server.
	serverOpts := []api.ServerOption{api.WithVersion(version)}
	if store != nil {
		serverOpts = append(serverOpts, api.WithHistory(store))
	}
	if redisCheck != nil {
		serverOpts = append(serverOpts, api.WithReadyCheck("redis", redisCheck))
	}
	server := api.NewServer(res, cfg, serverOpts...)

	// Hot reload of the config file.
	holder := config.NewHolder(cfg, configPath)
	if err := holder.StartWatcher(ctx); err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	defer holder.Stop()

	// Reloaded tunables (cache TTL, fetch timeout, pinned tier) are pushed
	// into the live components; structural settings need a restart.
	updates := make(chan config.Config, 1)
	holder.RegisterListener(updates)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case newCfg := <-updates:
				applyTunables(newCfg, res, fetcher, adaptive, logger)
			}
		}
	})

	if store != nil && cfg.HistoryRetention > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					removed, err := store.Prune(gctx, holder.Current().HistoryRetention)
					if err != nil {
						logger.Warn().Err(err).Msg("history prune failed")
						continue
					}
					if removed > 0 {
						logger.Info().Int64("removed", removed).Msg("pruned resolution history")
					}
				}
			}
		})
	}

	return g.Wait()
}
