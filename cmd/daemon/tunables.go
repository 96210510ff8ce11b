// SPDX-License-Identifier: MIT

package main

import (
	"github.com/rs/zerolog"

	"github.com/astralstream/resolver/internal/config"
	"github.com/astralstream/resolver/internal/fetch"
	xglog "github.com/astralstream/resolver/internal/log"
	"github.com/astralstream/resolver/internal/netquality"
	"github.com/astralstream/resolver/internal/resolver"
)

// applyTunables pushes a reloaded configuration's runtime tunables into
// the live components. Structural settings (listen address, cache backend,
// history) are not touched; changing those requires a restart.
func applyTunables(cfg config.Config, res *resolver.Resolver, fetcher *fetch.Client, adaptive *netquality.Monitor, logger zerolog.Logger) {
	res.SetCacheTTL(cfg.CacheTTL)
	res.SetNetworkMonitor(monitorFor(cfg, adaptive))
	fetcher.SetTimeout(cfg.FetchTimeout)

	logger.Info().
		Str(xglog.FieldEvent, "config.tunables_applied").
		Dur("cache_ttl", cfg.CacheTTL).
		Dur("fetch_timeout", cfg.FetchTimeout).
		Str(xglog.FieldTier, cfg.PinnedTier).
		Msg("applied reloaded tunables")
}

// monitorFor picks the network monitor matching the pinned-tier setting:
// a static monitor when a tier is pinned, the adaptive one otherwise.
func monitorFor(cfg config.Config, adaptive *netquality.Monitor) resolver.NetworkMonitor {
	if cfg.PinnedTier == "" {
		return adaptive
	}
	tier, _ := resolver.ParseTier(cfg.PinnedTier)
	return resolver.StaticMonitor{Quality: resolver.NetworkGood, Tier: tier}
}
