// SPDX-License-Identifier: MIT

// Package netquality estimates network conditions from observed transfer
// throughput and maps them onto playback quality recommendations.
package netquality

import (
	"sync"
	"time"

	"github.com/astralstream/resolver/internal/resolver"
)

// Throughput thresholds in bits per second.
const (
	excellentBps = 8_000_000
	goodBps      = 2_500_000
)

// alpha is the EWMA smoothing factor. Higher values react faster to
// throughput changes at the cost of more jitter.
const alpha = 0.3

// Monitor tracks an exponentially weighted moving average of download
// throughput. Safe for concurrent use.
type Monitor struct {
	mu      sync.RWMutex
	ewmaBps float64
	samples int
}

// NewMonitor creates a Monitor with no samples. Until the first Record
// call it reports NetworkGood and recommends the 720p tier.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Record feeds one completed transfer into the moving average. Transfers
// too short to measure are ignored.
func (m *Monitor) Record(bytes int64, elapsed time.Duration) {
	if bytes <= 0 || elapsed < time.Millisecond {
		return
	}
	bps := float64(bytes*8) / elapsed.Seconds()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.samples == 0 {
		m.ewmaBps = bps
	} else {
		m.ewmaBps = alpha*bps + (1-alpha)*m.ewmaBps
	}
	m.samples++
}

// ThroughputBps returns the current smoothed throughput estimate, or 0
// when no samples have been recorded.
func (m *Monitor) ThroughputBps() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ewmaBps
}

// CurrentQuality buckets the smoothed throughput into a coarse rating.
func (m *Monitor) CurrentQuality() resolver.NetworkQuality {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.samples == 0 {
		return resolver.NetworkGood
	}
	switch {
	case m.ewmaBps >= excellentBps:
		return resolver.NetworkExcellent
	case m.ewmaBps >= goodBps:
		return resolver.NetworkGood
	default:
		return resolver.NetworkPoor
	}
}

// RecommendedTier maps the smoothed throughput onto the highest quality
// tier the connection can comfortably sustain.
func (m *Monitor) RecommendedTier() resolver.QualityTier {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.samples == 0 {
		return resolver.Tier720p
	}
	mbps := m.ewmaBps / 1_000_000
	switch {
	case mbps >= 20:
		return resolver.Tier4K
	case mbps >= 8:
		return resolver.Tier1080p
	case mbps >= 4:
		return resolver.Tier720p
	case mbps >= 2:
		return resolver.Tier480p
	case mbps >= 1:
		return resolver.Tier360p
	default:
		return resolver.Tier240p
	}
}
