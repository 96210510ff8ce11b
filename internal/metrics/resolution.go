// Package metrics exposes Prometheus collectors for the resolver daemon.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astral_resolution_total",
		Help: "Total number of stream resolutions by format and outcome",
	}, []string{"format", "outcome"})

	resolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "astral_resolution_duration_seconds",
		Help:    "Time taken to resolve a stream URL into a quality ladder",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"format"})

	selectionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astral_variant_selection_total",
		Help: "Total number of quality variant selections by tier and match kind",
	}, []string{"tier", "match"})

	manifestCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astral_manifest_cache_total",
		Help: "Manifest cache lookups by result",
	}, []string{"result"})

	qualitySwitchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astral_quality_switch_total",
		Help: "Manual quality switch attempts by result",
	}, []string{"found"})
)

// RecordResolution records one resolution pass outcome.
func RecordResolution(format string, success bool, duration time.Duration) {
	outcome := "error"
	if success {
		outcome = "ok"
	}
	f := normalizeFormatLabel(format)
	resolutionTotal.WithLabelValues(f, outcome).Inc()
	resolutionDuration.WithLabelValues(f).Observe(duration.Seconds())
}

// RecordSelection records which tier was selected and whether it was an
// exact tier match or a nearest-height fallback.
func RecordSelection(tier string, exact bool) {
	match := "nearest"
	if exact {
		match = "exact"
	}
	selectionTotal.WithLabelValues(normalizeTierLabel(tier), match).Inc()
}

// RecordManifestCache records a manifest cache lookup.
func RecordManifestCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	manifestCacheTotal.WithLabelValues(result).Inc()
}

// RecordQualitySwitch records a SwitchQuality attempt.
func RecordQualitySwitch(found bool) {
	qualitySwitchTotal.WithLabelValues(strconv.FormatBool(found)).Inc()
}

func normalizeFormatLabel(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "hls", "dash", "progressive":
		return strings.ToLower(strings.TrimSpace(format))
	default:
		return "unknown"
	}
}

func normalizeTierLabel(tier string) string {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "auto", "240p", "360p", "480p", "720p", "1080p", "4k":
		return strings.ToLower(strings.TrimSpace(tier))
	default:
		return "unknown"
	}
}
