// Package resolver detects stream formats and resolves adaptive manifests
// into a ranked quality ladder matched against current network conditions.
package resolver

import (
	"context"
	"fmt"
)

// StreamFormat classifies the container/streaming format of a playback URL.
type StreamFormat string

const (
	FormatHLS         StreamFormat = "hls"
	FormatDASH        StreamFormat = "dash"
	FormatProgressive StreamFormat = "progressive"
	FormatUnknown     StreamFormat = "unknown"
)

// QualityTier is a coarse quality bucket derived from variant height.
type QualityTier int

const (
	TierAuto QualityTier = iota
	Tier240p
	Tier360p
	Tier480p
	Tier720p
	Tier1080p
	Tier4K
)

func (t QualityTier) String() string {
	switch t {
	case Tier240p:
		return "240p"
	case Tier360p:
		return "360p"
	case Tier480p:
		return "480p"
	case Tier720p:
		return "720p"
	case Tier1080p:
		return "1080p"
	case Tier4K:
		return "4k"
	default:
		return "auto"
	}
}

// ParseTier converts a tier label back into a QualityTier.
func ParseTier(s string) (QualityTier, bool) {
	switch s {
	case "auto", "":
		return TierAuto, true
	case "240p":
		return Tier240p, true
	case "360p":
		return Tier360p, true
	case "480p":
		return Tier480p, true
	case "720p":
		return Tier720p, true
	case "1080p":
		return Tier1080p, true
	case "4k", "2160p":
		return Tier4K, true
	default:
		return TierAuto, false
	}
}

// CanonicalHeight returns the pixel height a tier nominally stands for.
// Tiers without a defined height fall back to 720, the nearest-match
// default carried over from the player heuristics.
func (t QualityTier) CanonicalHeight() int {
	switch t {
	case Tier240p:
		return 240
	case Tier360p:
		return 360
	case Tier480p:
		return 480
	case Tier720p:
		return 720
	case Tier1080p:
		return 1080
	case Tier4K:
		return 2160
	default:
		return 720
	}
}

// TierForHeight buckets a variant height into a QualityTier.
func TierForHeight(height int) QualityTier {
	switch {
	case height >= 2160:
		return Tier4K
	case height >= 1080:
		return Tier1080p
	case height >= 720:
		return Tier720p
	case height >= 480:
		return Tier480p
	case height >= 360:
		return Tier360p
	case height >= 240:
		return Tier240p
	default:
		return TierAuto
	}
}

// MarshalText implements encoding.TextMarshaler so tiers serialize as labels.
func (t QualityTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *QualityTier) UnmarshalText(text []byte) error {
	tier, ok := ParseTier(string(text))
	if !ok {
		return fmt.Errorf("unknown quality tier %q", string(text))
	}
	*t = tier
	return nil
}

// NetworkQuality is the coarse network condition reported by the monitor.
type NetworkQuality string

const (
	NetworkExcellent NetworkQuality = "excellent"
	NetworkGood      NetworkQuality = "good"
	NetworkPoor      NetworkQuality = "poor"
)

// QualityVariant is one selectable rendition within an adaptive manifest.
type QualityVariant struct {
	ID        string      `json:"id"`
	URL       string      `json:"url"`
	Bandwidth int64       `json:"bandwidth_bps"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	FrameRate float64     `json:"frame_rate,omitempty"`
	Codecs    string      `json:"codecs"`
	Tier      QualityTier `json:"tier"`
}

// StreamDescriptor is the immutable result of format detection.
type StreamDescriptor struct {
	URL    string       `json:"url"`
	Format StreamFormat `json:"format"`
}

// ResolutionResult is the output of one resolution pass. Variants are always
// sorted descending by bandwidth before Selected is chosen; Selected is nil
// only when Variants is empty.
type ResolutionResult struct {
	Descriptor   StreamDescriptor `json:"descriptor"`
	Variants     []QualityVariant `json:"variants"`
	Selected     *QualityVariant  `json:"selected,omitempty"`
	IsAdaptive   bool             `json:"is_adaptive"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Buffer       BufferPolicy     `json:"buffer"`
}

// ProbeInfo carries the headers read from a HEAD probe.
type ProbeInfo struct {
	ContentType   string
	ContentLength int64
}

// Fetcher retrieves manifest bodies and probes URLs. Each logical fetch is a
// single attempt; retries are a caller concern. Implementations must be safe
// for concurrent use.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
	Probe(ctx context.Context, url string) (ProbeInfo, error)
}

// NetworkMonitor reports current network conditions for buffer policy and
// quality selection.
type NetworkMonitor interface {
	CurrentQuality() NetworkQuality
	RecommendedTier() QualityTier
}

// StaticMonitor is a NetworkMonitor pinned to fixed values. Used when the
// operator pins a quality tier in config, and in tests.
type StaticMonitor struct {
	Quality NetworkQuality
	Tier    QualityTier
}

func (m StaticMonitor) CurrentQuality() NetworkQuality { return m.Quality }
func (m StaticMonitor) RecommendedTier() QualityTier   { return m.Tier }
