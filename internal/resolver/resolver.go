package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/astralstream/resolver/internal/cache"
	xglog "github.com/astralstream/resolver/internal/log"
	"github.com/astralstream/resolver/internal/metrics"
)

const defaultCacheTTL = 30 * time.Second

// Resolver turns playback URLs into ranked quality ladders. It is stateless
// per call apart from retaining the last result for SwitchQuality, and is
// safe for concurrent use.
type Resolver struct {
	fetcher Fetcher
	cache   cache.Cache
	logger  zerolog.Logger

	mu       sync.RWMutex
	network  NetworkMonitor
	cacheTTL time.Duration
	last     *ResolutionResult
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache enables manifest caching with the given TTL.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver around the given fetcher and network monitor.
func New(fetcher Fetcher, network NetworkMonitor, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher:  fetcher,
		network:  network,
		cache:    cache.NewNoOpCache(),
		cacheTTL: defaultCacheTTL,
		logger:   xglog.WithComponent("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetCacheTTL updates the manifest cache TTL for subsequent fetches.
// Entries already cached keep the TTL they were stored with.
func (r *Resolver) SetCacheTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	r.mu.Lock()
	r.cacheTTL = ttl
	r.mu.Unlock()
}

// SetNetworkMonitor swaps the monitor consulted for tier selection and
// buffer policy. Resolutions in flight keep the monitor they started with.
func (r *Resolver) SetNetworkMonitor(network NetworkMonitor) {
	if network == nil {
		return
	}
	r.mu.Lock()
	r.network = network
	r.mu.Unlock()
}

func (r *Resolver) networkMonitor() NetworkMonitor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.network
}

func (r *Resolver) manifestTTL() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cacheTTL
}

// ResolveStream classifies the URL, fetches and parses its manifest when
// adaptive, and selects the variant matching current network conditions.
// Network failures and cancellation are reported through the result's
// ErrorMessage; the method never panics and never returns an error.
func (r *Resolver) ResolveStream(ctx context.Context, rawURL string) ResolutionResult {
	start := time.Now()

	format := DetectFormat(rawURL)
	if format == FormatUnknown {
		if cancelled(ctx.Err()) {
			return r.finish(start, r.errorResult(rawURL, format, "cancelled"))
		}
		info, err := r.fetcher.Probe(ctx, rawURL)
		switch {
		case cancelled(err):
			return r.finish(start, r.errorResult(rawURL, format, "cancelled"))
		case err != nil:
			// Probe failure leaves the format unknown; the caller may still
			// attempt direct playback.
			r.logger.Debug().Err(err).Str(xglog.FieldURL, rawURL).Msg("content-type probe failed")
		default:
			if f := formatFromContentType(info.ContentType); f != FormatUnknown {
				format = f
			}
		}
	}

	var res ResolutionResult
	switch format {
	case FormatHLS:
		res = r.resolveHLS(ctx, rawURL)
	case FormatDASH:
		res = r.resolveDASH(ctx, rawURL)
	case FormatProgressive:
		res = r.resolveProgressive(ctx, rawURL)
	default:
		res = r.errorResult(rawURL, FormatUnknown,
			"format could not be determined; direct playback will be attempted")
	}

	network := r.networkMonitor()
	if len(res.Variants) > 0 {
		requested := network.RecommendedTier()
		selected, exact := selectVariant(res.Variants, requested)
		res.Selected = selected
		if selected != nil {
			metrics.RecordSelection(selected.Tier.String(), exact)
		}
	}
	res.Buffer = BufferPolicyFor(network.CurrentQuality())

	return r.finish(start, res)
}

// SwitchQuality re-selects the variant with the given id from the last
// resolved ladder. No network I/O occurs. Returns false, leaving the
// previous selection unchanged, when the id is not in the ladder.
func (r *Resolver) SwitchQuality(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.last == nil {
		metrics.RecordQualitySwitch(false)
		return false
	}
	for i := range r.last.Variants {
		if r.last.Variants[i].ID == id {
			v := r.last.Variants[i]
			r.last.Selected = &v
			metrics.RecordQualitySwitch(true)
			r.logger.Info().
				Str("variant_id", id).
				Str(xglog.FieldTier, v.Tier.String()).
				Msg("quality switched")
			return true
		}
	}
	metrics.RecordQualitySwitch(false)
	return false
}

// LastResult returns a copy of the most recent resolution result, or nil if
// nothing has been resolved yet.
func (r *Resolver) LastResult() *ResolutionResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.last == nil {
		return nil
	}
	cp := cloneResult(*r.last)
	return &cp
}

func (r *Resolver) resolveHLS(ctx context.Context, rawURL string) ResolutionResult {
	body, err := r.manifest(ctx, rawURL)
	if err != nil {
		return r.errorResult(rawURL, FormatHLS, fetchErrorMessage(err))
	}
	if body == "" {
		return r.errorResult(rawURL, FormatHLS, "manifest fetch returned empty body")
	}

	res := ResolutionResult{
		Descriptor: StreamDescriptor{URL: rawURL, Format: FormatHLS},
	}
	switch classifyPlaylist(body) {
	case playlistMaster:
		res.Variants = parseMasterPlaylist(body, rawURL, r.logger)
		res.IsAdaptive = true
		if len(res.Variants) == 0 {
			res.ErrorMessage = "no playable variants in master playlist"
		}
	case playlistMedia:
		res.Variants = []QualityVariant{mediaRenditionVariant(rawURL)}
		res.IsAdaptive = false
	default:
		res.ErrorMessage = "Unknown HLS playlist type"
	}
	return res
}

func (r *Resolver) resolveDASH(ctx context.Context, rawURL string) ResolutionResult {
	body, err := r.manifest(ctx, rawURL)
	if err != nil {
		return r.errorResult(rawURL, FormatDASH, fetchErrorMessage(err))
	}
	if body == "" {
		return r.errorResult(rawURL, FormatDASH, "manifest fetch returned empty body")
	}

	variants, err := parseMPD(body, rawURL, r.logger)
	if err != nil {
		return r.errorResult(rawURL, FormatDASH, fmt.Sprintf("manifest parse failed: %v", err))
	}

	return ResolutionResult{
		Descriptor: StreamDescriptor{URL: rawURL, Format: FormatDASH},
		Variants:   variants,
		IsAdaptive: len(variants) > 1,
	}
}

func (r *Resolver) resolveProgressive(ctx context.Context, rawURL string) ResolutionResult {
	info, err := r.fetcher.Probe(ctx, rawURL)
	if err != nil {
		return r.errorResult(rawURL, FormatProgressive, probeErrorMessage(err))
	}

	variant := QualityVariant{
		ID:        "progressive-0",
		URL:       rawURL,
		Bandwidth: estimateBitrate(info.ContentLength),
		Codecs:    "Unknown",
		Tier:      TierAuto,
	}
	return ResolutionResult{
		Descriptor: StreamDescriptor{URL: rawURL, Format: FormatProgressive},
		Variants:   []QualityVariant{variant},
		IsAdaptive: false,
	}
}

// manifest fetches a manifest body, consulting the cache first.
func (r *Resolver) manifest(ctx context.Context, rawURL string) (string, error) {
	key := "manifest:" + rawURL
	if body, ok := r.cache.Get(key); ok {
		metrics.RecordManifestCache(true)
		return body, nil
	}
	metrics.RecordManifestCache(false)

	body, err := r.fetcher.FetchText(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if body != "" {
		r.cache.Set(key, body, r.manifestTTL())
	}
	return body, nil
}

// estimateBitrate derives a coarse bitrate from a progressive file's size
// when no other signal is available. Monotonic step function.
func estimateBitrate(contentLength int64) int64 {
	const mb = int64(1024 * 1024)
	switch {
	case contentLength > 500*mb:
		return 8_000_000
	case contentLength > 200*mb:
		return 5_000_000
	case contentLength > 100*mb:
		return 3_000_000
	default:
		return 1_500_000
	}
}

func (r *Resolver) errorResult(rawURL string, format StreamFormat, msg string) ResolutionResult {
	return ResolutionResult{
		Descriptor:   StreamDescriptor{URL: rawURL, Format: format},
		ErrorMessage: msg,
	}
}

// finish records metrics and the last result, then returns res.
func (r *Resolver) finish(start time.Time, res ResolutionResult) ResolutionResult {
	elapsed := time.Since(start)
	metrics.RecordResolution(string(res.Descriptor.Format), res.ErrorMessage == "", elapsed)

	evt := r.logger.Info()
	if res.ErrorMessage != "" {
		evt = r.logger.Warn()
	}
	evt.
		Str(xglog.FieldEvent, "resolver.resolved").
		Str(xglog.FieldURL, res.Descriptor.URL).
		Str(xglog.FieldFormat, string(res.Descriptor.Format)).
		Int("variants", len(res.Variants)).
		Bool("adaptive", res.IsAdaptive).
		Dur("duration", elapsed).
		Str("error", res.ErrorMessage).
		Msg("stream resolved")

	cp := cloneResult(res)
	r.mu.Lock()
	r.last = &cp
	r.mu.Unlock()

	return res
}

func cloneResult(res ResolutionResult) ResolutionResult {
	cp := res
	cp.Variants = append([]QualityVariant(nil), res.Variants...)
	if res.Selected != nil {
		sel := *res.Selected
		cp.Selected = &sel
	}
	return cp
}

func cancelled(err error) bool {
	return err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

func fetchErrorMessage(err error) string {
	if cancelled(err) {
		return "cancelled"
	}
	return fmt.Sprintf("manifest fetch failed: %v", err)
}

func probeErrorMessage(err error) string {
	if cancelled(err) {
		return "cancelled"
	}
	return fmt.Sprintf("probe failed: %v", err)
}
