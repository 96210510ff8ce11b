package resolver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/astralstream/resolver/internal/cache"
)

type fakeFetcher struct {
	fetchText func(ctx context.Context, url string) (string, error)
	probe     func(ctx context.Context, url string) (ProbeInfo, error)
	fetches   int
}

func (f *fakeFetcher) FetchText(ctx context.Context, url string) (string, error) {
	f.fetches++
	if f.fetchText == nil {
		return "", errors.New("unexpected FetchText call")
	}
	return f.fetchText(ctx, url)
}

func (f *fakeFetcher) Probe(ctx context.Context, url string) (ProbeInfo, error) {
	if f.probe == nil {
		return ProbeInfo{}, errors.New("unexpected Probe call")
	}
	return f.probe(ctx, url)
}

func staticBody(body string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return body, nil }
}

func TestResolveStreamMasterPlaylist(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fetchText: staticBody(masterPlaylist)}
	r := New(fetcher, StaticMonitor{Quality: NetworkExcellent, Tier: Tier720p})

	res := r.ResolveStream(context.Background(), "https://cdn.example.com/video/master.m3u8")

	if res.ErrorMessage != "" {
		t.Fatalf("unexpected error message: %q", res.ErrorMessage)
	}
	if !res.IsAdaptive {
		t.Error("IsAdaptive = false, want true")
	}
	if len(res.Variants) != 2 {
		t.Fatalf("got %d variants, want 2", len(res.Variants))
	}
	if res.Variants[0].Bandwidth != 5000000 || res.Variants[0].Height != 1080 {
		t.Errorf("top variant = %+v", res.Variants[0])
	}
	if res.Variants[1].Bandwidth != 2500000 || res.Variants[1].Height != 720 {
		t.Errorf("second variant = %+v", res.Variants[1])
	}
	if res.Variants[0].URL != "https://cdn.example.com/video/1080p.m3u8" {
		t.Errorf("top variant URL = %q", res.Variants[0].URL)
	}
	if res.Selected == nil || res.Selected.Height != 720 {
		t.Errorf("Selected = %+v, want the 720p variant", res.Selected)
	}
	if res.Buffer != BufferPolicyFor(NetworkExcellent) {
		t.Errorf("Buffer = %+v", res.Buffer)
	}
}

func TestResolveStreamIdempotent(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fetchText: staticBody(masterPlaylist)}
	r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier1080p})

	first := r.ResolveStream(context.Background(), "https://cdn.example.com/video/master.m3u8")
	second := r.ResolveStream(context.Background(), "https://cdn.example.com/video/master.m3u8")

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("results differ between identical calls (-first +second):\n%s", diff)
	}
}

func TestResolveStreamMediaPlaylist(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fetchText: staticBody(mediaPlaylist)}
	r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier720p})

	res := r.ResolveStream(context.Background(), "https://cdn.example.com/video/media.m3u8")

	if res.IsAdaptive {
		t.Error("IsAdaptive = true for a media playlist")
	}
	if len(res.Variants) != 1 {
		t.Fatalf("got %d variants, want 1", len(res.Variants))
	}
	if res.Selected == nil {
		t.Fatal("Selected = nil for a non-empty ladder")
	}
}

func TestResolveStreamUnknownPlaylistShape(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fetchText: staticBody("#EXTM3U\n#EXT-X-VERSION:3\n")}
	r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier720p})

	res := r.ResolveStream(context.Background(), "https://cdn.example.com/odd.m3u8")

	if res.ErrorMessage != "Unknown HLS playlist type" {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}
	if len(res.Variants) != 0 {
		t.Errorf("got %d variants, want 0", len(res.Variants))
	}
}

func TestResolveStreamFetchErrorNeverThrows(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		fetchText: func(context.Context, string) (string, error) {
			return "", errors.New("HTTP 503")
		},
	}
	r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier720p})

	res := r.ResolveStream(context.Background(), "https://cdn.example.com/down.m3u8")

	if res.ErrorMessage == "" {
		t.Error("ErrorMessage empty after fetch failure")
	}
	if len(res.Variants) != 0 {
		t.Errorf("got %d variants, want 0", len(res.Variants))
	}
	if res.Selected != nil {
		t.Errorf("Selected = %+v, want nil", res.Selected)
	}
}

func TestResolveStreamCancelled(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		fetchText: func(ctx context.Context, _ string) (string, error) {
			return "", context.Canceled
		},
	}
	r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier720p})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.ResolveStream(ctx, "https://cdn.example.com/video/master.m3u8")

	if res.ErrorMessage != "cancelled" {
		t.Errorf("ErrorMessage = %q, want cancelled", res.ErrorMessage)
	}
	if len(res.Variants) != 0 {
		t.Errorf("got %d variants, want 0", len(res.Variants))
	}
}

func TestResolveStreamProgressive(t *testing.T) {
	t.Parallel()

	const mb = int64(1024 * 1024)
	tests := []struct {
		name          string
		contentLength int64
		wantBitrate   int64
	}{
		{"huge", 600 * mb, 8_000_000},
		{"large", 300 * mb, 5_000_000},
		{"medium", 150 * mb, 3_000_000},
		{"small", 50 * mb, 1_500_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fetcher := &fakeFetcher{
				probe: func(context.Context, string) (ProbeInfo, error) {
					return ProbeInfo{ContentType: "video/mp4", ContentLength: tt.contentLength}, nil
				},
			}
			r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier720p})

			res := r.ResolveStream(context.Background(), "https://cdn.example.com/movie.mp4")

			if res.IsAdaptive {
				t.Error("IsAdaptive = true for progressive")
			}
			if len(res.Variants) != 1 {
				t.Fatalf("got %d variants, want 1", len(res.Variants))
			}
			if res.Variants[0].Bandwidth != tt.wantBitrate {
				t.Errorf("estimated bitrate = %d, want %d", res.Variants[0].Bandwidth, tt.wantBitrate)
			}
		})
	}
}

func TestResolveStreamUnknownReclassifiedByContentType(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		probe: func(context.Context, string) (ProbeInfo, error) {
			return ProbeInfo{ContentType: "application/vnd.apple.mpegurl"}, nil
		},
		fetchText: staticBody(masterPlaylist),
	}
	r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier1080p})

	res := r.ResolveStream(context.Background(), "https://cdn.example.com/stream/12345")

	if res.Descriptor.Format != FormatHLS {
		t.Errorf("Format = %v, want FormatHLS after content-type probe", res.Descriptor.Format)
	}
	if len(res.Variants) != 2 {
		t.Errorf("got %d variants, want 2", len(res.Variants))
	}
}

func TestResolveStreamStillUnknown(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		probe: func(context.Context, string) (ProbeInfo, error) {
			return ProbeInfo{ContentType: "application/octet-stream"}, nil
		},
	}
	r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier720p})

	res := r.ResolveStream(context.Background(), "https://cdn.example.com/stream/12345")

	if res.Descriptor.Format != FormatUnknown {
		t.Errorf("Format = %v, want FormatUnknown", res.Descriptor.Format)
	}
	if len(res.Variants) != 0 {
		t.Errorf("got %d variants, want 0", len(res.Variants))
	}
	if !strings.Contains(res.ErrorMessage, "direct playback") {
		t.Errorf("ErrorMessage = %q, want direct-playback notice", res.ErrorMessage)
	}
}

func TestResolveStreamDASH(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fetchText: staticBody(sampleMPD)}
	r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier720p})

	res := r.ResolveStream(context.Background(), "https://cdn.example.com/dash/stream.mpd")

	if !res.IsAdaptive {
		t.Error("IsAdaptive = false, want true for multi-representation MPD")
	}
	if len(res.Variants) != 2 {
		t.Fatalf("got %d variants, want 2", len(res.Variants))
	}
	if res.Selected == nil || res.Selected.Height != 720 {
		t.Errorf("Selected = %+v, want the 720p representation", res.Selected)
	}
}

func TestSwitchQuality(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fetchText: staticBody(masterPlaylist)}
	r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier720p})

	res := r.ResolveStream(context.Background(), "https://cdn.example.com/video/master.m3u8")
	if res.Selected == nil {
		t.Fatal("Selected = nil after resolution")
	}
	previous := res.Selected.ID

	if r.SwitchQuality("nonexistent-id") {
		t.Error("SwitchQuality(nonexistent-id) = true, want false")
	}
	if last := r.LastResult(); last.Selected == nil || last.Selected.ID != previous {
		t.Errorf("failed switch changed selection: %+v", last.Selected)
	}

	if !r.SwitchQuality("hls-0") {
		t.Fatal("SwitchQuality(hls-0) = false, want true")
	}
	if last := r.LastResult(); last.Selected == nil || last.Selected.ID != "hls-0" {
		t.Errorf("Selected after switch = %+v, want hls-0", last.Selected)
	}
}

func TestSwitchQualityBeforeAnyResolution(t *testing.T) {
	t.Parallel()

	r := New(&fakeFetcher{}, StaticMonitor{Quality: NetworkGood, Tier: Tier720p})
	if r.SwitchQuality("any") {
		t.Error("SwitchQuality on fresh resolver = true, want false")
	}
	if r.LastResult() != nil {
		t.Error("LastResult on fresh resolver should be nil")
	}
}

func TestManifestCacheAvoidsRefetch(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fetchText: staticBody(masterPlaylist)}
	c := cache.NewMemoryCache(0)
	r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier720p},
		WithCache(c, time.Minute))

	url := "https://cdn.example.com/video/master.m3u8"
	r.ResolveStream(context.Background(), url)
	r.ResolveStream(context.Background(), url)

	if fetcher.fetches != 1 {
		t.Errorf("fetches = %d, want 1 (second call served from cache)", fetcher.fetches)
	}
}

func TestSetCacheTTLAppliesToNewEntries(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fetchText: staticBody(masterPlaylist)}
	c := cache.NewMemoryCache(0)
	r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier720p},
		WithCache(c, time.Hour))

	r.SetCacheTTL(10 * time.Millisecond)

	url := "https://cdn.example.com/video/master.m3u8"
	r.ResolveStream(context.Background(), url)
	time.Sleep(30 * time.Millisecond)
	r.ResolveStream(context.Background(), url)

	if fetcher.fetches != 2 {
		t.Errorf("fetches = %d, want 2 (entry stored with the updated TTL)", fetcher.fetches)
	}
}

func TestSetNetworkMonitorChangesSelection(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fetchText: staticBody(masterPlaylist)}
	r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier720p})

	url := "https://cdn.example.com/video/master.m3u8"
	first := r.ResolveStream(context.Background(), url)
	if first.Selected == nil || first.Selected.Height != 720 {
		t.Fatalf("Selected = %+v, want the 720p variant", first.Selected)
	}

	r.SetNetworkMonitor(StaticMonitor{Quality: NetworkExcellent, Tier: Tier1080p})

	second := r.ResolveStream(context.Background(), url)
	if second.Selected == nil || second.Selected.Height != 1080 {
		t.Errorf("Selected after monitor swap = %+v, want the 1080p variant", second.Selected)
	}
	if second.Buffer != BufferPolicyFor(NetworkExcellent) {
		t.Errorf("Buffer = %+v, want the excellent-network policy", second.Buffer)
	}
}

func TestResultImmutableAfterReturn(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fetchText: staticBody(masterPlaylist)}
	r := New(fetcher, StaticMonitor{Quality: NetworkGood, Tier: Tier720p})

	res := r.ResolveStream(context.Background(), "https://cdn.example.com/video/master.m3u8")
	res.Variants[0].Bandwidth = 1

	if last := r.LastResult(); last.Variants[0].Bandwidth == 1 {
		t.Error("mutating a returned result leaked into the retained copy")
	}
}
