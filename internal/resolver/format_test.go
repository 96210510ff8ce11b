package resolver

import "testing"

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want StreamFormat
	}{
		{"hls plain", "https://cdn.example.com/video/master.m3u8", FormatHLS},
		{"hls with query", "https://cdn.example.com/video/master.m3u8?token=abc&expires=99", FormatHLS},
		{"hls uppercase", "https://cdn.example.com/video/MASTER.M3U8", FormatHLS},
		{"dash", "https://cdn.example.com/video/stream.mpd", FormatDASH},
		{"dash with query", "https://cdn.example.com/v/s.mpd?sig=x", FormatDASH},
		{"mp4", "https://cdn.example.com/movie.mp4", FormatProgressive},
		{"mov", "https://cdn.example.com/clip.mov", FormatProgressive},
		{"avi", "http://host/old.avi", FormatProgressive},
		{"mkv", "http://host/rip.mkv", FormatProgressive},
		{"webm", "http://host/clip.webm", FormatProgressive},
		{"mp4 with fragment", "http://host/clip.mp4#t=30", FormatProgressive},
		{"no extension", "https://cdn.example.com/stream/12345", FormatUnknown},
		{"unrelated extension", "https://cdn.example.com/page.html", FormatUnknown},
		{"extension in query only", "https://cdn.example.com/play?file=x.m3u8", FormatUnknown},
		{"empty", "", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DetectFormat(tt.url); got != tt.want {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestFormatFromContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        StreamFormat
	}{
		{"application/vnd.apple.mpegurl", FormatHLS},
		{"application/x-mpegURL", FormatHLS},
		{"application/vnd.apple.mpegurl; charset=utf-8", FormatHLS},
		{"application/dash+xml", FormatDASH},
		{"video/mp4", FormatProgressive},
		{"video/webm", FormatProgressive},
		{"text/html", FormatUnknown},
		{"", FormatUnknown},
	}

	for _, tt := range tests {
		if got := formatFromContentType(tt.contentType); got != tt.want {
			t.Errorf("formatFromContentType(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

func TestTierForHeight(t *testing.T) {
	t.Parallel()

	tests := []struct {
		height int
		want   QualityTier
	}{
		{2160, Tier4K},
		{4320, Tier4K},
		{1080, Tier1080p},
		{1440, Tier1080p},
		{720, Tier720p},
		{480, Tier480p},
		{360, Tier360p},
		{240, Tier240p},
		{144, TierAuto},
		{0, TierAuto},
	}

	for _, tt := range tests {
		if got := TierForHeight(tt.height); got != tt.want {
			t.Errorf("TierForHeight(%d) = %v, want %v", tt.height, got, tt.want)
		}
	}
}

func TestTierRoundTrip(t *testing.T) {
	t.Parallel()

	for _, tier := range []QualityTier{TierAuto, Tier240p, Tier360p, Tier480p, Tier720p, Tier1080p, Tier4K} {
		parsed, ok := ParseTier(tier.String())
		if !ok || parsed != tier {
			t.Errorf("ParseTier(%q) = %v, %v; want %v, true", tier.String(), parsed, ok, tier)
		}
	}
	if _, ok := ParseTier("8k"); ok {
		t.Error("ParseTier(8k) should not parse")
	}
}

func TestTierCanonicalHeightDefault(t *testing.T) {
	t.Parallel()

	if got := TierAuto.CanonicalHeight(); got != 720 {
		t.Errorf("TierAuto.CanonicalHeight() = %d, want 720", got)
	}
}
