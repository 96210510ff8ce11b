package resolver

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080,CODECS="avc1"
1080p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720,CODECS="avc1"
720p.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:10
#EXTINF:9.009,
segment0.ts
#EXTINF:9.009,
segment1.ts
#EXT-X-ENDLIST
`

func TestClassifyPlaylist(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want playlistKind
	}{
		{"master", masterPlaylist, playlistMaster},
		{"media", mediaPlaylist, playlistMedia},
		{"neither", "#EXTM3U\n#EXT-X-VERSION:3\n", playlistUnknown},
		{"empty", "", playlistUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := classifyPlaylist(tt.body); got != tt.want {
				t.Errorf("classifyPlaylist = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseMasterPlaylist(t *testing.T) {
	t.Parallel()

	variants := parseMasterPlaylist(masterPlaylist, "https://cdn.example.com/video/master.m3u8", zerolog.Nop())

	want := []QualityVariant{
		{
			ID:        "hls-0",
			URL:       "https://cdn.example.com/video/1080p.m3u8",
			Bandwidth: 5000000,
			Width:     1920,
			Height:    1080,
			Codecs:    "avc1",
			Tier:      Tier1080p,
		},
		{
			ID:        "hls-1",
			URL:       "https://cdn.example.com/video/720p.m3u8",
			Bandwidth: 2500000,
			Width:     1280,
			Height:    720,
			Codecs:    "avc1",
			Tier:      Tier720p,
		},
	}
	if diff := cmp.Diff(want, variants); diff != "" {
		t.Errorf("variant ladder mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMasterPlaylistSortsByBandwidthDescending(t *testing.T) {
	t.Parallel()

	// Manifest order ascending; ladder order must not depend on it.
	body := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
360p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
1080p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
720p.m3u8
`
	variants := parseMasterPlaylist(body, "https://cdn.example.com/master.m3u8", zerolog.Nop())

	if len(variants) != 3 {
		t.Fatalf("got %d variants, want 3", len(variants))
	}
	for i := 1; i < len(variants); i++ {
		if variants[i].Bandwidth > variants[i-1].Bandwidth {
			t.Errorf("ladder not sorted descending at index %d: %d > %d",
				i, variants[i].Bandwidth, variants[i-1].Bandwidth)
		}
	}
}

func TestParseMasterPlaylistSkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	body := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=notanumber,RESOLUTION=1920x1080
bad.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
good.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=640xbroken
alsobad.m3u8
`
	variants := parseMasterPlaylist(body, "https://cdn.example.com/master.m3u8", zerolog.Nop())

	if len(variants) != 1 {
		t.Fatalf("got %d variants, want 1 (malformed entries skipped)", len(variants))
	}
	if variants[0].URL != "https://cdn.example.com/good.m3u8" {
		t.Errorf("surviving variant URL = %q", variants[0].URL)
	}
}

func TestParseMasterPlaylistDefaults(t *testing.T) {
	t.Parallel()

	body := `#EXTM3U
#EXT-X-STREAM-INF:PROGRAM-ID=1
bare.m3u8
`
	variants := parseMasterPlaylist(body, "https://cdn.example.com/master.m3u8", zerolog.Nop())

	if len(variants) != 1 {
		t.Fatalf("got %d variants, want 1", len(variants))
	}
	v := variants[0]
	if v.Bandwidth != 0 || v.Width != 0 || v.Height != 0 {
		t.Errorf("missing attributes should default to zero, got %+v", v)
	}
	if v.Codecs != "Unknown" {
		t.Errorf("Codecs = %q, want Unknown", v.Codecs)
	}
	if v.Tier != TierAuto {
		t.Errorf("Tier = %v, want TierAuto", v.Tier)
	}
}

func TestParseMasterPlaylistAbsoluteAndRelativeURIs(t *testing.T) {
	t.Parallel()

	body := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
https://other-cdn.example.net/abs/1080p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
/root/720p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=842x480
sub/480p.m3u8
`
	variants := parseMasterPlaylist(body, "https://cdn.example.com/video/master.m3u8", zerolog.Nop())

	wantURLs := []string{
		"https://other-cdn.example.net/abs/1080p.m3u8",
		"https://cdn.example.com/root/720p.m3u8",
		"https://cdn.example.com/video/sub/480p.m3u8",
	}
	if len(variants) != len(wantURLs) {
		t.Fatalf("got %d variants, want %d", len(variants), len(wantURLs))
	}
	for i, want := range wantURLs {
		if variants[i].URL != want {
			t.Errorf("variant[%d].URL = %q, want %q", i, variants[i].URL, want)
		}
	}
}

func TestParseAttributeList(t *testing.T) {
	t.Parallel()

	attrs := `BANDWIDTH=5000000,RESOLUTION=1920x1080,CODECS="avc1.64001f,mp4a.40.2",FRAME-RATE=29.970`
	m := parseAttributeList(attrs)

	if m["BANDWIDTH"] != "5000000" {
		t.Errorf("BANDWIDTH = %q", m["BANDWIDTH"])
	}
	if m["RESOLUTION"] != "1920x1080" {
		t.Errorf("RESOLUTION = %q", m["RESOLUTION"])
	}
	// Comma inside the quoted codec list must not split the pair.
	if m["CODECS"] != "avc1.64001f,mp4a.40.2" {
		t.Errorf("CODECS = %q", m["CODECS"])
	}
	if m["FRAME-RATE"] != "29.970" {
		t.Errorf("FRAME-RATE = %q", m["FRAME-RATE"])
	}
}

func TestCommentBreaksAttributeURIPair(t *testing.T) {
	t.Parallel()

	body := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
#EXT-X-SOMETHING:else
orphan.m3u8
`
	variants := parseMasterPlaylist(body, "https://cdn.example.com/master.m3u8", zerolog.Nop())
	if len(variants) != 0 {
		t.Errorf("got %d variants, want 0 (comment breaks the pair)", len(variants))
	}
}
