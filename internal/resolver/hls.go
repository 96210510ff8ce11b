package resolver

import (
	"bufio"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	tagStreamInf      = "#EXT-X-STREAM-INF:"
	tagTargetDuration = "#EXT-X-TARGETDURATION:"
)

type playlistKind int

const (
	playlistUnknown playlistKind = iota
	playlistMaster
	playlistMedia
)

// classifyPlaylist decides whether an HLS playlist is a master playlist
// (variant ladder) or a media playlist (single rendition with segments).
func classifyPlaylist(body string) playlistKind {
	scanner := bufio.NewScanner(strings.NewReader(body))
	kind := playlistUnknown
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, tagStreamInf) {
			return playlistMaster
		}
		if strings.HasPrefix(line, tagTargetDuration) {
			kind = playlistMedia
		}
	}
	return kind
}

// parseMasterPlaylist extracts the variant ladder from a master playlist.
// Each #EXT-X-STREAM-INF attribute line must be immediately followed by a
// non-comment URI line; entries with unparsable attributes are skipped
// individually. The returned ladder is sorted descending by bandwidth.
func parseMasterPlaylist(body, manifestURL string, logger zerolog.Logger) []QualityVariant {
	base, err := url.Parse(manifestURL)
	if err != nil {
		base = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(body))
	var pending string
	var variants []QualityVariant

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, tagStreamInf) {
			pending = strings.TrimPrefix(line, tagStreamInf)
			continue
		}
		if strings.HasPrefix(line, "#") {
			// A comment between the attribute line and its URI breaks the pair.
			pending = ""
			continue
		}
		if pending == "" {
			continue
		}
		attrs := pending
		pending = ""
		v, ok := variantFromAttributes(attrs, line, base)
		if !ok {
			logger.Debug().
				Str("attributes", attrs).
				Str("uri", line).
				Msg("skipping unparsable variant entry")
			continue
		}
		variants = append(variants, v)
	}

	sortByBandwidth(variants)
	for i := range variants {
		variants[i].ID = fmt.Sprintf("hls-%d", i)
	}
	return variants
}

// mediaRenditionVariant wraps a media playlist as its own single rendition.
// Media playlists carry no bandwidth ladder.
func mediaRenditionVariant(manifestURL string) QualityVariant {
	return QualityVariant{
		ID:     "hls-media-0",
		URL:    manifestURL,
		Codecs: "Unknown",
		Tier:   TierAuto,
	}
}

func variantFromAttributes(attrs, uri string, base *url.URL) (QualityVariant, bool) {
	m := parseAttributeList(attrs)
	v := QualityVariant{Codecs: "Unknown"}

	if bw, ok := m["BANDWIDTH"]; ok {
		n, err := strconv.ParseInt(bw, 10, 64)
		if err != nil {
			return QualityVariant{}, false
		}
		v.Bandwidth = n
	}
	if res, ok := m["RESOLUTION"]; ok {
		w, h, err := parseResolution(res)
		if err != nil {
			return QualityVariant{}, false
		}
		v.Width, v.Height = w, h
	}
	if c, ok := m["CODECS"]; ok && c != "" {
		v.Codecs = c
	}
	if fr, ok := m["FRAME-RATE"]; ok {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			v.FrameRate = f
		}
	}

	v.Tier = TierForHeight(v.Height)
	v.URL = resolveReference(base, uri)
	return v, true
}

// parseAttributeList splits an HLS attribute list (KEY=VALUE pairs separated
// by commas, values optionally quoted) into a map. Commas inside quoted
// values do not split.
func parseAttributeList(attrs string) map[string]string {
	out := make(map[string]string)
	var key, value strings.Builder
	inKey := true
	inQuotes := false

	flush := func() {
		k := strings.TrimSpace(key.String())
		if k != "" {
			out[strings.ToUpper(k)] = strings.Trim(strings.TrimSpace(value.String()), `"`)
		}
		key.Reset()
		value.Reset()
		inKey = true
	}

	for _, r := range attrs {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			value.WriteRune(r)
		case r == '=' && inKey && !inQuotes:
			inKey = false
		case r == ',' && !inQuotes:
			flush()
		case inKey:
			key.WriteRune(r)
		default:
			value.WriteRune(r)
		}
	}
	flush()
	return out
}

func parseResolution(res string) (width, height int, err error) {
	parts := strings.SplitN(strings.ToLower(res), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q", res)
	}
	width, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution width %q", res)
	}
	height, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution height %q", res)
	}
	return width, height, nil
}

// resolveReference resolves a possibly-relative playlist URI against the
// manifest's base URL.
func resolveReference(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func sortByBandwidth(variants []QualityVariant) {
	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Bandwidth > variants[j].Bandwidth
	})
}
