package resolver

import (
	"net/url"
	"strings"
)

var progressiveExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"}

// DetectFormat classifies a playback URL by suffix. It is purely syntactic:
// the query string is stripped before matching and no network access occurs.
func DetectFormat(rawURL string) StreamFormat {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	} else if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.ToLower(path)

	switch {
	case strings.HasSuffix(path, ".m3u8"):
		return FormatHLS
	case strings.HasSuffix(path, ".mpd"):
		return FormatDASH
	}
	for _, ext := range progressiveExtensions {
		if strings.HasSuffix(path, ext) {
			return FormatProgressive
		}
	}
	return FormatUnknown
}

// formatFromContentType reclassifies an UNKNOWN URL from a HEAD probe's
// Content-Type header.
func formatFromContentType(contentType string) StreamFormat {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}

	switch {
	case ct == "application/vnd.apple.mpegurl" || ct == "application/x-mpegurl" || ct == "audio/mpegurl":
		return FormatHLS
	case ct == "application/dash+xml":
		return FormatDASH
	case strings.HasPrefix(ct, "video/"):
		return FormatProgressive
	default:
		return FormatUnknown
	}
}
