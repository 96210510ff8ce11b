package resolver

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Attribute values are parsed as strings so one malformed representation can
// be skipped without failing the whole document.
type mpdDocument struct {
	XMLName xml.Name    `xml:"MPD"`
	BaseURL string      `xml:"BaseURL"`
	Periods []mpdPeriod `xml:"Period"`
}

type mpdPeriod struct {
	BaseURL        string             `xml:"BaseURL"`
	AdaptationSets []mpdAdaptationSet `xml:"AdaptationSet"`
}

type mpdAdaptationSet struct {
	MimeType        string              `xml:"mimeType,attr"`
	ContentType     string              `xml:"contentType,attr"`
	Representations []mpdRepresentation `xml:"Representation"`
}

type mpdRepresentation struct {
	ID        string `xml:"id,attr"`
	Bandwidth string `xml:"bandwidth,attr"`
	Width     string `xml:"width,attr"`
	Height    string `xml:"height,attr"`
	FrameRate string `xml:"frameRate,attr"`
	Codecs    string `xml:"codecs,attr"`
	MimeType  string `xml:"mimeType,attr"`
	BaseURL   string `xml:"BaseURL"`
}

// parseMPD extracts one QualityVariant per video <Representation> element,
// sorted descending by bandwidth. Non-video adaptation sets (audio, text)
// are excluded from the ladder.
func parseMPD(body, manifestURL string, logger zerolog.Logger) ([]QualityVariant, error) {
	var doc mpdDocument
	if err := xml.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("parse mpd: %w", err)
	}

	base, err := url.Parse(manifestURL)
	if err != nil {
		base = nil
	}
	if doc.BaseURL != "" {
		base = resolveBaseURL(base, doc.BaseURL)
	}

	var variants []QualityVariant
	for _, period := range doc.Periods {
		periodBase := base
		if period.BaseURL != "" {
			periodBase = resolveBaseURL(base, period.BaseURL)
		}
		for _, set := range period.AdaptationSets {
			for _, rep := range set.Representations {
				if !isVideoRepresentation(set, rep) {
					continue
				}
				v, ok := variantFromRepresentation(rep, periodBase, manifestURL)
				if !ok {
					logger.Debug().
						Str("representation_id", rep.ID).
						Msg("skipping unparsable representation")
					continue
				}
				variants = append(variants, v)
			}
		}
	}

	sortByBandwidth(variants)
	for i := range variants {
		if variants[i].ID == "" {
			variants[i].ID = fmt.Sprintf("dash-%d", i)
		} else {
			variants[i].ID = "dash-" + variants[i].ID
		}
	}
	return variants, nil
}

func isVideoRepresentation(set mpdAdaptationSet, rep mpdRepresentation) bool {
	mime := rep.MimeType
	if mime == "" {
		mime = set.MimeType
	}
	if strings.HasPrefix(mime, "video/") {
		return true
	}
	if mime != "" {
		return false
	}
	if set.ContentType != "" {
		return set.ContentType == "video"
	}
	// No type hints at all: treat anything with spatial dimensions as video.
	return rep.Width != "" || rep.Height != ""
}

func variantFromRepresentation(rep mpdRepresentation, base *url.URL, manifestURL string) (QualityVariant, bool) {
	v := QualityVariant{ID: rep.ID, Codecs: "Unknown"}

	if rep.Bandwidth != "" {
		n, err := strconv.ParseInt(rep.Bandwidth, 10, 64)
		if err != nil {
			return QualityVariant{}, false
		}
		v.Bandwidth = n
	}
	if rep.Width != "" {
		w, err := strconv.Atoi(rep.Width)
		if err != nil {
			return QualityVariant{}, false
		}
		v.Width = w
	}
	if rep.Height != "" {
		h, err := strconv.Atoi(rep.Height)
		if err != nil {
			return QualityVariant{}, false
		}
		v.Height = h
	}
	if rep.Codecs != "" {
		v.Codecs = rep.Codecs
	}
	if rep.FrameRate != "" {
		v.FrameRate = parseFrameRate(rep.FrameRate)
	}

	v.Tier = TierForHeight(v.Height)
	if rep.BaseURL != "" {
		v.URL = resolveReference(base, rep.BaseURL)
	} else {
		v.URL = manifestURL
	}
	return v, true
}

// parseFrameRate handles both plain ("25") and fractional ("30000/1001")
// MPD frame rate notation.
func parseFrameRate(s string) float64 {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return n / d
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func resolveBaseURL(base *url.URL, ref string) *url.URL {
	if base == nil {
		u, err := url.Parse(ref)
		if err != nil {
			return nil
		}
		return u
	}
	u, err := url.Parse(ref)
	if err != nil {
		return base
	}
	return base.ResolveReference(u)
}
