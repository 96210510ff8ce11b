package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/astralstream/resolver/internal/history"
	xglog "github.com/astralstream/resolver/internal/log"
	"github.com/astralstream/resolver/internal/resolver"
)

type resolveResponse struct {
	URL          string                    `json:"url"`
	Format       resolver.StreamFormat     `json:"format"`
	IsAdaptive   bool                      `json:"isAdaptive"`
	Variants     []resolver.QualityVariant `json:"variants"`
	Selected     *resolver.QualityVariant  `json:"selected,omitempty"`
	Buffer       resolver.BufferPolicy     `json:"buffer"`
	ErrorMessage string                    `json:"errorMessage,omitempty"`
}

// handleResolve resolves a stream URL into a quality ladder.
// GET /api/v1/resolve?url=...&tier=720p
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := streamURLParam(w, r)
	if !ok {
		return
	}

	var tierOverride *resolver.QualityTier
	if raw := r.URL.Query().Get("tier"); raw != "" {
		tier, ok := resolver.ParseTier(raw)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "invalid_tier",
				"tier must be one of auto, 240p, 360p, 480p, 720p, 1080p, 4k")
			return
		}
		tierOverride = &tier
	}

	start := time.Now()
	res := s.resolver.ResolveStream(r.Context(), rawURL)

	if tierOverride != nil && len(res.Variants) > 0 {
		if selected, _ := resolver.Select(res.Variants, *tierOverride); selected != nil {
			res.Selected = selected
		}
	}

	s.recordHistory(r, res, time.Since(start))
	writeJSON(w, http.StatusOK, toResolveResponse(res))
}

// handleDetect classifies a URL by suffix only, without any network I/O.
// GET /api/v1/detect?url=...
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := streamURLParam(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"url":    rawURL,
		"format": resolver.DetectFormat(rawURL),
	})
}

type qualitySwitchRequest struct {
	VariantID string `json:"variantId"`
}

// handleQualitySwitch re-selects a variant from the last resolved ladder.
// POST /api/v1/quality/switch {"variantId": "hls-1"}
func (s *Server) handleQualitySwitch(w http.ResponseWriter, r *http.Request) {
	var req qualitySwitchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON with a variantId field")
		return
	}
	if req.VariantID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_variant_id", "variantId is required")
		return
	}

	if !s.resolver.SwitchQuality(req.VariantID) {
		writeJSONError(w, http.StatusNotFound, "variant_not_found",
			"no variant with that id in the last resolved ladder")
		return
	}

	last := s.resolver.LastResult()
	writeJSON(w, http.StatusOK, map[string]any{
		"switched": true,
		"selected": last.Selected,
	})
}

// handleHistory lists recent resolution attempts, newest first.
// GET /api/v1/history?limit=20
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, "history_disabled", "resolution history is disabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeJSONError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("history query failed")
		writeJSONError(w, http.StatusInternalServerError, "history_error", "failed to read resolution history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	failures := map[string]string{}
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "unavailable",
			"failures": failures,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) recordHistory(r *http.Request, res resolver.ResolutionResult, elapsed time.Duration) {
	if s.history == nil {
		return
	}

	entry := history.Entry{
		URL:          res.Descriptor.URL,
		Format:       string(res.Descriptor.Format),
		Adaptive:     res.IsAdaptive,
		VariantCount: len(res.Variants),
		ErrorMessage: res.ErrorMessage,
		DurationMS:   elapsed.Milliseconds(),
	}
	if res.Selected != nil {
		entry.Tier = res.Selected.Tier.String()
	}
	if err := s.history.Append(r.Context(), entry); err != nil {
		s.logger.Warn().Err(err).
			Str(xglog.FieldURL, res.Descriptor.URL).
			Msg("failed to record resolution history")
	}
}

func toResolveResponse(res resolver.ResolutionResult) resolveResponse {
	variants := res.Variants
	if variants == nil {
		variants = []resolver.QualityVariant{}
	}
	return resolveResponse{
		URL:          res.Descriptor.URL,
		Format:       res.Descriptor.Format,
		IsAdaptive:   res.IsAdaptive,
		Variants:     variants,
		Selected:     res.Selected,
		Buffer:       res.Buffer,
		ErrorMessage: res.ErrorMessage,
	}
}

// streamURLParam extracts and validates the url query parameter.
func streamURLParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_url", "url query parameter is required")
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_url", "url must be absolute with scheme and host")
		return "", false
	}
	switch u.Scheme {
	case "http", "https":
	default:
		writeJSONError(w, http.StatusBadRequest, "invalid_url", "only http and https URLs are supported")
		return "", false
	}
	return rawURL, true
}
