// SPDX-License-Identifier: MIT

// Package fetch implements the HTTP side of stream resolution: manifest
// downloads and HEAD probes against origin servers and CDNs.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/astralstream/resolver/internal/log"
	"github.com/astralstream/resolver/internal/resolver"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultBodyCap  = 4 << 20 // manifests are small; anything larger is suspect
	defaultUA       = "astral-resolver/1.0"
	headFallbackCap = 1 // bytes requested when falling back to ranged GET
)

// TransferObserver receives throughput samples from completed downloads.
// Used to feed the network quality monitor.
type TransferObserver func(bytes int64, elapsed time.Duration)

// Client performs manifest fetches and content probes.
type Client struct {
	http     *http.Client
	logger   zerolog.Logger
	bodyCap  int64
	observer TransferObserver
	timeout  atomic.Int64 // per-request deadline in nanoseconds
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout.Store(int64(d))
		}
	}
}

// WithBodyCap overrides the maximum manifest size accepted.
func WithBodyCap(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.bodyCap = n
		}
	}
}

// WithObserver registers a throughput observer called after each
// successful manifest download.
func WithObserver(obs TransferObserver) Option {
	return func(c *Client) {
		c.observer = obs
	}
}

// WithHTTPClient swaps the underlying HTTP client. Used in tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient creates a manifest fetch client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		logger:  xglog.WithComponent("fetch"),
		bodyCap: defaultBodyCap,
	}
	c.timeout.Store(int64(defaultTimeout))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTimeout updates the per-request timeout. Safe to call while requests
// are in flight; in-flight requests keep their original deadline.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout.Store(int64(d))
	}
}

// requestContext derives the per-request deadline from the configured
// timeout. The deadline covers the full request including the body read.
func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	d := time.Duration(c.timeout.Load())
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// FetchText downloads a text resource (playlist or manifest) and returns
// its body. Bodies above the configured cap are rejected.
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{Sentinel: ErrUpstreamUnavailable, Operation: "GET", URL: url, Err: err}
	}
	req.Header.Set("User-Agent", defaultUA)

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return "", c.transportError("GET", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		c.logger.Debug().
			Str(xglog.FieldURL, url).
			Int("status", res.StatusCode).
			Msg("manifest fetch rejected")
		return "", &FetchError{
			Sentinel:  sentinelForStatus(res.StatusCode),
			Operation: "GET",
			URL:       url,
			Status:    res.StatusCode,
		}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, c.bodyCap+1))
	if err != nil {
		return "", c.transportError("GET", url, err)
	}
	if int64(len(body)) > c.bodyCap {
		return "", &FetchError{Sentinel: ErrBodyTooLarge, Operation: "GET", URL: url}
	}

	if c.observer != nil {
		c.observer(int64(len(body)), time.Since(start))
	}
	return string(body), nil
}

// Probe issues a HEAD request and reports Content-Type and Content-Length.
// Servers that reject HEAD get a one-byte ranged GET instead.
func (c *Client) Probe(ctx context.Context, url string) (resolver.ProbeInfo, error) {
	info, err := c.probeOnce(ctx, url, http.MethodHead)
	if err == nil {
		return info, nil
	}

	var fe *FetchError
	if errors.As(err, &fe) && fe.Status == http.StatusMethodNotAllowed {
		c.logger.Debug().Str(xglog.FieldURL, url).Msg("HEAD not supported, retrying with ranged GET")
		return c.probeOnce(ctx, url, http.MethodGet)
	}
	return resolver.ProbeInfo{}, err
}

func (c *Client) probeOnce(ctx context.Context, url, method string) (resolver.ProbeInfo, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return resolver.ProbeInfo{}, &FetchError{Sentinel: ErrUpstreamUnavailable, Operation: method, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", defaultUA)
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return resolver.ProbeInfo{}, c.transportError(method, url, err)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(res.Body, headFallbackCap)) //nolint:errcheck
		res.Body.Close()
	}()

	if res.StatusCode >= 400 {
		return resolver.ProbeInfo{}, &FetchError{
			Sentinel:  sentinelForStatus(res.StatusCode),
			Operation: method,
			URL:       url,
			Status:    res.StatusCode,
		}
	}

	info := resolver.ProbeInfo{
		ContentType:   res.Header.Get("Content-Type"),
		ContentLength: res.ContentLength,
	}
	if res.StatusCode == http.StatusPartialContent {
		// A ranged GET reports the length of the one-byte slice in
		// Content-Length; the full size lives in the Content-Range total.
		if total, ok := contentRangeTotal(res.Header.Get("Content-Range")); ok {
			info.ContentLength = total
		}
	}
	if info.ContentLength < 0 {
		info.ContentLength = 0
	}
	return info, nil
}

// contentRangeTotal extracts the complete length from a Content-Range
// header such as "bytes 0-0/629145600". Servers may report "*" when the
// total is unknown.
func contentRangeTotal(header string) (int64, bool) {
	rest, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, false
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, false
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (c *Client) transportError(op, url string, err error) error {
	sentinel := ErrUpstreamUnavailable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Preserve the context error so callers can detect cancellation
		// with errors.Is through the wrapper.
		return err
	}
	return &FetchError{Sentinel: sentinel, Operation: op, URL: url, Err: err}
}
