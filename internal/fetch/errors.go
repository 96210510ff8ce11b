package fetch

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNotFound            = errors.New("fetch: resource not found")
	ErrForbidden           = errors.New("fetch: access forbidden")
	ErrUpstreamUnavailable = errors.New("fetch: host unreachable or transport failure")
	ErrUpstreamError       = errors.New("fetch: upstream internal error (5xx)")
	ErrBodyTooLarge        = errors.New("fetch: response body exceeds size limit")
	ErrTimeout             = errors.New("fetch: request timed out")
)

// FetchError wraps the sentinel errors with request context.
type FetchError struct {
	Sentinel  error
	Operation string
	URL       string
	Status    int
	Err       error // Nested lower-level error (e.g. net.Error)
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch: %s %s: %v", e.Operation, e.URL, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Sentinel
}

func sentinelForStatus(status int) error {
	switch {
	case status == 404:
		return ErrNotFound
	case status == 401 || status == 403:
		return ErrForbidden
	case status >= 500:
		return ErrUpstreamError
	default:
		return ErrUpstreamUnavailable
	}
}
