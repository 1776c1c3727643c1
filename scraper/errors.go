package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// RedirectError reports that the site answered with a redirect. On tululu
// this is how a missing book or page is signalled, so callers skip it.
type RedirectError struct {
	URL        string
	Location   string
	StatusCode int
}

func (e *RedirectError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("redirect: %s answered %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("redirect: %s answered %d to %s", e.URL, e.StatusCode, e.Location)
}

// HTTPError reports any other non-success status.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http: %s answered %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// TimeoutError indicates a timeout while issuing a request.
type TimeoutError struct {
	Err error
}

func (e TimeoutError) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e TimeoutError) Unwrap() error {
	return e.Err
}

// ConnectionError indicates a network connectivity failure.
type ConnectionError struct {
	Err error
}

func (e ConnectionError) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ConnectionError) Unwrap() error {
	return e.Err
}

// IsRedirect reports whether err carries a RedirectError.
func IsRedirect(err error) bool {
	var redirect *RedirectError
	return errors.As(err, &redirect)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var redirect *RedirectError
	if errors.As(err, &redirect) {
		return "redirect"
	}
	var timeout TimeoutError
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ConnectionError
	if errors.As(err, &conn) {
		return "connection"
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusNotFound:
			return "not_found"
		case http.StatusTooManyRequests:
			return "rate_limited"
		}
		return "http"
	}
	return "other"
}

func classifyError(err error, requestURL string, statusCode int, location string) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if statusCode >= 300 && statusCode < 400 {
		return &RedirectError{URL: requestURL, Location: location, StatusCode: statusCode}
	}
	if statusCode != 0 && (statusCode < 200 || statusCode >= 300) {
		return &HTTPError{URL: requestURL, StatusCode: statusCode}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TimeoutError{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ConnectionError{Err: err}
	}

	return err
}
