package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-tululu/config"
)

const testBaseURL = "http://tululu.test"

func newTestFetcher(t *testing.T) (*Fetcher, *httpmock.MockTransport) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBaseURL

	f, err := NewFetcher(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	f.collector.WithTransport(transport)
	return f, transport
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return httpmock.ResponderFromResponse(resp)
}

func textResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return httpmock.ResponderFromResponse(resp)
}

func imageResponder(body []byte) httpmock.Responder {
	resp := httpmock.NewBytesResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "image/jpeg")
	return httpmock.ResponderFromResponse(resp)
}

func redirectResponder(location string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusFound, "")
	resp.Header.Set("Location", location)
	return httpmock.ResponderFromResponse(resp)
}

func TestFetcherReturnsPage(t *testing.T) {
	f, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", testBaseURL+"/b7/", htmlResponder("<h1>Книга :: Автор</h1>"))

	page, err := f.Fetch(context.Background(), testBaseURL+"/b7/", nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", page.StatusCode)
	}
	if string(page.Body) != "<h1>Книга :: Автор</h1>" {
		t.Fatalf("body = %q", page.Body)
	}
	if page.URL != testBaseURL+"/b7/" {
		t.Fatalf("url = %q", page.URL)
	}
	if f.RequestCount() != 1 {
		t.Fatalf("request count = %d, want 1", f.RequestCount())
	}
}

func TestFetcherAppendsParams(t *testing.T) {
	f, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", testBaseURL+"/txt.php?id=32168", textResponder("text body"))

	page, err := f.Fetch(context.Background(), testBaseURL+"/txt.php", url.Values{"id": {"32168"}})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(page.Body) != "text body" {
		t.Fatalf("body = %q", page.Body)
	}
}

func TestFetcherRedirectIsNotFollowed(t *testing.T) {
	f, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", testBaseURL+"/b1/", redirectResponder(testBaseURL+"/"))
	transport.RegisterResponder("GET", testBaseURL+"/", htmlResponder("home"))

	_, err := f.Fetch(context.Background(), testBaseURL+"/b1/", nil)
	var redirect *RedirectError
	if !errors.As(err, &redirect) {
		t.Fatalf("expected RedirectError, got %v", err)
	}
	if redirect.StatusCode != http.StatusFound || redirect.Location != testBaseURL+"/" {
		t.Fatalf("unexpected redirect: %+v", redirect)
	}
	if !IsRedirect(err) {
		t.Fatalf("IsRedirect should report true")
	}
	if calls := transport.GetCallCountInfo()["GET "+testBaseURL+"/"]; calls != 0 {
		t.Fatalf("redirect target fetched %d times", calls)
	}
}

func TestFetcherHTTPStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		label  string
	}{
		{name: "server error", status: http.StatusInternalServerError, label: "http"},
		{name: "not found", status: http.StatusNotFound, label: "not_found"},
		{name: "forbidden", status: http.StatusForbidden, label: "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, transport := newTestFetcher(t)
			transport.RegisterResponder("GET", testBaseURL+"/l55/1/", httpmock.NewStringResponder(tt.status, ""))

			_, err := f.Fetch(context.Background(), testBaseURL+"/l55/1/", nil)
			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("expected HTTPError, got %v", err)
			}
			if httpErr.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", httpErr.StatusCode, tt.status)
			}
			if IsRedirect(err) {
				t.Fatalf("status %d must not be a redirect", tt.status)
			}
			if got := errorTypeLabel(err); got != tt.label {
				t.Fatalf("label = %q, want %q", got, tt.label)
			}
		})
	}
}

func TestFetcherTransportError(t *testing.T) {
	f, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", testBaseURL+"/l55/1/", httpmock.NewErrorResponder(errors.New("boom")))

	if _, err := f.Fetch(context.Background(), testBaseURL+"/l55/1/", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFetcherCanceledContext(t *testing.T) {
	f, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", testBaseURL+"/l55/1/", htmlResponder("page"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Fetch(ctx, testBaseURL+"/l55/1/", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if transport.GetTotalCallCount() != 0 {
		t.Fatalf("no request should be sent after cancellation")
	}
}

func TestNewFetcherRequiresUserAgent(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.UserAgent = ""
	if _, err := NewFetcher(cfg, nil); err == nil {
		t.Fatalf("expected error for empty user agent")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "redirect", err: errors.New("Found"), statusCode: http.StatusFound, expected: "redirect"},
		{name: "moved permanently", err: nil, statusCode: http.StatusMovedPermanently, expected: "redirect"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusBadGateway, expected: "http"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, "http://tululu.test/x", tt.statusCode, "")); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}
