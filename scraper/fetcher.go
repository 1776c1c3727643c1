package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/models"
)

const (
	ctxStartKey = "start"
	ctxPageKey  = "page"
	ctxErrKey   = "error"
)

// Fetcher issues synchronous GET requests through a colly collector.
// Redirects are never followed; they surface as *RedirectError.
type Fetcher struct {
	collector *colly.Collector
	metrics   *Metrics

	requestCount int64
}

// NewFetcher builds a fetcher configured from cfg. metrics may be nil.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user agent cannot be empty")
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.MaxBodySize = cfg.MaxBodySize
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	collector.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	})

	f := &Fetcher{
		collector: collector,
		metrics:   metrics,
	}
	f.configureHandlers()
	return f, nil
}

// Fetch GETs rawURL with params merged into its query string.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, params url.Values) (*models.Page, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := withParams(rawURL, params)
	if err != nil {
		return nil, err
	}

	atomic.AddInt64(&f.requestCount, 1)
	reqCtx := colly.NewContext()
	visitErr := f.collector.Request(http.MethodGet, target, nil, reqCtx, nil)

	if classified, ok := reqCtx.GetAny(ctxErrKey).(error); ok && classified != nil {
		return nil, classified
	}
	if visitErr != nil {
		return nil, fmt.Errorf("get %s: %w", target, visitErr)
	}
	page, ok := reqCtx.GetAny(ctxPageKey).(*models.Page)
	if !ok || page == nil {
		return nil, fmt.Errorf("get %s: no response received", target)
	}
	return page, nil
}

// RequestCount returns how many requests were issued.
func (f *Fetcher) RequestCount() int {
	return int(atomic.LoadInt64(&f.requestCount))
}

func (f *Fetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStartKey, time.Now())
		slog.Debug("fetching", slog.String("url", r.URL.String()))
	})

	f.collector.OnResponse(func(r *colly.Response) {
		f.observe(r.Ctx)
		r.Ctx.Put(ctxPageKey, &models.Page{
			StatusCode: r.StatusCode,
			Body:       r.Body,
			URL:        r.Request.URL.String(),
		})
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		f.observe(r.Ctx)

		requestURL := ""
		if r.Request != nil && r.Request.URL != nil {
			requestURL = r.Request.URL.String()
		}
		location := ""
		if r.Headers != nil {
			location = r.Headers.Get("Location")
		}

		classified := classifyError(err, requestURL, r.StatusCode, location)
		if classified == nil {
			classified = err
		}
		category := errorTypeLabel(classified)
		f.metrics.IncError(category)
		if category != "redirect" {
			slog.Error("request error",
				slog.String("url", requestURL),
				slog.String("category", category),
				slog.Any("error", err),
			)
		}
		r.Ctx.Put(ctxErrKey, classified)
	})
}

func (f *Fetcher) observe(ctx *colly.Context) {
	if ctx == nil {
		return
	}
	if start, ok := ctx.GetAny(ctxStartKey).(time.Time); ok {
		f.metrics.ObserveDuration(time.Since(start))
	}
}

func withParams(rawURL string, params url.Values) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	query := parsed.Query()
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
