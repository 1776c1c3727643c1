package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	BooksScrapedTotal prometheus.Counter
	SkippedTotal      *prometheus.CounterVec
	FilesWrittenTotal *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"kind"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	booksScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_books_scraped_total",
			Help: "Total number of book descriptions sent to the pipeline.",
		},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_skipped_total",
			Help: "Pages, books and downloads skipped because the site redirected.",
		},
		[]string{"reason"},
	)
	filesWritten := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_files_written_total",
			Help: "Files written to disk by kind.",
		},
		[]string{"kind"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, booksScraped, skipped, filesWritten, errorsTotal)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		BooksScrapedTotal: booksScraped,
		SkippedTotal:      skipped,
		FilesWrittenTotal: filesWritten,
		ErrorsTotal:       errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(kind string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(kind).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncBooks increments the books scraped counter.
func (m *Metrics) IncBooks() {
	if m == nil {
		return
	}
	m.BooksScrapedTotal.Inc()
}

// IncSkipped increments the skip counter for a reason label.
func (m *Metrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.SkippedTotal.WithLabelValues(reason).Inc()
}

// IncFiles increments the files written counter for a target kind.
func (m *Metrics) IncFiles(kind string) {
	if m == nil {
		return
	}
	m.FilesWrittenTotal.WithLabelValues(kind).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
