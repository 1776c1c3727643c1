// Package models defines data structures for the scraper.
package models

import "time"

// BookDescription is the metadata scraped from one book page.
type BookDescription struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Genres   []string `json:"genres"`
	Comments []string `json:"comments"`
	Cover    string   `json:"cover,omitempty"`
}

// CrawlRange is the inclusive span of catalog pages to visit.
type CrawlRange struct {
	StartPage int
	EndPage   int
}

// Pages returns how many catalog pages the range covers.
func (r CrawlRange) Pages() int {
	if r.EndPage < r.StartPage {
		return 0
	}
	return r.EndPage - r.StartPage + 1
}

// Contains reports whether page falls inside the range.
func (r CrawlRange) Contains(page int) bool {
	return page >= r.StartPage && page <= r.EndPage
}

// TargetKind names the subdirectory a download is stored in.
type TargetKind string

const (
	TargetBooks  TargetKind = "books"
	TargetImages TargetKind = "images"
)

// DownloadTarget identifies where a downloaded file lands.
type DownloadTarget struct {
	Kind     TargetKind
	Filename string
}

// Page is a fetched HTTP resource.
type Page struct {
	StatusCode int
	Body       []byte
	URL        string
}

// CrawlResult holds the overall result of a crawl
type CrawlResult struct {
	StartTime        time.Time
	EndTime          time.Time
	Range            CrawlRange
	PageCount        int
	SkippedPages     []int
	BookCount        int
	SkippedBooks     []string
	TextFiles        int
	ImageFiles       int
	SkippedDownloads []string
	RequestCount     int
}
