package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/parser"
	"github.com/aluiziolira/go-scrape-tululu/pipeline"
)

// PageFetcher retrieves a URL. Redirects must be reported as *RedirectError.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, params url.Values) (*models.Page, error)
}

// Extractor turns fetched HTML into domain values.
type Extractor interface {
	ExtractBook(pageHTML []byte, baseURL string) (*models.BookDescription, error)
	ExtractBookCardIDs(listingHTML []byte) ([]string, error)
	ExtractLastPageNumber(listingHTML []byte) (int, error)
}

// Storage persists downloaded files and returns the written path.
type Storage interface {
	SaveText(content, destDir, filename string) (string, error)
	SaveBinary(content []byte, destDir, filename string) (string, error)
}

// Scraper walks the catalog pages of one category and every book on them.
type Scraper struct {
	cfg       *config.Config
	fetcher   PageFetcher
	extractor Extractor
	storage   Storage
	Metrics   *Metrics

	// Progress is called after each book has been fully handled.
	Progress func(bookID string, book *models.BookDescription)

	baseURL      string
	category     string
	requestCount int
}

// New wires a Scraper with the colly fetcher, the goquery extractor and
// on-disk storage.
func New(cfg *config.Config) (*Scraper, error) {
	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	return NewScraper(cfg, fetcher, parser.HTMLExtractor{}, pipeline.NewFileStore(), metrics)
}

// NewScraper builds a scraper from its collaborators. metrics may be nil.
func NewScraper(cfg *config.Config, fetcher PageFetcher, extractor Extractor, storage Storage, metrics *Metrics) (*Scraper, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if fetcher == nil || extractor == nil || storage == nil {
		return nil, errors.New("fetcher, extractor and storage are required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	category := strings.Trim(cfg.Category, "/")
	if category == "" {
		return nil, fmt.Errorf("category cannot be empty")
	}

	return &Scraper{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		storage:   storage,
		Metrics:   metrics,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		category:  category,
	}, nil
}

// Run crawls the configured page range, sending every description to p.
// A redirect skips the page, book or download it was returned for; any
// other failure stops the crawl. The caller closes p.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if p == nil {
		return nil, errors.New("pipeline is required")
	}

	result := &models.CrawlResult{
		StartTime:        time.Now(),
		SkippedPages:     []int{},
		SkippedBooks:     []string{},
		SkippedDownloads: []string{},
	}

	rng, err := s.resolveRange(ctx)
	if err != nil {
		return nil, err
	}
	result.Range = rng
	slog.Info("crawling catalog",
		slog.String("category", s.category),
		slog.Int("start_page", rng.StartPage),
		slog.Int("end_page", rng.EndPage),
	)

	for page := rng.StartPage; page <= rng.EndPage; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageURL := s.listingURL(page)
		listing, err := s.fetch(ctx, "listing", pageURL, nil)
		if IsRedirect(err) {
			slog.Info("skipping missing catalog page", slog.Int("page", page), slog.String("url", pageURL))
			s.Metrics.IncSkipped("page_redirect")
			result.SkippedPages = append(result.SkippedPages, page)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch catalog page %d: %w", page, err)
		}
		result.PageCount++

		ids, err := s.extractor.ExtractBookCardIDs(listing.Body)
		if err != nil {
			return nil, fmt.Errorf("parse catalog page %d: %w", page, err)
		}
		slog.Debug("catalog page parsed", slog.Int("page", page), slog.Int("books", len(ids)))

		for _, id := range ids {
			if err := s.scrapeBook(ctx, id, p, result); err != nil {
				return nil, err
			}
		}
	}

	result.EndTime = time.Now()
	result.RequestCount = s.requestCount
	return result, nil
}

// LastPage discovers the number of the last catalog page of the category.
func (s *Scraper) LastPage(ctx context.Context) (int, error) {
	page, err := s.fetch(ctx, "listing", s.categoryURL(), nil)
	if err != nil {
		return 0, fmt.Errorf("fetch category index: %w", err)
	}
	last, err := s.extractor.ExtractLastPageNumber(page.Body)
	if err != nil {
		return 0, fmt.Errorf("parse category index: %w", err)
	}
	return last, nil
}

func (s *Scraper) resolveRange(ctx context.Context) (models.CrawlRange, error) {
	rng := models.CrawlRange{StartPage: s.cfg.StartPage, EndPage: s.cfg.EndPage}
	if rng.EndPage != 0 {
		return rng, nil
	}

	last, err := s.LastPage(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rng, ctxErr
		}
		slog.Warn("last catalog page unknown, using fallback",
			slog.Int("fallback_end_page", s.cfg.FallbackEndPage),
			slog.Any("error", err),
		)
		last = s.cfg.FallbackEndPage
	}
	rng.EndPage = last
	return rng, nil
}

func (s *Scraper) scrapeBook(ctx context.Context, id string, p *pipeline.Pipeline, result *models.CrawlResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bookURL := s.bookURL(id)
	page, err := s.fetch(ctx, "book", bookURL, nil)
	if IsRedirect(err) {
		slog.Info("skipping missing book", slog.String("book_id", id), slog.String("url", bookURL))
		s.Metrics.IncSkipped("book_redirect")
		result.SkippedBooks = append(result.SkippedBooks, id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch book %s: %w", id, err)
	}

	book, err := s.extractor.ExtractBook(page.Body, page.URL)
	if err != nil {
		return fmt.Errorf("parse book %s: %w", id, err)
	}
	if err := p.Process(book); err != nil {
		return fmt.Errorf("queue book %s: %w", id, err)
	}
	s.Metrics.IncBooks()
	result.BookCount++

	if !s.cfg.SkipText {
		if err := s.downloadText(ctx, id, book, result); err != nil {
			return err
		}
	}
	if !s.cfg.SkipImages && book.Cover != "" {
		if err := s.downloadCover(ctx, id, book, result); err != nil {
			return err
		}
	}

	if s.Progress != nil {
		s.Progress(id, book)
	}
	return nil
}

func (s *Scraper) downloadText(ctx context.Context, id string, book *models.BookDescription, result *models.CrawlResult) error {
	textURL := s.textURL()
	page, err := s.fetch(ctx, "text", textURL, url.Values{"id": {id}})
	if IsRedirect(err) {
		slog.Info("text not available", slog.String("book_id", id))
		s.Metrics.IncSkipped("text_redirect")
		result.SkippedDownloads = append(result.SkippedDownloads, textURL+"?id="+id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("download text of book %s: %w", id, err)
	}

	target := pipeline.TextTarget(id, book.Title)
	written, err := s.storage.SaveText(string(page.Body), s.targetDir(target), target.Filename)
	if err != nil {
		return fmt.Errorf("save text of book %s: %w", id, err)
	}
	s.Metrics.IncFiles(string(target.Kind))
	result.TextFiles++
	slog.Debug("text saved", slog.String("book_id", id), slog.String("path", written))
	return nil
}

func (s *Scraper) downloadCover(ctx context.Context, id string, book *models.BookDescription, result *models.CrawlResult) error {
	page, err := s.fetch(ctx, "image", book.Cover, nil)
	if IsRedirect(err) {
		slog.Info("cover not available", slog.String("book_id", id), slog.String("url", book.Cover))
		s.Metrics.IncSkipped("image_redirect")
		result.SkippedDownloads = append(result.SkippedDownloads, book.Cover)
		return nil
	}
	if err != nil {
		return fmt.Errorf("download cover of book %s: %w", id, err)
	}

	target, err := pipeline.ImageTarget(book.Cover)
	if err != nil {
		return fmt.Errorf("name cover of book %s: %w", id, err)
	}
	written, err := s.storage.SaveBinary(page.Body, s.targetDir(target), target.Filename)
	if err != nil {
		return fmt.Errorf("save cover of book %s: %w", id, err)
	}
	s.Metrics.IncFiles(string(target.Kind))
	result.ImageFiles++
	slog.Debug("cover saved", slog.String("book_id", id), slog.String("path", written))
	return nil
}

func (s *Scraper) fetch(ctx context.Context, kind, rawURL string, params url.Values) (*models.Page, error) {
	s.requestCount++
	s.Metrics.IncRequest(kind)
	return s.fetcher.Fetch(ctx, rawURL, params)
}

func (s *Scraper) targetDir(target models.DownloadTarget) string {
	return filepath.Join(s.cfg.DestFolder, string(target.Kind))
}

func (s *Scraper) categoryURL() string {
	return fmt.Sprintf("%s/%s/", s.baseURL, s.category)
}

func (s *Scraper) listingURL(page int) string {
	return fmt.Sprintf("%s/%s/%d/", s.baseURL, s.category, page)
}

func (s *Scraper) bookURL(id string) string {
	return fmt.Sprintf("%s/b%s/", s.baseURL, id)
}

func (s *Scraper) textURL() string {
	return s.baseURL + "/txt.php"
}
