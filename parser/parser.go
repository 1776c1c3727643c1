package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

// TitleSeparator splits a book heading into title and author.
const TitleSeparator = "::"

var bookIDPattern = regexp.MustCompile(`\d+`)

// ParseError reports a page that lacks an expected element.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Errorf("parse %s: %w", e.Field, e.Err).Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// HTMLExtractor exposes the extraction functions as a single value.
type HTMLExtractor struct{}

func (HTMLExtractor) ExtractBook(pageHTML []byte, baseURL string) (*models.BookDescription, error) {
	return ExtractBook(pageHTML, baseURL)
}

func (HTMLExtractor) ExtractBookCardIDs(listingHTML []byte) ([]string, error) {
	return ExtractBookCardIDs(listingHTML)
}

func (HTMLExtractor) ExtractLastPageNumber(listingHTML []byte) (int, error) {
	return ExtractLastPageNumber(listingHTML)
}

// ExtractBook parses a book detail page. Relative cover sources are
// resolved against baseURL.
func ExtractBook(pageHTML []byte, baseURL string) (*models.BookDescription, error) {
	doc, err := newDocument(pageHTML)
	if err != nil {
		return nil, err
	}

	heading := doc.Find("h1").First()
	if heading.Length() == 0 {
		return nil, &ParseError{Field: "title", Err: fmt.Errorf("heading not found")}
	}
	title, author, found := strings.Cut(heading.Text(), TitleSeparator)
	if !found {
		return nil, &ParseError{Field: "title", Err: fmt.Errorf("separator %q missing in %q", TitleSeparator, strings.TrimSpace(heading.Text()))}
	}

	book := &models.BookDescription{
		Title:    strings.TrimSpace(title),
		Author:   strings.TrimSpace(author),
		Genres:   []string{},
		Comments: []string{},
	}
	if err := ValidateBook(book); err != nil {
		return nil, &ParseError{Field: "title", Err: err}
	}

	doc.Find("span.d_book a").Each(func(_ int, s *goquery.Selection) {
		book.Genres = append(book.Genres, strings.TrimSpace(s.Text()))
	})
	doc.Find("div.texts").Each(func(_ int, s *goquery.Selection) {
		comment := s.Find("span.black").First()
		if comment.Length() == 0 {
			return
		}
		book.Comments = append(book.Comments, strings.TrimSpace(comment.Text()))
	})

	if src, ok := doc.Find("div.bookimage img").First().Attr("src"); ok && strings.TrimSpace(src) != "" {
		cover, err := resolveURL(baseURL, strings.TrimSpace(src))
		if err != nil {
			return nil, &ParseError{Field: "cover", Err: err}
		}
		book.Cover = cover
	}

	return book, nil
}

// ExtractBookCardIDs returns the numeric id of every book card on a
// listing page, in page order.
func ExtractBookCardIDs(listingHTML []byte) ([]string, error) {
	doc, err := newDocument(listingHTML)
	if err != nil {
		return nil, err
	}

	ids := []string{}
	doc.Find("table.d_book").Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		if id := bookIDPattern.FindString(href); id != "" {
			ids = append(ids, id)
		}
	})
	return ids, nil
}

// ExtractLastPageNumber reads the last pagination link of a listing page.
func ExtractLastPageNumber(listingHTML []byte) (int, error) {
	doc, err := newDocument(listingHTML)
	if err != nil {
		return 0, err
	}

	last := doc.Find("table a.npage:last-child").Last()
	if last.Length() == 0 {
		last = doc.Find("a.npage").Last()
	}
	if last.Length() == 0 {
		return 0, &ParseError{Field: "pagination", Err: fmt.Errorf("no page links found")}
	}

	text := strings.TrimSpace(last.Text())
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, &ParseError{Field: "pagination", Err: err}
	}
	if n < 1 {
		return 0, &ParseError{Field: "pagination", Err: fmt.Errorf("page number %d out of range", n)}
	}
	return n, nil
}

func newDocument(content []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, &ParseError{Field: "document", Err: err}
	}
	return doc, nil
}

func resolveURL(baseURL, ref string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	return base.ResolveReference(rel).String(), nil
}
