package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(books []*models.BookDescription) error
	Close() error
	Validate() error
}

// Pipeline accumulates book descriptions for the whole run and hands them
// to the writer in one piece on Close.
type Pipeline struct {
	writer OutputWriter
	books  []*models.BookDescription

	mu     sync.Mutex // guards books/closed/err
	closed bool
	err    error
}

// NewPipeline builds a pipeline in front of writer.
func NewPipeline(writer OutputWriter) *Pipeline {
	return &Pipeline{
		writer: writer,
		books:  []*models.BookDescription{},
	}
}

// Process appends books in arrival order.
func (p *Pipeline) Process(books ...*models.BookDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}
	for _, book := range books {
		if book == nil {
			continue
		}
		p.books = append(p.books, book)
	}
	return nil
}

// Close writes the accumulated books and closes the writer. Further calls
// return the first result.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return p.err
	}
	p.closed = true

	if err := p.writer.Write(p.books); err != nil {
		p.err = fmt.Errorf("write descriptions: %w", err)
		p.writer.Close()
		return p.err
	}
	if err := p.writer.Close(); err != nil {
		p.err = fmt.Errorf("close writer: %w", err)
	}
	return p.err
}

// Err returns the error recorded by Close, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Books returns a copy of the accumulated descriptions.
func (p *Pipeline) Books() []*models.BookDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*models.BookDescription, len(p.books))
	copy(out, p.books)
	return out
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]interface{}{
		"processed_books": int64(len(p.books)),
		"closed":          p.closed,
	}
}
