package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

// ValidateBook ensures the extractor captured the required fields.
func ValidateBook(b *models.BookDescription) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("book missing title")
	}
	return nil
}
