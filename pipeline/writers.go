package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

// DescriptionsFile is the name of the metadata file inside the json path.
const DescriptionsFile = "descriptions.json"

// DescriptionsPath returns {destFolder}/{jsonPath}/descriptions.json.
func DescriptionsPath(destFolder, jsonPath string) string {
	return filepath.Join(destFolder, jsonPath, DescriptionsFile)
}

// JSONWriter writes all descriptions as one JSON array. The file is only
// touched when Write is called, so an aborted run leaves the previous file
// in place.
type JSONWriter struct {
	filename string
	mu       sync.Mutex
	written  bool
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if filename == "" {
		return nil, fmt.Errorf("json filename cannot be empty")
	}
	return &JSONWriter{filename: filename}, nil
}

// Write replaces the output file with books encoded as a JSON array.
// Non-ASCII text is kept verbatim.
func (jw *JSONWriter) Write(books []*models.BookDescription) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if books == nil {
		books = []*models.BookDescription{}
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(books); err != nil {
		return fmt.Errorf("encode descriptions: %w", err)
	}

	if err := ensureDir(jw.filename); err != nil {
		return err
	}
	if err := writeFileAtomic(jw.filename, buf.Bytes()); err != nil {
		return err
	}
	jw.written = true
	return nil
}

// Close is a no-op; Write already persisted the file.
func (jw *JSONWriter) Close() error {
	return nil
}

// Validate ensures the JSON file exists and holds an array.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if !jw.written {
		return fmt.Errorf("json file %q was never written", jw.filename)
	}
	data, err := os.ReadFile(jw.filename)
	if err != nil {
		return fmt.Errorf("read json file: %w", err)
	}
	var decoded []models.BookDescription
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("json file is not an array of descriptions: %w", err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
