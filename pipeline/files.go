package pipeline

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

// Filenames stay well under the common 255 byte limit.
const (
	maxFilenameBytes = 200
	maxExtBytes      = 16
)

var (
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\x7f]`)
	repeatedWhitespace   = regexp.MustCompile(`\s+`)
)

// SanitizeFilename turns name into a single path segment that is valid on
// common filesystems. Unicode letters are kept.
func SanitizeFilename(name string) string {
	return sanitize(name, maxFilenameBytes)
}

func sanitize(name string, limit int) string {
	name = norm.NFC.String(name)
	name = invalidFilenameChars.ReplaceAllString(name, "_")
	name = repeatedWhitespace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	name = strings.TrimRight(name, ". ")

	if len(name) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = strings.TrimRight(name[:cut], ". ")
	}

	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// sanitizeWithExt sanitizes stem so that stem+ext stays within the limit.
func sanitizeWithExt(stem, ext string) string {
	clean := sanitize(ext, maxExtBytes)
	if ext == "" || len(clean) < 2 || clean[0] != '.' {
		return sanitize(stem+ext, maxFilenameBytes)
	}
	return sanitize(stem, maxFilenameBytes-len(clean)) + clean
}

// TextTarget names the text file of a book: "{id}. {title}.txt".
func TextTarget(bookID, title string) models.DownloadTarget {
	return models.DownloadTarget{
		Kind:     models.TargetBooks,
		Filename: sanitizeWithExt(fmt.Sprintf("%s. %s", bookID, title), ".txt"),
	}
}

// ImageTarget keeps the original file name of a cover URL.
func ImageTarget(coverURL string) (models.DownloadTarget, error) {
	u, err := url.Parse(coverURL)
	if err != nil {
		return models.DownloadTarget{}, fmt.Errorf("parse cover url %q: %w", coverURL, err)
	}
	// u.Path is already percent-decoded.
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = ""
	}
	ext := path.Ext(name)
	return models.DownloadTarget{
		Kind:     models.TargetImages,
		Filename: sanitizeWithExt(strings.TrimSuffix(name, ext), ext),
	}, nil
}

// FileStore writes downloaded content to disk. Existing files are replaced.
type FileStore struct{}

// NewFileStore returns a FileStore.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// SaveText writes content to destDir/filename and returns the final path.
func (fs *FileStore) SaveText(content, destDir, filename string) (string, error) {
	return fs.save([]byte(content), destDir, filename)
}

// SaveBinary writes content to destDir/filename and returns the final path.
func (fs *FileStore) SaveBinary(content []byte, destDir, filename string) (string, error) {
	return fs.save(content, destDir, filename)
}

func (fs *FileStore) save(content []byte, destDir, filename string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %q: %w", destDir, err)
	}

	target := filepath.Join(destDir, SanitizeFilename(filename))
	if err := writeFileAtomic(target, content); err != nil {
		return "", err
	}
	return target, nil
}

func writeFileAtomic(target string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %q: %w", target, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %q: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %q: %w", target, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %q: %w", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into %q: %w", target, err)
	}
	return nil
}
