package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "239. Алиса", expected: "239. Алиса"},
		{name: "path separators", input: "a/b\\c", expected: "a_b_c"},
		{name: "reserved characters", input: `Title: "Part" <1>?|*`, expected: "Title_ _Part_ _1____"},
		{name: "control characters", input: "tab\there\x00", expected: "tab_here_"},
		{name: "trailing dots", input: "Book...", expected: "Book"},
		{name: "collapsed whitespace", input: "  many   spaces  ", expected: "many spaces"},
		{name: "dot only", input: "..", expected: "_"},
		{name: "empty", input: "", expected: "_"},
		{name: "decomposed unicode", input: "e\u0301te\u0301", expected: "\u00e9t\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.expected {
				t.Fatalf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeFilenameAlwaysSingleSegment(t *testing.T) {
	inputs := []string{
		"../../etc/passwd",
		"C:\\Windows\\system32",
		"Война и мир / Толстой: том 1",
		strings.Repeat("Ж", 300),
		"/",
	}
	for _, input := range inputs {
		got := SanitizeFilename(input)
		if got == "" || got == "." || got == ".." {
			t.Fatalf("SanitizeFilename(%q) = %q is not a usable name", input, got)
		}
		if strings.ContainsAny(got, "/\\") || filepath.Base(got) != got {
			t.Fatalf("SanitizeFilename(%q) = %q is not a single segment", input, got)
		}
		if len(got) > maxFilenameBytes || !utf8.ValidString(got) {
			t.Fatalf("SanitizeFilename(%q) = %q exceeds limit or is invalid utf-8", input, got)
		}
	}
}

func TestTextTarget(t *testing.T) {
	target := TextTarget("239", "Foo/Bar: baz")
	if target.Kind != models.TargetBooks {
		t.Fatalf("kind = %q, want books", target.Kind)
	}
	if target.Filename != "239. Foo_Bar_ baz.txt" {
		t.Fatalf("filename = %q", target.Filename)
	}

	long := TextTarget("1", strings.Repeat("Щ", 200))
	if !strings.HasSuffix(long.Filename, ".txt") || len(long.Filename) > maxFilenameBytes {
		t.Fatalf("long filename = %q (%d bytes)", long.Filename, len(long.Filename))
	}
}

func TestImageTarget(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{name: "plain", url: "https://tululu.org/shots/239.jpg", expected: "239.jpg"},
		{name: "escaped", url: "https://tululu.org/shots/%D0%BA%D0%BD%D0%B8%D0%B3%D0%B0.png", expected: "книга.png"},
		{name: "query ignored", url: "https://tululu.org/images/nopic.gif?v=2", expected: "nopic.gif"},
		{name: "no name", url: "https://tululu.org/", expected: "_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := ImageTarget(tt.url)
			if err != nil {
				t.Fatalf("image target: %v", err)
			}
			if target.Kind != models.TargetImages {
				t.Fatalf("kind = %q, want images", target.Kind)
			}
			if target.Filename != tt.expected {
				t.Fatalf("filename = %q, want %q", target.Filename, tt.expected)
			}
		})
	}
}

func TestFileStoreSaveCreatesDirAndOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "books")
	store := NewFileStore()

	path, err := store.SaveText("first", dir, "1. Foo.txt")
	if err != nil {
		t.Fatalf("save text: %v", err)
	}
	if path != filepath.Join(dir, "1. Foo.txt") {
		t.Fatalf("path = %q", path)
	}

	if _, err := store.SaveText("second", dir, "1. Foo.txt"); err != nil {
		t.Fatalf("overwrite text: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("content = %q, want second", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 (temp files must not linger)", len(entries))
	}
}

func TestFileStoreSaveBinarySanitizes(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore()

	path, err := store.SaveBinary([]byte{0xff, 0xd8, 0xff}, dir, "../escape.jpg")
	if err != nil {
		t.Fatalf("save binary: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("file escaped destination: %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) != 3 || data[0] != 0xff {
		t.Fatalf("content = %v", data)
	}
}
