// Package ingest loads source text for a run from plain text, Markdown or
// HTML files. Multi-part sources (story-1.txt, story-2.txt, ...) are joined
// in numeric order.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Format is a source file format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Request contains the parameters for loading a source.
type Request struct {
	Paths  []string     // Source file paths (sorted by numeric suffix)
	Title  string       // Optional, derived from the content or file name if empty
	Format Format       // Optional, detected per file if empty
	Logger *slog.Logger // Optional logger for progress updates
}

// Source is loaded, normalized source text.
type Source struct {
	Title string   `json:"title" yaml:"title"`
	Paths []string `json:"paths" yaml:"paths"`
	Text  string   `json:"-" yaml:"-"`
	Chars int      `json:"chars" yaml:"chars"`
}

// Load reads and converts every file in req.
func Load(ctx context.Context, req Request) (*Source, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}
	if len(req.Paths) == 0 {
		return nil, fmt.Errorf("no source paths provided")
	}
	for _, p := range req.Paths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("source not found: %s", p)
		}
	}

	paths := sortPartsByNumber(req.Paths)
	conv := NewConverter()

	var parts []string
	title := req.Title
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%s is not UTF-8 text", p)
		}

		format := req.Format
		if format == "" {
			format = DetectFormat(p, data)
		}
		text, docTitle, err := conv.Convert(data, format)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s: %w", p, err)
		}
		if title == "" {
			title = docTitle
		}
		log.Debug("loaded source part", "path", p, "format", format, "chars", utf8.RuneCountInString(text))
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	if title == "" {
		title = deriveTitle(paths[0])
	}
	text := strings.Join(parts, "\n\n")
	src := &Source{
		Title: title,
		Paths: paths,
		Text:  text,
		Chars: utf8.RuneCountInString(text),
	}
	log.Info("loaded source", "title", src.Title, "files", len(paths), "chars", src.Chars)
	return src, nil
}

// DetectFormat picks a format from the file extension, falling back to
// sniffing for HTML markup.
func DetectFormat(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return FormatHTML
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt", ".text":
		return FormatText
	}
	head := strings.ToLower(strings.TrimSpace(string(data[:min(len(data), 512)])))
	if strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html") {
		return FormatHTML
	}
	return FormatText
}

var partSuffix = regexp.MustCompile(`-(\d+)\.[^./\\]+$`)

// sortPartsByNumber sorts paths by their numeric suffix.
// e.g., ["book-2.txt", "book-1.txt", "book-10.txt"] -> ["book-1.txt", "book-2.txt", "book-10.txt"]
func sortPartsByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	sort.SliceStable(sorted, func(i, j int) bool {
		mi := partSuffix.FindStringSubmatch(sorted[i])
		mj := partSuffix.FindStringSubmatch(sorted[j])

		// If both have numbers, sort numerically
		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			return ni < nj
		}

		// Files without numbers come first
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}
		return sorted[i] < sorted[j]
	})
	return sorted
}

var numberSuffix = regexp.MustCompile(`-\d+$`)

// deriveTitle extracts a title from a file name.
// e.g., "moby-dick.txt" -> "moby-dick"
// e.g., "moby-dick-1.html" -> "moby-dick"
func deriveTitle(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return numberSuffix.ReplaceAllString(name, "")
}
