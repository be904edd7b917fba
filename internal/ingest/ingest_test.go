package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSortPartsByNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "already sorted",
			input:    []string{"book-1.txt", "book-2.txt", "book-3.txt"},
			expected: []string{"book-1.txt", "book-2.txt", "book-3.txt"},
		},
		{
			name:     "reverse order",
			input:    []string{"book-3.txt", "book-2.txt", "book-1.txt"},
			expected: []string{"book-1.txt", "book-2.txt", "book-3.txt"},
		},
		{
			name:     "mixed with double digits",
			input:    []string{"book-10.html", "book-2.html", "book-1.html"},
			expected: []string{"book-1.html", "book-2.html", "book-10.html"},
		},
		{
			name:     "numbered and unnumbered",
			input:    []string{"book-2.md", "book.md", "book-1.md"},
			expected: []string{"book.md", "book-1.md", "book-2.md"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sortPartsByNumber(tt.input)
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("index %d: got %q, want %q", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/path/to/moby-dick.txt", "moby-dick"},
		{"/path/to/my-book-1.html", "my-book"},
		{"/path/to/my-book-10.md", "my-book"},
		{"simple", "simple"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := deriveTitle(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		data string
		want Format
	}{
		{"a.HTML", "", FormatHTML},
		{"a.md", "", FormatMarkdown},
		{"a.txt", "<html>", FormatText},
		{"noext", "  <!DOCTYPE html><html></html>", FormatHTML},
		{"noext", "Call me Ishmael.", FormatText},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.path, []byte(tt.data)); got != tt.want {
			t.Errorf("DetectFormat(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

const sampleHTML = `<!DOCTYPE html>
<html><head><title>Moby Dick</title><style>p{}</style></head>
<body>
<nav><a href="/">Home</a></nav>
<h1>Chapter 1. Loomings</h1>
<p>Call me <em>Ishmael</em>.</p>
<script>alert(1)</script>
<footer>Project Gutenberg</footer>
</body></html>`

func TestConvertHTML(t *testing.T) {
	text, title, err := NewConverter().Convert([]byte(sampleHTML), FormatHTML)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if title != "Moby Dick" {
		t.Errorf("title = %q", title)
	}
	if !strings.Contains(text, "# Chapter 1. Loomings") || !strings.Contains(text, "Ishmael") {
		t.Errorf("text missing content:\n%s", text)
	}
	for _, unwanted := range []string{"Home", "alert", "Gutenberg"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("text contains %q:\n%s", unwanted, text)
		}
	}
}

func TestConvertMarkdown(t *testing.T) {
	input := "\ufeff---\nauthor: x\n---\n# The Title\r\n\r\nBody text.   \n\n\n\n\n\nMore."
	text, title, err := NewConverter().Convert([]byte(input), FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	if title != "The Title" {
		t.Errorf("title = %q", title)
	}
	if strings.Contains(text, "author") || strings.Contains(text, "\n\n\n\n") || strings.Contains(text, "   \n") {
		t.Errorf("text not cleaned: %q", text)
	}

	if _, _, err := NewConverter().Convert([]byte("x"), Format("pdf")); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	p2 := write("tale-2.txt", "Second part.")
	p1 := write("tale-1.txt", "First part.")

	src, err := Load(context.Background(), Request{Paths: []string{p2, p1}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if src.Text != "First part.\n\nSecond part." {
		t.Errorf("Text = %q", src.Text)
	}
	if src.Title != "tale" || src.Chars != len(src.Text) || src.Paths[0] != p1 {
		t.Errorf("source = %+v", src)
	}

	html := write("page.html", sampleHTML)
	src, err = Load(context.Background(), Request{Paths: []string{html}})
	if err != nil {
		t.Fatal(err)
	}
	if src.Title != "Moby Dick" {
		t.Errorf("html title = %q", src.Title)
	}

	if _, err := Load(context.Background(), Request{}); err == nil {
		t.Error("expected error for no paths")
	}
	if _, err := Load(context.Background(), Request{Paths: []string{filepath.Join(dir, "missing.txt")}}); err == nil {
		t.Error("expected error for missing file")
	}
	bad := write("bad.txt", "\xff\xfe")
	if _, err := Load(context.Background(), Request{Paths: []string{bad}}); err == nil {
		t.Error("expected error for non-UTF-8 input")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Load(ctx, Request{Paths: []string{p1}}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
