package chunk

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mode selects how text is partitioned.
type Mode string

const (
	ModeSize     Mode = "size"
	ModeChapters Mode = "chapters"
)

// Config holds partitioning configuration.
type Config struct {
	Mode Mode

	// MaxChars is the soft upper bound on chunk size in characters (size mode).
	MaxChars int

	// ChapterPattern matches a chapter heading line (chapters mode).
	// Matched per line with (?m) semantics.
	ChapterPattern string

	// ChaptersPerChunk groups this many chapters into one chunk (chapters mode).
	ChaptersPerChunk int
}

// DefaultConfig returns size-based chunking of roughly 6000 characters.
func DefaultConfig() Config {
	return Config{
		Mode:             ModeSize,
		MaxChars:         6000,
		ChapterPattern:   `^\s*(?:chapter|CHAPTER|Chapter)\s+[\w\-]+.*$`,
		ChaptersPerChunk: 1,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeSize:
		if c.MaxChars <= 0 {
			return fmt.Errorf("MaxChars must be positive, got %d", c.MaxChars)
		}
	case ModeChapters:
		if c.ChapterPattern == "" {
			return fmt.Errorf("ChapterPattern is required in chapters mode")
		}
		if _, err := regexp.Compile("(?m)" + c.ChapterPattern); err != nil {
			return fmt.Errorf("invalid ChapterPattern: %w", err)
		}
		if c.ChaptersPerChunk <= 0 {
			return fmt.Errorf("ChaptersPerChunk must be positive, got %d", c.ChaptersPerChunk)
		}
	default:
		return fmt.Errorf("unknown chunking mode %q", c.Mode)
	}
	return nil
}

// Split partitions text according to cfg. Chunks are indexed from 0.
func Split(text string, cfg Config) ([]Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var chunks []Chunk
	switch cfg.Mode {
	case ModeChapters:
		pattern := regexp.MustCompile("(?m)" + cfg.ChapterPattern)
		chapters := SplitChapters(text, pattern)
		if len(chapters) == 0 {
			return nil, nil
		}
		if len(chapters) == 1 && chapters[0].Title == "" {
			// No headings found; size mode keeps chunks analyzable.
			maxChars := cfg.MaxChars
			if maxChars <= 0 {
				maxChars = DefaultConfig().MaxChars
			}
			chunks = bySize(text, maxChars)
			break
		}
		chunks = GroupChapters(chapters, cfg.ChaptersPerChunk)
	default:
		chunks = bySize(text, cfg.MaxChars)
	}
	return chunks, nil
}

// Chapter is a heading plus the text under it.
type Chapter struct {
	Title string
	Text  string
}

// SplitChapters cuts text at every line matching pattern. Text before the
// first heading becomes an untitled chapter when it is not blank.
func SplitChapters(text string, pattern *regexp.Regexp) []Chapter {
	locs := pattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []Chapter{{Text: strings.TrimSpace(text)}}
	}

	var chapters []Chapter
	if pre := strings.TrimSpace(text[:locs[0][0]]); pre != "" {
		chapters = append(chapters, Chapter{Text: pre})
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(text[loc[0]:end])
		if body == "" {
			continue
		}
		chapters = append(chapters, Chapter{
			Title: strings.TrimSpace(text[loc[0]:loc[1]]),
			Text:  body,
		})
	}
	return chapters
}

// GroupChapters packs perChunk consecutive chapters into each chunk.
func GroupChapters(chapters []Chapter, perChunk int) []Chunk {
	if perChunk <= 0 {
		perChunk = 1
	}
	var chunks []Chunk
	for start := 0; start < len(chapters); start += perChunk {
		end := min(start+perChunk, len(chapters))
		parts := make([]string, 0, end-start)
		for _, ch := range chapters[start:end] {
			parts = append(parts, ch.Text)
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Title: chapters[start].Title,
			Text:  strings.Join(parts, "\n\n"),
		})
	}
	return chunks
}

// bySize accumulates paragraphs until the next one would exceed maxChars.
// Paragraphs longer than maxChars are cut at whitespace near the limit.
func bySize(text string, maxChars int) []Chunk {
	var chunks []Chunk
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: s})
		}
		current.Reset()
		currentLen = 0
	}

	for _, para := range paragraphs(text) {
		paraLen := utf8.RuneCountInString(para)
		if paraLen > maxChars {
			flush()
			for _, piece := range hardSplit(para, maxChars) {
				chunks = append(chunks, Chunk{Index: len(chunks), Text: piece})
			}
			continue
		}
		if currentLen > 0 && currentLen+2+paraLen > maxChars {
			flush()
		}
		if currentLen > 0 {
			current.WriteString("\n\n")
			currentLen += 2
		}
		current.WriteString(para)
		currentLen += paraLen
	}
	flush()
	return chunks
}

var blankLines = regexp.MustCompile(`\n\s*\n`)

func paragraphs(text string) []string {
	raw := blankLines.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// hardSplit cuts s into pieces of at most maxChars runes, preferring the last
// whitespace in the back half of each window.
func hardSplit(s string, maxChars int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		if len(runes) <= maxChars {
			if piece := strings.TrimSpace(string(runes)); piece != "" {
				out = append(out, piece)
			}
			break
		}
		cut := maxChars
		for i := maxChars; i > maxChars/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			out = append(out, piece)
		}
		runes = runes[cut:]
	}
	return out
}
