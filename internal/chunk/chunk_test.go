package chunk

import (
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitBySize(t *testing.T) {
	text := "Para one is here.\n\nPara two is here.\r\n\r\nPara three."
	chunks, err := Split(text, Config{Mode: ModeSize, MaxChars: 40})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	want := []string{"Para one is here.\n\nPara two is here.", "Para three."}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks: %+v", len(chunks), chunks)
	}
	for i, c := range chunks {
		if c.Index != i || c.Text != want[i] {
			t.Errorf("chunk %d = %+v, want %q", i, c, want[i])
		}
	}
}

func TestSplitOversizedParagraph(t *testing.T) {
	para := strings.Repeat("word ", 50) // 250 chars
	chunks, err := Split("intro\n\n"+para+"\n\noutro", Config{Mode: ModeSize, MaxChars: 60})
	if err != nil {
		t.Fatal(err)
	}
	if chunks[0].Text != "intro" || chunks[len(chunks)-1].Text != "outro" {
		t.Errorf("first/last = %q / %q", chunks[0].Text, chunks[len(chunks)-1].Text)
	}
	var rebuilt []string
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if n := utf8.RuneCountInString(c.Text); n > 60 {
			t.Errorf("chunk %d has %d chars", i, n)
		}
		if strings.HasPrefix(c.Text, "wor") && !strings.HasSuffix(c.Text, "word") {
			t.Errorf("chunk %d cut mid-word: %q", i, c.Text)
		}
		rebuilt = append(rebuilt, strings.Fields(c.Text)...)
	}
	if len(rebuilt) != 52 {
		t.Errorf("words after split = %d, want 52", len(rebuilt))
	}
}

func TestHardSplitNoWhitespace(t *testing.T) {
	pieces := hardSplit(strings.Repeat("é", 25), 10)
	if len(pieces) != 3 || utf8.RuneCountInString(pieces[2]) != 5 {
		t.Errorf("hardSplit() = %q", pieces)
	}
}

func TestSplitChapters(t *testing.T) {
	text := `Prologue text.

Chapter 1: The Start
Alice arrives.

CHAPTER II
Bob leaves.

Chapter 3
Carol returns.`

	t.Run("one per chunk", func(t *testing.T) {
		chunks, err := Split(text, Config{Mode: ModeChapters, ChapterPattern: DefaultConfig().ChapterPattern, ChaptersPerChunk: 1})
		if err != nil {
			t.Fatal(err)
		}
		titles := []string{"", "Chapter 1: The Start", "CHAPTER II", "Chapter 3"}
		if len(chunks) != len(titles) {
			t.Fatalf("got %d chunks", len(chunks))
		}
		for i, c := range chunks {
			if c.Title != titles[i] {
				t.Errorf("chunk %d title = %q, want %q", i, c.Title, titles[i])
			}
		}
		if !strings.Contains(chunks[2].Text, "Bob leaves.") || strings.Contains(chunks[2].Text, "Carol") {
			t.Errorf("chunk 2 text = %q", chunks[2].Text)
		}
	})

	t.Run("grouped", func(t *testing.T) {
		chunks, err := Split(text, Config{Mode: ModeChapters, ChapterPattern: DefaultConfig().ChapterPattern, ChaptersPerChunk: 3})
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != 2 {
			t.Fatalf("got %d chunks", len(chunks))
		}
		if chunks[1].Title != "Chapter 3" || chunks[1].Index != 1 {
			t.Errorf("second chunk = %+v", chunks[1])
		}
		if !strings.Contains(chunks[0].Text, "Prologue text.\n\nChapter 1") {
			t.Errorf("first chunk = %q", chunks[0].Text)
		}
	})

	t.Run("no headings falls back to size", func(t *testing.T) {
		chunks, err := Split("a\n\nb", Config{Mode: ModeChapters, ChapterPattern: `^#`, ChaptersPerChunk: 1, MaxChars: 1})
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != 2 || chunks[1].Text != "b" {
			t.Errorf("chunks = %+v", chunks)
		}
	})
}

func TestSplitChaptersDirect(t *testing.T) {
	pattern := regexp.MustCompile(`(?m)^## .*$`)
	if got := SplitChapters("   ", pattern); got != nil {
		t.Errorf("blank text = %+v", got)
	}
	got := SplitChapters("## A\n\n## B\nbody", pattern)
	if len(got) != 2 || got[0].Text != "## A" || got[1].Title != "## B" {
		t.Errorf("SplitChapters() = %+v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"zero size", Config{Mode: ModeSize}, true},
		{"chapters without pattern", Config{Mode: ModeChapters, ChaptersPerChunk: 1}, true},
		{"bad pattern", Config{Mode: ModeChapters, ChapterPattern: "(", ChaptersPerChunk: 1}, true},
		{"zero per chunk", Config{Mode: ModeChapters, ChapterPattern: "^x"}, true},
		{"unknown mode", Config{Mode: "pages"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := []Chunk{{Index: 0, Text: "ab"}, {Index: 1, Text: "c"}}
	b := []Chunk{{Index: 0, Text: "a"}, {Index: 1, Text: "bc"}}
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("different partitions share a fingerprint")
	}
	if Fingerprint(a) != Fingerprint([]Chunk{{Index: 0, Text: "ab"}, {Index: 1, Text: "c"}}) {
		t.Error("fingerprint not stable")
	}
	if got := Indices(a); len(got) != 2 || got[1] != 1 {
		t.Errorf("Indices() = %v", got)
	}
}
