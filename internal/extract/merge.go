package extract

import (
	"sort"
	"strings"

	"github.com/jackzampolin/plotline/internal/jobs"
)

// Appearance is one character's summary for one chunk.
type Appearance struct {
	Chunk int    `json:"chunk" yaml:"chunk"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	Text  string `json:"text" yaml:"text"`
}

// Character collects a character's appearances in chunk order.
type Character struct {
	Name        string       `json:"name" yaml:"name"`
	Appearances []Appearance `json:"appearances" yaml:"appearances"`
}

// Merged is the whole-work character index.
type Merged struct {
	Characters []Character `json:"characters" yaml:"characters"`
	Failed     []int       `json:"failed_chunks,omitempty" yaml:"failed_chunks,omitempty"`
}

// Merge folds per-chunk results into one index. Names are matched without
// regard to case; the first spelling seen is kept. Characters are ordered by
// first appearance, and entries with empty text are dropped.
func Merge(results []jobs.ChunkResult, failed []int) *Merged {
	sorted := append([]jobs.ChunkResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	out := &Merged{Failed: append([]int(nil), failed...)}
	sort.Ints(out.Failed)

	byName := make(map[string]int)
	for i := range sorted {
		r := &sorted[i]
		for _, name := range r.OrderedKeys() {
			text := strings.TrimSpace(r.Entries[name])
			if text == "" {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(name))
			idx, ok := byName[key]
			if !ok {
				idx = len(out.Characters)
				byName[key] = idx
				out.Characters = append(out.Characters, Character{Name: strings.TrimSpace(name)})
			}
			out.Characters[idx].Appearances = append(out.Characters[idx].Appearances, Appearance{
				Chunk: r.Index,
				Title: r.Title,
				Text:  text,
			})
		}
	}
	return out
}

// Lookup returns the character with name, ignoring case.
func (m *Merged) Lookup(name string) (*Character, bool) {
	for i := range m.Characters {
		if strings.EqualFold(m.Characters[i].Name, name) {
			return &m.Characters[i], true
		}
	}
	return nil, false
}
