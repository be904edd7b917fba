// Package chunk splits source text into ordered, independently analyzable chunks.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Chunk is one unit of source text. Identity is Index.
type Chunk struct {
	Index int    `json:"index"`
	Title string `json:"title,omitempty"` // First chapter heading when grouped by chapter
	Text  string `json:"text"`
}

// Indices returns the index of every chunk in order.
func Indices(chunks []Chunk) []int {
	out := make([]int, len(chunks))
	for i, c := range chunks {
		out[i] = c.Index
	}
	return out
}

// Fingerprint returns a stable hash over the chunk texts and their order.
// Two partitions with the same fingerprint can share checkpoints.
func Fingerprint(chunks []Chunk) string {
	h := sha256.New()
	for _, c := range chunks {
		fmt.Fprintf(h, "%d:%d:", c.Index, len(c.Text))
		h.Write([]byte(c.Text))
	}
	return hex.EncodeToString(h.Sum(nil))
}
