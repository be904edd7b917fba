// Package parser turns one backend response into a name → text map using a
// descending-confidence fallback ladder:
//
//  1. Structured: a schema-validated object supplied by the backend
//  2. Direct: the text is a JSON object
//  3. Extracted: code fences stripped, then the widest {...} span that parses
//  4. Regex: "key": "value" pairs pulled out of otherwise broken output
//
// The first tier yielding at least one entry wins; otherwise the result is
// TierFailed with an empty map.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier identifies which rung of the ladder produced a Result.
type Tier int

const (
	TierStructured Tier = iota + 1
	TierDirect
	TierExtracted
	TierRegex
	TierFailed
)

func (t Tier) String() string {
	switch t {
	case TierStructured:
		return "structured"
	case TierDirect:
		return "direct"
	case TierExtracted:
		return "extracted"
	case TierRegex:
		return "regex"
	case TierFailed:
		return "failed"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Response is raw backend output: either Structured or Text.
type Response interface {
	isResponse()
}

// Structured is output the backend already produced as a JSON object.
type Structured struct {
	Raw json.RawMessage
}

// Text is free-form backend output.
type Text struct {
	Body string
}

func (Structured) isResponse() {}
func (Text) isResponse()       {}

// Result is the outcome of Parse.
type Result struct {
	Tier Tier

	// Entries maps each name to its text. Nested section maps are flattened
	// into "section: text" lines.
	Entries map[string]string

	// Keys lists Entries' names in the order the backend emitted them.
	Keys []string

	// Sections keeps the nested form for names whose value was an object.
	Sections map[string]map[string]string
}

// Failed reports whether no tier produced an entry.
func (r *Result) Failed() bool {
	return r == nil || r.Tier == TierFailed
}

// Parse runs the ladder over resp.
func Parse(resp Response) *Result {
	var text string
	switch r := resp.(type) {
	case Structured:
		if res := parseStructured(r.Raw); res != nil {
			return res
		}
		text = string(r.Raw)
	case *Structured:
		if r != nil {
			if res := parseStructured(r.Raw); res != nil {
				return res
			}
			text = string(r.Raw)
		}
	case Text:
		text = r.Body
	case *Text:
		if r != nil {
			text = r.Body
		}
	}
	return ParseText(text)
}

// ParseText runs tiers 2 through 4 over free-form text.
func ParseText(text string) *Result {
	text = strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	if text == "" {
		return failed()
	}
	if res := decodeObject([]byte(text)); !res.empty() {
		return res.result(TierDirect)
	}
	if res := extract(text); !res.empty() {
		return res.result(TierExtracted)
	}
	if res := regexPairs(text); !res.empty() {
		return res.result(TierRegex)
	}
	return failed()
}

func parseStructured(raw json.RawMessage) *Result {
	if len(raw) == 0 || Validate(raw) != nil {
		return nil
	}
	res := decodeObject(raw)
	if res.empty() {
		return nil
	}
	return res.result(TierStructured)
}

func failed() *Result {
	return &Result{
		Tier:     TierFailed,
		Entries:  map[string]string{},
		Sections: map[string]map[string]string{},
	}
}
