package parser

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")

// extract tries each fence-stripped candidate of text, then searches each
// candidate for the widest parseable {...} span.
func extract(text string) *entries {
	for _, candidate := range fenceCandidates(text) {
		if res := decodeObject([]byte(candidate)); !res.empty() {
			return res
		}
		if res := boundarySearch(candidate); !res.empty() {
			return res
		}
	}
	return nil
}

// fenceCandidates returns the contents of any fenced blocks, then text with a
// dangling leading or trailing fence removed, then text itself.
func fenceCandidates(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	add(trimDanglingFences(text))
	add(text)
	return out
}

func trimDanglingFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// boundarySearch starts at the first '{' and tries every '}' as the right
// boundary, widest first, returning the first span that decodes to entries.
func boundarySearch(text string) *entries {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil
	}
	for end := len(text); end > start; {
		end = strings.LastIndexByte(text[:end], '}')
		if end <= start {
			return nil
		}
		if res := decodeObject([]byte(text[start : end+1])); !res.empty() {
			return res
		}
	}
	return nil
}
