package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

// quotedPair matches "key": "value" where both strings may contain escaped
// quotes or backslashes.
var quotedPair = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// regexPairs recovers flat key/value string pairs from malformed output.
func regexPairs(text string) *entries {
	e := newEntries()
	for _, m := range quotedPair.FindAllStringSubmatch(text, -1) {
		key := strings.TrimSpace(unescape(m[1]))
		if key == "" {
			continue
		}
		e.set(key, unescape(m[2]))
	}
	return e
}

// unescape decodes JSON string escapes, falling back to undoing \" and \\ when
// the body is not a valid JSON string (e.g. a stray backslash).
func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err == nil {
		return out
	}
	r := strings.NewReplacer(`\"`, `"`, `\\`, `\`, `\n`, "\n", `\t`, "\t")
	return r.Replace(s)
}
