package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// entries accumulates parsed pairs while preserving emission order.
type entries struct {
	m        map[string]string
	keys     []string
	sections map[string]map[string]string
}

func newEntries() *entries {
	return &entries{
		m:        make(map[string]string),
		sections: make(map[string]map[string]string),
	}
}

func (e *entries) empty() bool {
	return e == nil || len(e.keys) == 0
}

func (e *entries) set(name, text string) {
	if _, seen := e.m[name]; !seen {
		e.keys = append(e.keys, name)
	}
	e.m[name] = text
}

func (e *entries) result(tier Tier) *Result {
	return &Result{
		Tier:     tier,
		Entries:  e.m,
		Keys:     e.keys,
		Sections: e.sections,
	}
}

var errNotObject = errors.New("not a JSON object")

// decodeObject decodes data as a JSON object of string or object-of-string
// values. Other value types are skipped. It returns nil if data is not a
// complete, valid JSON object.
func decodeObject(data []byte) *entries {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' || !json.Valid(data) {
		return nil
	}
	e := newEntries()
	err := walkObject(data, func(name string, raw json.RawMessage) error {
		switch firstByte(raw) {
		case '"':
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return err
			}
			e.set(name, s)
		case '{':
			nested, order, err := decodeSections(raw)
			if err != nil {
				return err
			}
			if len(order) == 0 {
				return nil
			}
			e.sections[name] = nested
			e.set(name, flatten(nested, order))
		}
		return nil
	})
	if err != nil {
		return nil
	}
	return e
}

// decodeSections decodes a section → text object, keeping string values only.
func decodeSections(raw json.RawMessage) (map[string]string, []string, error) {
	nested := make(map[string]string)
	var order []string
	err := walkObject(raw, func(section string, v json.RawMessage) error {
		if firstByte(v) != '"' {
			return nil
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		if _, seen := nested[section]; !seen {
			order = append(order, section)
		}
		nested[section] = s
		return nil
	})
	return nested, order, err
}

// walkObject calls fn for each member of a JSON object in document order.
func walkObject(data []byte, fn func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errNotObject
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errNotObject
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	_, err = dec.Token() // closing brace
	return err
}

// flatten renders sections as "section: text" lines in order, skipping blanks.
func flatten(sections map[string]string, order []string) string {
	lines := make([]string, 0, len(order))
	for _, name := range order {
		text := strings.TrimSpace(sections[name])
		if text == "" {
			continue
		}
		lines = append(lines, name+": "+text)
	}
	return strings.Join(lines, "\n")
}

func firstByte(raw json.RawMessage) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}
