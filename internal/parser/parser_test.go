package parser

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParseLadder(t *testing.T) {
	tests := []struct {
		name     string
		resp     Response
		wantTier Tier
		want     map[string]string
	}{
		{
			name:     "structured object",
			resp:     Structured{Raw: json.RawMessage(`{"A":"x","B":"y"}`)},
			wantTier: TierStructured,
			want:     map[string]string{"A": "x", "B": "y"},
		},
		{
			name:     "direct JSON text",
			resp:     Text{Body: `  {"A":"x"}  `},
			wantTier: TierDirect,
			want:     map[string]string{"A": "x"},
		},
		{
			name:     "dangling closing fence",
			resp:     Text{Body: "{\"A\":\"x\"}\n```"},
			wantTier: TierExtracted,
			want:     map[string]string{"A": "x"},
		},
		{
			name:     "fenced block with prose",
			resp:     Text{Body: "Here you go:\n```json\n{\"A\": \"x\"}\n```\nLet me know."},
			wantTier: TierExtracted,
			want:     map[string]string{"A": "x"},
		},
		{
			name:     "boundary search past trailing commentary",
			resp:     Text{Body: `Here is the result: {"A":"x"} Hope that helps!`},
			wantTier: TierExtracted,
			want:     map[string]string{"A": "x"},
		},
		{
			name:     "boundary search skips unbalanced trailing brace",
			resp:     Text{Body: `{"A":"x"} and a stray } here`},
			wantTier: TierExtracted,
			want:     map[string]string{"A": "x"},
		},
		{
			name:     "regex recovery from broken JSON",
			resp:     Text{Body: `Sure! "A": "x", broken... {{`},
			wantTier: TierRegex,
			want:     map[string]string{"A": "x"},
		},
		{
			name:     "regex handles escapes",
			resp:     Text{Body: `{"Bob \"B\"": "says \"hi\" \\ bye", "Eve": "line\nnext"`},
			wantTier: TierRegex,
			want:     map[string]string{`Bob "B"`: `says "hi" \ bye`, "Eve": "line\nnext"},
		},
		{
			name:     "pure prose fails",
			resp:     Text{Body: "Nobody of note appears in this passage."},
			wantTier: TierFailed,
			want:     map[string]string{},
		},
		{
			name:     "empty object fails",
			resp:     Text{Body: `{}`},
			wantTier: TierFailed,
			want:     map[string]string{},
		},
		{
			name:     "structured failing schema falls through",
			resp:     Structured{Raw: json.RawMessage(`{"A":"x","n":3}`)},
			wantTier: TierDirect,
			want:     map[string]string{"A": "x"},
		},
		{
			name:     "pointer variants",
			resp:     &Text{Body: `{"A":"x"}`},
			wantTier: TierDirect,
			want:     map[string]string{"A": "x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.resp)
			if got.Tier != tt.wantTier {
				t.Errorf("Tier = %v, want %v", got.Tier, tt.wantTier)
			}
			if !reflect.DeepEqual(got.Entries, tt.want) {
				t.Errorf("Entries = %#v, want %#v", got.Entries, tt.want)
			}
		})
	}
}

func TestParsePreservesKeyOrder(t *testing.T) {
	got := Parse(Text{Body: `{"Zed":"1","Amy":"2","Mo":"3","Amy":"4"}`})
	want := []string{"Zed", "Amy", "Mo"}
	if !reflect.DeepEqual(got.Keys, want) {
		t.Errorf("Keys = %v, want %v", got.Keys, want)
	}
	if got.Entries["Amy"] != "4" {
		t.Errorf("duplicate key should keep last value, got %q", got.Entries["Amy"])
	}
}

func TestParseNestedSections(t *testing.T) {
	raw := `{
		"Alice": {"setup": "arrives in town", "conflict": "", "turn": "meets Bob"},
		"Bob": "keeps the inn",
		"Ghost": {"count": 2}
	}`
	// Ghost's numeric section fails the schema, so this lands on the direct tier.
	got := Parse(Structured{Raw: json.RawMessage(raw)})
	if got.Tier != TierDirect {
		t.Fatalf("Tier = %v, want direct", got.Tier)
	}
	if want := "setup: arrives in town\nturn: meets Bob"; got.Entries["Alice"] != want {
		t.Errorf("Alice = %q, want %q", got.Entries["Alice"], want)
	}
	if got.Entries["Bob"] != "keeps the inn" {
		t.Errorf("Bob = %q", got.Entries["Bob"])
	}
	wantSections := map[string]string{"setup": "arrives in town", "conflict": "", "turn": "meets Bob"}
	if !reflect.DeepEqual(got.Sections["Alice"], wantSections) {
		t.Errorf("Sections[Alice] = %v", got.Sections["Alice"])
	}
	if _, ok := got.Entries["Ghost"]; ok {
		t.Error("object without string sections should be skipped")
	}
	if !reflect.DeepEqual(got.Keys, []string{"Alice", "Bob"}) {
		t.Errorf("Keys = %v", got.Keys)
	}
}

func TestTierString(t *testing.T) {
	for tier, want := range map[Tier]string{
		TierStructured: "structured",
		TierDirect:     "direct",
		TierExtracted:  "extracted",
		TierRegex:      "regex",
		TierFailed:     "failed",
		Tier(42):       "tier(42)",
	} {
		if got := tier.String(); got != want {
			t.Errorf("Tier(%d).String() = %q, want %q", int(tier), got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(json.RawMessage(`{"A":"x","B":{"s":"t"}}`)); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
	for _, bad := range []string{`{}`, `[]`, `{"A":1}`, `{"A":{"s":1}}`, `nope`} {
		if err := Validate(json.RawMessage(bad)); err == nil {
			t.Errorf("Validate(%s) = nil, want error", bad)
		}
	}
}
