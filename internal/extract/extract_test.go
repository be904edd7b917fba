package extract

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackzampolin/plotline/internal/chunk"
	"github.com/jackzampolin/plotline/internal/jobs"
	"github.com/jackzampolin/plotline/internal/parser"
	"github.com/jackzampolin/plotline/internal/providers"
)

func TestRequest(t *testing.T) {
	task := NewTask(Config{Targets: []string{" Elizabeth ", "", "Darcy"}, Temperature: 0.3, MaxTokens: 500, StructuredOutput: true}, 12)
	req := task.Request(chunk.Chunk{Index: 4, Title: "Chapter 5", Text: "Elizabeth walks to Netherfield."})

	if len(req.Messages) != 2 || req.Messages[0].Role != providers.RoleSystem || req.Messages[1].Role != providers.RoleUser {
		t.Fatalf("messages = %+v", req.Messages)
	}
	user := req.Messages[1].Content
	for _, want := range []string{"Section: Chapter 5", "Excerpt 5 of 12", "Elizabeth walks to Netherfield.", "Elizabeth, Darcy"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}
	if req.Temperature != 0.3 || req.MaxTokens != 500 {
		t.Errorf("temperature = %v, max tokens = %d", req.Temperature, req.MaxTokens)
	}
	if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" {
		t.Fatalf("response format = %+v", req.ResponseFormat)
	}

	var env struct {
		Name   string          `json:"name"`
		Strict bool            `json:"strict"`
		Schema json.RawMessage `json:"schema"`
	}
	if err := json.Unmarshal(req.ResponseFormat.JSONSchema, &env); err != nil {
		t.Fatal(err)
	}
	if env.Name != SchemaName || env.Strict || len(env.Schema) == 0 {
		t.Errorf("schema envelope = %+v", env)
	}
}

func TestRequestPlain(t *testing.T) {
	task := NewTask(Config{}, 1)
	req := task.Request(chunk.Chunk{Index: 0, Text: "Rain."})
	if req.ResponseFormat != nil {
		t.Error("structured output disabled but response format set")
	}
	user := req.Messages[1].Content
	if strings.Contains(user, "Section:") || strings.Contains(user, "Only report") {
		t.Errorf("unexpected optional sections:\n%s", user)
	}
}

func TestAccept(t *testing.T) {
	task := NewTask(Config{Targets: []string{"Ahab", "Queequeg"}}, 1)
	c := chunk.Chunk{Text: "AHAB paced the deck while Starbuck watched."}

	tests := []struct {
		name string
		res  *parser.Result
		want error
	}{
		{"failed parse", &parser.Result{Tier: parser.TierFailed}, ErrEmptyResult},
		{"no entries", &parser.Result{Tier: parser.TierDirect, Entries: map[string]string{}}, ErrEmptyResult},
		{"mentioned target empty", &parser.Result{Tier: parser.TierDirect, Entries: map[string]string{"Ahab": " ", "Queequeg": ""}}, ErrTargetMissing},
		{"mentioned target absent", &parser.Result{Tier: parser.TierDirect, Entries: map[string]string{"Starbuck": "watches"}}, ErrTargetMissing},
		{"case-insensitive key", &parser.Result{Tier: parser.TierDirect, Entries: map[string]string{"ahab": "paces", "Queequeg": ""}}, nil},
		{"unmentioned target may be empty", &parser.Result{Tier: parser.TierDirect, Entries: map[string]string{"Ahab": "paces"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := task.Accept(c, tt.res)
			if tt.want == nil {
				if err != nil {
					t.Errorf("Accept() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Accept() error = %v, want %v", err, tt.want)
			}
		})
	}

	open := NewTask(Config{}, 1)
	if err := open.Accept(c, &parser.Result{Tier: parser.TierRegex, Entries: map[string]string{"Starbuck": "watches"}}); err != nil {
		t.Errorf("untargeted Accept() error = %v", err)
	}
}

func TestMerge(t *testing.T) {
	results := []jobs.ChunkResult{
		{Index: 2, Title: "III", Entries: map[string]string{"Bob": "leaves", "alice": "follows"}, Keys: []string{"Bob", "alice"}},
		{Index: 0, Title: "I", Entries: map[string]string{"Alice": "arrives", "Ghost": " "}, Keys: []string{"Alice", "Ghost"}},
		{Index: 1, Entries: map[string]string{"Zed": "z", "Carol": "c"}},
	}
	m := Merge(results, []int{5, 3})

	var names []string
	for _, c := range m.Characters {
		names = append(names, c.Name)
	}
	// Chunk 1 has no key list, so its names fall back to sorted order.
	if got := strings.Join(names, ","); got != "Alice,Carol,Zed,Bob" {
		t.Errorf("character order = %s", got)
	}

	alice, ok := m.Lookup("ALICE")
	if !ok || len(alice.Appearances) != 2 {
		t.Fatalf("Lookup(ALICE) = %+v, %v", alice, ok)
	}
	if a := alice.Appearances[1]; a.Chunk != 2 || a.Text != "follows" || a.Title != "III" {
		t.Errorf("second appearance = %+v", a)
	}
	if _, ok := m.Lookup("Ghost"); ok {
		t.Error("blank entry should be dropped")
	}
	if len(m.Failed) != 2 || m.Failed[0] != 3 {
		t.Errorf("Failed = %v", m.Failed)
	}
}

func TestPromptHashStable(t *testing.T) {
	if PromptHash() != PromptHash() || len(PromptHash()) != 16 {
		t.Errorf("PromptHash() = %q", PromptHash())
	}
	if !strings.Contains(SystemPrompt(), "JSON object") {
		t.Error("system prompt not embedded")
	}
}
