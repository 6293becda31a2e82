package llm

import (
	"testing"
	"time"

	"github.com/mohammad-safakhou/curricula/config"
)

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		Providers: map[string]config.LLMProvider{
			"anthropic": {
				Type:   "anthropic",
				APIKey: "test-key",
				Models: map[string]config.LLMModel{
					"claude-sonnet": {Name: "claude-sonnet", APIName: "claude-sonnet-4-20250514", MaxTokens: 8192},
				},
				Timeout: 5 * time.Second,
			},
			"openai": {
				Type:   "openai",
				APIKey: "test-key",
				Models: map[string]config.LLMModel{
					"gpt-4o": {Name: "gpt-4o", MaxTokens: 4096},
				},
				Timeout: 5 * time.Second,
			},
		},
		Routing: config.LLMRoutingConfig{
			Reasoning:  "claude-sonnet",
			Reflection: "claude-sonnet",
			Extraction: "gpt-4o",
			Research:   "claude-sonnet",
			Fallback:   "claude-sonnet",
		},
	}
}

func TestRouterForTask(t *testing.T) {
	r, err := NewRouter(testLLMConfig())
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	p, model, err := r.ForTask("reasoning")
	if err != nil {
		t.Fatalf("ForTask(reasoning): %v", err)
	}
	if model != "claude-sonnet" {
		t.Fatalf("expected claude-sonnet, got %s", model)
	}
	if _, ok := p.(*AnthropicProvider); !ok {
		t.Fatalf("expected anthropic provider, got %T", p)
	}

	p, model, err = r.ForTask("extraction")
	if err != nil {
		t.Fatalf("ForTask(extraction): %v", err)
	}
	if model != "gpt-4o" {
		t.Fatalf("expected gpt-4o, got %s", model)
	}
	if _, ok := p.(*OpenAIProvider); !ok {
		t.Fatalf("expected openai provider, got %T", p)
	}

	// Unknown task routes to the fallback model.
	_, model, err = r.ForTask("unknown")
	if err != nil {
		t.Fatalf("ForTask(unknown): %v", err)
	}
	if model != "claude-sonnet" {
		t.Fatalf("unknown task should use fallback, got %s", model)
	}
}

func TestRouterForModelUnknown(t *testing.T) {
	r, err := NewRouter(testLLMConfig())
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	if _, _, err := r.ForModel("nope"); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestRouterResearcherForTask(t *testing.T) {
	r, err := NewRouter(testLLMConfig())
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	if _, _, err := r.ResearcherForTask("research"); err != nil {
		t.Fatalf("anthropic model should support research streaming: %v", err)
	}

	// Extraction routes to OpenAI, which cannot run server-side search.
	if _, _, err := r.ResearcherForTask("extraction"); err == nil {
		t.Fatal("expected error when research routes to a non-streaming provider")
	}
}

func TestExtractFirstJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"Here you go:\n```json\n{\"a\":1}\n```\nthanks", `{"a":1}`},
		{`prefix {"a":{"b":2}} suffix {"c":3}`, `{"a":{"b":2}}`},
		{`{"text":"brace } inside string"}`, `{"text":"brace } inside string"}`},
		{`{"esc":"quote \" and } brace"}`, `{"esc":"quote \" and } brace"}`},
		{"no json at all", "no json at all"},
	}
	for _, tc := range cases {
		if got := ExtractFirstJSON(tc.in); got != tc.want {
			t.Fatalf("ExtractFirstJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractFirstJSONArray(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`[1,2,3]`, `[1,2,3]`},
		{"```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{`text ["x","]"] more`, `["x","]"]`},
		{"nothing here", "nothing here"},
	}
	for _, tc := range cases {
		if got := ExtractFirstJSONArray(tc.in); got != tc.want {
			t.Fatalf("ExtractFirstJSONArray(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewRouterRejectsUnknownType(t *testing.T) {
	cfg := config.LLMConfig{
		Providers: map[string]config.LLMProvider{
			"mystery": {Type: "mystery"},
		},
	}
	if _, err := NewRouter(cfg); err == nil {
		t.Fatal("expected error for unsupported provider type")
	}
}
