package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/curricula/config"
)

// Provider is the contract every LLM backend satisfies.
type Provider interface {
	// Generate generates text for a prompt
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns token usage
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// GetAvailableModels returns available models
	GetAvailableModels() []string

	// GetModelInfo returns information about a specific model
	GetModelInfo(model string) (ModelInfo, error)

	// CalculateCost calculates the cost for a given number of tokens
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo contains information about an LLM model
type ModelInfo struct {
	Name            string  `json:"name"`
	Provider        string  `json:"provider"`
	APIName         string  `json:"api_name"`
	MaxTokens       int     `json:"max_tokens"`
	CostPer1KInput  float64 `json:"cost_per_1k_input"`
	CostPer1KOutput float64 `json:"cost_per_1k_output"`
}

// ResearchRequest describes one long-form research call. The backend drives
// its own web searches up to MaxSearches and interleaves extended thinking.
type ResearchRequest struct {
	System         string
	Prompt         string
	Model          string
	MaxTokens      int
	ThinkingBudget int
	MaxSearches    int
}

// ResearchEventKind enumerates research stream events.
type ResearchEventKind string

const (
	ResearchThinkingStart ResearchEventKind = "thinking_start"
	ResearchThinking      ResearchEventKind = "thinking"
	ResearchTextStart     ResearchEventKind = "text_start"
	ResearchText          ResearchEventKind = "text"
	ResearchToolStart     ResearchEventKind = "tool_start"
	ResearchToolInput     ResearchEventKind = "tool_input"
	ResearchBlockStop     ResearchEventKind = "block_stop"
	ResearchComplete      ResearchEventKind = "complete"
	ResearchError         ResearchEventKind = "error"
)

// ResearchEvent is one incremental event from a research stream.
type ResearchEvent struct {
	Kind          ResearchEventKind
	Text          string // delta text for thinking/text, message for error
	SearchNumber  int    // set on tool_start
	TotalSearches int    // set on complete
	InputTokens   int64  // set on complete
	OutputTokens  int64  // set on complete
}

// Researcher is satisfied by providers that can run server-side web search
// with streaming output.
type Researcher interface {
	ResearchStream(ctx context.Context, req ResearchRequest) (<-chan ResearchEvent, error)
}

// Router resolves task names to a provider and model.
type Router struct {
	providers map[string]Provider
	routing   config.LLMRoutingConfig
	modelHome map[string]string // model name -> provider key
}

// NewRouter builds all configured providers and a task routing table.
func NewRouter(cfg config.LLMConfig) (*Router, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}

	r := &Router{
		providers: make(map[string]Provider),
		routing:   cfg.Routing,
		modelHome: make(map[string]string),
	}
	for key, pc := range cfg.Providers {
		ptype := pc.Type
		if ptype == "" {
			ptype = key
		}
		var p Provider
		switch strings.ToLower(ptype) {
		case "anthropic":
			p = NewAnthropicProvider(pc)
		case "openai":
			p = NewOpenAIProvider(pc)
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", ptype)
		}
		r.providers[key] = p
		for _, m := range pc.Models {
			r.modelHome[m.Name] = key
		}
	}
	return r, nil
}

// ForTask returns the provider and model for a routed task. Unknown tasks
// fall back to the fallback route.
func (r *Router) ForTask(task string) (Provider, string, error) {
	if r == nil {
		return nil, "", fmt.Errorf("no LLM router configured")
	}
	var model string
	switch task {
	case "reasoning":
		model = r.routing.Reasoning
	case "reflection":
		model = r.routing.Reflection
	case "extraction":
		model = r.routing.Extraction
	case "research":
		model = r.routing.Research
	default:
		model = r.routing.Fallback
	}
	if model == "" {
		model = r.routing.Fallback
	}
	return r.ForModel(model)
}

// ForModel returns the provider that owns a model.
func (r *Router) ForModel(model string) (Provider, string, error) {
	if r == nil {
		return nil, "", fmt.Errorf("no LLM router configured")
	}
	key, ok := r.modelHome[model]
	if !ok {
		return nil, "", fmt.Errorf("model %q not found in any provider", model)
	}
	return r.providers[key], model, nil
}

// ResearcherForTask returns a streaming researcher for the routed model, or an
// error when the model's provider cannot run server-side search.
func (r *Router) ResearcherForTask(task string) (Researcher, string, error) {
	p, model, err := r.ForTask(task)
	if err != nil {
		return nil, "", err
	}
	res, ok := p.(Researcher)
	if !ok {
		return nil, "", fmt.Errorf("model %q provider does not support research streaming", model)
	}
	return res, model, nil
}

// ExtractFirstJSON returns the first balanced {...} object in s, tolerating
// prose or markdown fences around it. Returns s unchanged when no object is
// found so callers surface the parse error with full context.
func ExtractFirstJSON(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range s {
		if inString {
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}

// ExtractFirstJSONArray returns the first balanced [...] array in s.
func ExtractFirstJSONArray(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range s {
		if inString {
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '[':
			if depth == 0 {
				start = i
			}
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}
