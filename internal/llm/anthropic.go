package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mohammad-safakhou/curricula/config"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com/v1"
	anthropicVersion    = "2023-06-01"
	interleavedThinking = "interleaved-thinking-2025-05-14"
	webSearchToolType   = "web_search_20250305"
)

// AnthropicProvider implements Provider and Researcher against the Anthropic
// messages API.
type AnthropicProvider struct {
	config    config.LLMProvider
	models    map[string]ModelInfo
	rawModels map[string]config.LLMModel
	client    *HTTPClient
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(cfg config.LLMProvider) *AnthropicProvider {
	provider := &AnthropicProvider{
		config:    cfg,
		models:    make(map[string]ModelInfo),
		rawModels: cfg.Models,
		client:    NewHTTPClient(cfg.Timeout, cfg.MaxRetries, 0),
	}

	for key, model := range cfg.Models {
		provider.models[key] = ModelInfo{
			Name:            model.Name,
			Provider:        "anthropic",
			APIName:         model.APIName,
			MaxTokens:       model.MaxTokens,
			CostPer1KInput:  model.CostPer1K,
			CostPer1KOutput: model.CostPer1KOutput,
		}
	}

	return provider
}

func (p *AnthropicProvider) apiKey() string {
	if p.config.APIKey != "" {
		return p.config.APIKey
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

func (p *AnthropicProvider) baseURL() string {
	if p.config.BaseURL != "" {
		return strings.TrimRight(p.config.BaseURL, "/")
	}
	return anthropicBaseURL
}

func (p *AnthropicProvider) headers(beta string) map[string]string {
	h := map[string]string{
		"x-api-key":         p.apiKey(),
		"anthropic-version": anthropicVersion,
	}
	if beta != "" {
		h["anthropic-beta"] = beta
	}
	return h
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	Thinking    *anthropicThinking `json:"thinking,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicTool struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	MaxUses int    `json:"max_uses,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
	StopReason string `json:"stop_reason"`
}

// Generate generates text using Anthropic
func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	resp, _, _, err := p.GenerateWithTokens(ctx, prompt, model, options)
	return resp, err
}

// GenerateWithTokens generates text and returns token usage
func (p *AnthropicProvider) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	if p.apiKey() == "" {
		return "", 0, 0, fmt.Errorf("anthropic API key not configured")
	}

	m, ok := p.rawModels[model]
	if !ok {
		return "", 0, 0, fmt.Errorf("model %s not configured", model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}

	temperature := m.Temperature
	if t, ok := options["temperature"].(float64); ok {
		temperature = t
	}
	maxTokens := m.MaxTokens
	if mt, ok := options["max_tokens"].(int); ok {
		maxTokens = mt
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}
	system, _ := options["system"].(string)

	req := anthropicRequest{
		Model:       apiModel,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		Temperature: &temperature,
	}

	var out anthropicResponse
	if err := p.client.DoJSON(ctx, "POST", p.baseURL()+"/messages", p.headers(""), req, &out); err != nil {
		return "", 0, 0, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", out.Usage.InputTokens, out.Usage.OutputTokens, fmt.Errorf("anthropic: empty response")
	}
	return text.String(), out.Usage.InputTokens, out.Usage.OutputTokens, nil
}

// ResearchStream runs a messages call with server-side web search and
// extended thinking, streaming incremental events. The returned channel
// closes after a complete or error event.
func (p *AnthropicProvider) ResearchStream(ctx context.Context, req ResearchRequest) (<-chan ResearchEvent, error) {
	if p.apiKey() == "" {
		return nil, fmt.Errorf("anthropic API key not configured")
	}
	m, ok := p.rawModels[req.Model]
	if !ok {
		return nil, fmt.Errorf("model %s not configured", req.Model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}

	maxTokens := req.MaxTokens
	if maxTokens <= req.ThinkingBudget {
		// The API rejects max_tokens at or below the thinking budget.
		maxTokens = req.ThinkingBudget + 8000
	}

	body := anthropicRequest{
		Model:     apiModel,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Prompt}},
		Stream:    true,
	}
	if req.ThinkingBudget > 0 {
		body.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: req.ThinkingBudget}
	}
	if req.MaxSearches > 0 {
		body.Tools = []anthropicTool{{Type: webSearchToolType, Name: "web_search", MaxUses: req.MaxSearches}}
	}

	stream, err := p.client.DoStream(ctx, "POST", p.baseURL()+"/messages", p.headers(interleavedThinking), body)
	if err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}

	events := make(chan ResearchEvent)
	go p.consumeStream(ctx, stream, events)
	return events, nil
}

type anthropicStreamFrame struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Message struct {
		Usage struct {
			InputTokens int64 `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) consumeStream(ctx context.Context, stream io.ReadCloser, events chan<- ResearchEvent) {
	defer close(events)
	defer stream.Close()

	send := func(ev ResearchEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	searchCount := 0
	var inputTokens, outputTokens int64

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var frame anthropicStreamFrame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "message_start":
			inputTokens = frame.Message.Usage.InputTokens
		case "content_block_start":
			switch frame.ContentBlock.Type {
			case "thinking":
				if !send(ResearchEvent{Kind: ResearchThinkingStart}) {
					return
				}
			case "text":
				if !send(ResearchEvent{Kind: ResearchTextStart}) {
					return
				}
			case "server_tool_use":
				searchCount++
				if !send(ResearchEvent{Kind: ResearchToolStart, SearchNumber: searchCount}) {
					return
				}
			}
		case "content_block_delta":
			switch frame.Delta.Type {
			case "thinking_delta":
				if !send(ResearchEvent{Kind: ResearchThinking, Text: frame.Delta.Thinking}) {
					return
				}
			case "text_delta":
				if !send(ResearchEvent{Kind: ResearchText, Text: frame.Delta.Text}) {
					return
				}
			case "input_json_delta":
				if !send(ResearchEvent{Kind: ResearchToolInput, Text: frame.Delta.PartialJSON}) {
					return
				}
			}
		case "content_block_stop":
			if !send(ResearchEvent{Kind: ResearchBlockStop}) {
				return
			}
		case "message_delta":
			if frame.Usage.OutputTokens > 0 {
				outputTokens = frame.Usage.OutputTokens
			}
		case "message_stop":
			send(ResearchEvent{
				Kind:          ResearchComplete,
				TotalSearches: searchCount,
				InputTokens:   inputTokens,
				OutputTokens:  outputTokens,
			})
			return
		case "error":
			send(ResearchEvent{Kind: ResearchError, Text: frame.Error.Message})
			return
		}
	}
	if err := scanner.Err(); err != nil {
		send(ResearchEvent{Kind: ResearchError, Text: err.Error()})
		return
	}
	// Stream ended without message_stop. Report what we have.
	send(ResearchEvent{
		Kind:          ResearchComplete,
		TotalSearches: searchCount,
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
	})
}

// GetAvailableModels returns available models
func (p *AnthropicProvider) GetAvailableModels() []string {
	var models []string
	for name := range p.models {
		models = append(models, name)
	}
	return models
}

// GetModelInfo returns information about a specific model
func (p *AnthropicProvider) GetModelInfo(model string) (ModelInfo, error) {
	info, exists := p.models[model]
	if !exists {
		return ModelInfo{}, fmt.Errorf("model not found: %s", model)
	}
	return info, nil
}

// CalculateCost calculates the cost for a given number of tokens
func (p *AnthropicProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	info, err := p.GetModelInfo(model)
	if err != nil {
		return 0.0
	}

	inputCost := float64(inputTokens) / 1000.0 * info.CostPer1KInput
	outputCost := float64(outputTokens) / 1000.0 * info.CostPer1KOutput
	return inputCost + outputCost
}
