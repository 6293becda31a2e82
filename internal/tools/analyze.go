package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mohammad-safakhou/curricula/internal/llm"
	"github.com/mohammad-safakhou/curricula/models"
)

// analysisTypes is the closed set accepted by the content analysis tool.
var analysisTypes = map[string]bool{
	"sentiment":  true,
	"trends":     true,
	"topics":     true,
	"curriculum": true,
}

// ContentAnalysisTool runs an LLM analysis over already-collected content
// (forum posts, reviews, course descriptions).
type ContentAnalysisTool struct {
	deps Deps
}

func (t *ContentAnalysisTool) Name() string { return "analyze_content" }

func (t *ContentAnalysisTool) Description() string {
	return "Analyze collected text for learner sentiment, trends or recurring topics"
}

func (t *ContentAnalysisTool) Parameters() map[string]string {
	return map[string]string{
		"content":       "the text to analyze",
		"analysis_type": "one of: sentiment, trends, topics, curriculum",
	}
}

func (t *ContentAnalysisTool) Execute(ctx context.Context, args map[string]interface{}, progress ProgressFunc) (interface{}, error) {
	content := stringArg(args, "content")
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}
	analysisType := stringArg(args, "analysis_type")
	if analysisType == "" {
		analysisType = "sentiment"
	}
	if !analysisTypes[analysisType] {
		return nil, fmt.Errorf("unsupported analysis_type: %s", analysisType)
	}
	if len(content) > 15000 {
		content = content[:15000]
	}

	provider, model, err := t.deps.LLM.ForTask("reflection")
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress(fmt.Sprintf("Running %s analysis...", analysisType))
	}

	prompt := fmt.Sprintf(`Analyze the following content. Analysis focus: %s.

Respond ONLY with valid JSON:
{
  "sentiment_summary": "2-4 sentences on overall learner sentiment, or empty if not applicable",
  "trending_topics": ["recurring subjects, pain points or demands"],
  "key_insights": ["short actionable observations"]
}

Content:
%s`, analysisType, content)

	raw, err := provider.Generate(ctx, prompt, model, map[string]interface{}{"max_tokens": 2000})
	if err != nil {
		return nil, fmt.Errorf("analysis call: %w", err)
	}

	var parsed models.ContentAnalysisData
	if err := json.Unmarshal([]byte(llm.ExtractFirstJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("analysis parse: %w", err)
	}
	parsed.AnalysisType = analysisType
	if parsed.SentimentSummary == "" && len(parsed.TrendingTopics) == 0 && len(parsed.KeyInsights) == 0 {
		return nil, fmt.Errorf("analysis produced no output")
	}
	return parsed, nil
}
