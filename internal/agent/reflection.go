package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/curricula/internal/llm"
	"github.com/mohammad-safakhou/curricula/internal/stream"
	"github.com/mohammad-safakhou/curricula/models"
)

const reflectionSystemPrompt = `You evaluate whether we have enough course data.

## YOUR ROLE:
Check if we have 10+ courses to build a useful Module Inventory.

## SUFFICIENT (is_sufficient: true) if:
- 10+ courses found with details (names, providers, some prices)
- Data is RELEVANT to user's industry/topic
- Even if some details are missing, 10+ courses is enough

## INSUFFICIENT (is_sufficient: false) if:
- Less than 10 courses found
- Tool returned empty/error results
- Data is irrelevant to user's topic

## IMPORTANT:
- Target: 10+ courses
- Truncated data with 10+ courses = SUFFICIENT
- 8-9 courses = almost sufficient (could continue or respond)
- Less than 5 courses = need more tools

## Response Format (JSON only):
{
  "is_valid": true/false,
  "is_relevant": true/false,
  "is_sufficient": true/false,
  "next_action": "respond_to_user" or "call_more_tools",
  "reasoning": "X courses found, [sufficient/need more]",
  "missing_data": []
}`

const reflectionUserPrompt = `## Validation Task

**Original User Query:** %s

**Industry Being Researched:** %s

**Tool That Was Called:** %s

**Tool Result:**
` + "```" + `
%s
` + "```" + `

**Research Data We Have So Far:**
%s

## Your Assessment

Analyze the tool result and current research state. Is the data valid, relevant, and sufficient?

Respond with JSON:`

// reflectionVerdict is the reflection node's judgment of the last tool
// result. Routing treats it as advisory next to the hard floors.
type reflectionVerdict struct {
	IsValid      bool
	IsRelevant   bool
	IsSufficient bool
	NextAction   string
	Explanation  string
	MissingData  []string
}

// runReflection merges a successful tool result into the research data and
// judges whether enough has been collected. Failed results merge nothing and
// count against the retry ceiling, as do calls that add zero new items.
func (e *Engine) runReflection(ctx context.Context, state *models.ConversationState, em Emitter) reflectionVerdict {
	result := state.CurrentToolResult
	if result == nil {
		return reflectionVerdict{Explanation: "No tool result to reflect on"}
	}

	if !result.Success {
		state.RetryCount++
		errText := result.Error
		if errText == "" {
			errText = "Unknown error"
		}
		verdict := reflectionVerdict{
			NextAction:  "call_more_tools",
			Explanation: "Tool failed: " + errText,
			MissingData: []string{"retry_" + result.ToolName},
		}
		state.ReflectionExplanation = verdict.Explanation
		e.appendAssistant(state, "Reflection: "+verdict.Explanation)
		return verdict
	}

	merged, added := mergeToolResult(state.ResearchData, result.ToolName, result.Data)
	state.ResearchData = merged
	state.ToolCallCount++
	e.logger.Printf("session %s: %s merged %d items (%d courses total)",
		state.SessionID, result.ToolName, added, merged.PrimaryCount())

	if added == 0 {
		state.RetryCount++
	} else {
		e.emit(ctx, em, stream.Statusf("Collected %d courses so far", merged.PrimaryCount()))
	}

	var verdict reflectionVerdict
	if n := merged.PrimaryCount(); n >= e.cfg.SufficiencyFloor {
		verdict = reflectionVerdict{
			IsValid:      true,
			IsRelevant:   true,
			IsSufficient: true,
			NextAction:   "respond_to_user",
			Explanation:  fmt.Sprintf("%d courses found, sufficient", n),
		}
	} else {
		verdict = e.assessResult(ctx, state, result)
		if added == 0 {
			verdict.IsSufficient = false
		}
	}

	msg := verdict.Explanation
	if !verdict.IsSufficient && len(verdict.MissingData) > 0 {
		missing := verdict.MissingData
		if len(missing) > 3 {
			missing = missing[:3]
		}
		msg += " | Missing: " + strings.Join(missing, ", ")
	}
	state.ReflectionExplanation = verdict.Explanation
	e.appendAssistant(state, "Reflection: "+msg)
	return verdict
}

func (e *Engine) assessResult(ctx context.Context, state *models.ConversationState, result *models.ToolResult) reflectionVerdict {
	industry := state.Industry
	if industry == "" {
		industry = "Not specified"
	}
	preview := "None"
	if result.Data != nil {
		preview = clip(fmt.Sprintf("%v", result.Data), 1000) + "..."
	}
	prompt := fmt.Sprintf(reflectionUserPrompt,
		clip(state.LastUserMessage(), 800),
		industry,
		result.ToolName,
		preview,
		e.summarizeResearch(state.ResearchData),
	)

	fallback := reflectionVerdict{
		IsValid:      true,
		IsRelevant:   true,
		IsSufficient: false,
		NextAction:   "call_more_tools",
	}

	provider, model, err := e.llm.ForTask("reflection")
	if err != nil {
		e.logger.Printf("session %s: reflection model unavailable: %v", state.SessionID, err)
		fallback.Explanation = "Reflection unavailable, continuing research"
		return fallback
	}
	raw, err := provider.Generate(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.0,
		"max_tokens":  512,
		"system":      reflectionSystemPrompt,
	})
	if err != nil {
		e.logger.Printf("session %s: reflection call failed: %v", state.SessionID, err)
		fallback.Explanation = "Reflection unavailable, continuing research"
		return fallback
	}

	var parsed struct {
		IsValid      bool     `json:"is_valid"`
		IsRelevant   bool     `json:"is_relevant"`
		IsSufficient bool     `json:"is_sufficient"`
		NextAction   string   `json:"next_action"`
		Reasoning    string   `json:"reasoning"`
		MissingData  []string `json:"missing_data"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractFirstJSON(raw)), &parsed); err != nil {
		fallback.Explanation = raw
		return fallback
	}
	return reflectionVerdict{
		IsValid:      parsed.IsValid,
		IsRelevant:   parsed.IsRelevant,
		IsSufficient: parsed.IsSufficient,
		NextAction:   parsed.NextAction,
		Explanation:  parsed.Reasoning,
		MissingData:  parsed.MissingData,
	}
}

// mergeToolResult folds one tool payload into the accumulated research data
// and reports how many items it contributed. Categories only ever grow;
// price analysis is the one replace-on-update field.
func mergeToolResult(data models.ResearchData, toolName string, payload interface{}) (models.ResearchData, int) {
	if payload == nil {
		return data, 0
	}
	added := 0

	switch toolName {
	case "search_google":
		results, ok := payload.([]models.SearchResult)
		if !ok {
			return data, 0
		}
		for _, r := range results {
			comp := models.Competitor{Title: r.Title, URL: r.URL, Snippet: r.Snippet}
			if !containsCompetitor(data.Competitors, comp) {
				data.Competitors = append(data.Competitors, comp)
				added++
			}
		}

	case "discover_courses_with_rankings":
		disc, ok := payload.(models.CourseDiscoveryData)
		if !ok {
			return data, 0
		}
		data.Courses = append(data.Courses, disc.Courses...)
		added += len(disc.Courses)
		data.LessonFrequency = append(data.LessonFrequency, disc.LessonFrequency...)
		added += len(disc.LessonFrequency)
		data.ModuleInventory = append(data.ModuleInventory, disc.ModuleInventory...)
		added += len(disc.ModuleInventory)
		if !disc.PriceAnalysis.Empty() {
			data.PriceAnalysis = disc.PriceAnalysis
		}
		data.TrendingTopics = append(data.TrendingTopics, disc.TrendingTopics...)
		added += len(disc.TrendingTopics)

	case "extract_course_lessons", "scrape_webpage":
		curriculum, ok := payload.(models.Curriculum)
		if !ok {
			return data, 0
		}
		data.Curricula = append(data.Curricula, curriculum)
		added++

	case "search_course_rankings":
		courses, ok := payload.([]models.Course)
		if !ok {
			return data, 0
		}
		for _, c := range courses {
			if !containsCourse(data.Courses, c) {
				data.Courses = append(data.Courses, c)
				added++
			}
		}

	case "search_all_forums":
		forums, ok := payload.(models.ForumSearchData)
		if !ok {
			return data, 0
		}
		data.RedditPosts = append(data.RedditPosts, forums.Reddit...)
		data.QuoraAnswers = append(data.QuoraAnswers, forums.Quora...)
		added += len(forums.Reddit) + len(forums.Quora)

	case "search_reddit":
		posts, ok := payload.([]models.ForumPost)
		if !ok {
			return data, 0
		}
		data.RedditPosts = append(data.RedditPosts, posts...)
		added += len(posts)

	case "search_quora":
		posts, ok := payload.([]models.ForumPost)
		if !ok {
			return data, 0
		}
		data.QuoraAnswers = append(data.QuoraAnswers, posts...)
		added += len(posts)

	case "find_podcasts", "find_educational_podcasts":
		podcasts, ok := payload.([]models.Podcast)
		if !ok {
			return data, 0
		}
		data.Podcasts = append(data.Podcasts, podcasts...)
		added += len(podcasts)

	case "find_blogs":
		blogs, ok := payload.([]models.Blog)
		if !ok {
			return data, 0
		}
		data.Blogs = append(data.Blogs, blogs...)
		added += len(blogs)

	case "analyze_content":
		analysis, ok := payload.(models.ContentAnalysisData)
		if !ok {
			return data, 0
		}
		if analysis.SentimentSummary != "" {
			data.SentimentSummary = analysis.SentimentSummary
			added++
		}
		data.TrendingTopics = append(data.TrendingTopics, analysis.TrendingTopics...)
		added += len(analysis.TrendingTopics)
	}

	return data, added
}

func containsCompetitor(competitors []models.Competitor, c models.Competitor) bool {
	for _, existing := range competitors {
		if existing == c {
			return true
		}
	}
	return false
}

func containsCourse(courses []models.Course, c models.Course) bool {
	for _, existing := range courses {
		if c.URL != "" && existing.URL == c.URL {
			return true
		}
		if c.URL == "" && existing.Name == c.Name {
			return true
		}
	}
	return false
}
