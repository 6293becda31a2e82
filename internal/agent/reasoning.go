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

const reasoningSystemPrompt = `You are a competitive research agent for curriculum building.

## YOUR MISSION:
Research the user's industry/topic and gather enough data to build a Module Inventory.
Be SMART about when to stop - continue until you have RELEVANT, USEFUL information.

## Available Tools:
%s

## RESEARCH APPROACH:

### Step 1: Start with Course Discovery
- **discover_courses_with_rankings** - Best first tool for course research
- Gets 20+ courses with pricing, certifications, and lesson info

### Step 2: Evaluate What You Have
After each tool, ask yourself:
- Do I have enough courses (15+) with useful details?
- Do I have module/lesson information?
- Can I build a meaningful Module Inventory?

### Step 3: Fill Gaps If Needed
If data is insufficient:
- **search_course_rankings** - For more courses
- **scrape_webpage** - For detailed lesson lists from specific courses
- **find_podcasts** - For educational podcast recommendations
- **search_all_forums** - For student discussions and recommendations

## WHEN TO RESPOND:
- You have 15+ courses with prices and certifications
- You have enough module/lesson data to build an inventory
- The data is RELEVANT to what the user asked
- Additional tools wouldn't significantly improve the answer

## WHEN TO CALL MORE TOOLS:
- First tool returned very little data (< 10 items)
- Missing key information (no prices, no modules)
- Tool returned errors - try alternative
- Data doesn't match what user asked for

## Response Format:
` + "```json" + `
{
    "action": "call_tool",
    "tool_name": "tool_name_here",
    "tool_arguments": {"arg1": "value1"},
    "thinking": "What I'm looking for and why",
    "industry": "The industry being researched"
}
` + "```" + `

Or to ask the user a clarifying question:
` + "```json" + `
{
    "action": "ask_question",
    "question": "What would you like to focus on?",
    "options": ["Option A", "Option B"],
    "thinking": "Why I need this answered first"
}
` + "```" + `

Or when ready:
` + "```json" + `
{
    "action": "respond",
    "thinking": "I have enough data: X courses, modules found, ready to answer"
}
` + "```" + `

## KEY PRINCIPLE:
Be SMART - focus on DATA QUALITY, not tool count.
If one tool gives you great data, you can respond.
If three tools give poor data, keep trying.`

const reasoningUserPrompt = `## Conversation History

%s

---

## Current State

**Current User Query:** %s

**Industry:** %s

**Research Plan:**
%s

**Research Data Collected:**
%s

**Last Tool Result:**
%s

**Reflection Feedback:**
%s

## Your Decision

Based on the conversation history and current state, what should we do next?

If the user references previous messages (e.g., "tell me more about that", "what were those courses?"),
use the conversation history to understand the context.

Respond with JSON:`

type reasoningDecision struct {
	Action        string                 `json:"action"`
	ToolName      string                 `json:"tool_name"`
	ToolArguments map[string]interface{} `json:"tool_arguments"`
	Thinking      string                 `json:"thinking"`
	Industry      string                 `json:"industry"`
	Question      string                 `json:"question"`
	Options       []string               `json:"options"`
}

// runReasoning asks the model for the next step and stages its decision on
// the state. The returned node is a hint only; routeAfterReasoning has the
// final say.
func (e *Engine) runReasoning(ctx context.Context, state *models.ConversationState, em Emitter) Node {
	query := state.LastUserMessage()

	// A vague one-word query with no established industry cannot be
	// researched, so short-circuit to a clarifying question.
	if state.Industry == "" && isVagueTopic(CleanTopic(query)) {
		state.PendingResponse = vagueTopicPrompt
		state.IsClarifyingQuestion = true
		return NodeResponse
	}

	prompt := e.buildReasoningPrompt(state, query)
	system := fmt.Sprintf(reasoningSystemPrompt, e.tools.Descriptions())

	provider, model, err := e.llm.ForTask("reasoning")
	if err != nil {
		e.logger.Printf("session %s: reasoning model unavailable: %v", state.SessionID, err)
		return NodeResponse
	}
	raw, err := provider.Generate(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.0,
		"max_tokens":  1024,
		"system":      system,
	})
	if err != nil {
		e.logger.Printf("session %s: reasoning call failed: %v", state.SessionID, err)
		return NodeResponse
	}

	decision := parseReasoningDecision(raw)
	e.logger.Printf("session %s: reasoning decided action=%s tool=%s", state.SessionID, decision.Action, decision.ToolName)

	switch decision.Action {
	case "ask_question":
		question := decision.Question
		if question == "" {
			question = "Could you please provide more details?"
		}
		if len(decision.Options) > 0 {
			var opts []string
			for _, opt := range decision.Options {
				opts = append(opts, fmt.Sprintf("- %s", opt))
			}
			question = question + "\n\n" + strings.Join(opts, "\n")
		}
		state.PendingResponse = question
		state.IsClarifyingQuestion = true
		return NodeResponse

	case "call_tool":
		if decision.ToolName == "" {
			return NodeResponse
		}
		args := decision.ToolArguments
		if args == nil {
			args = map[string]interface{}{}
		}
		state.CurrentToolCall = &models.ToolCall{Name: decision.ToolName, Arguments: args}
		if decision.Industry != "" {
			state.Industry = decision.Industry
		}
		thinking := decision.Thinking
		if thinking == "" {
			thinking = "Planning next step"
		}
		state.ReasoningExplanation = thinking
		e.appendAssistant(state, "Reasoning: "+thinking)
		e.emit(ctx, em, stream.Thinking(thinking))
		return NodeToolExecutor

	default:
		if decision.Thinking != "" {
			e.emit(ctx, em, stream.Thinking(decision.Thinking))
		}
		return NodeResponse
	}
}

func (e *Engine) buildReasoningPrompt(state *models.ConversationState, query string) string {
	window := e.cfg.HistoryWindow
	if window <= 0 {
		window = 10
	}
	messages := state.Messages
	if len(messages) > window {
		messages = messages[len(messages)-window:]
	}
	var history []string
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			history = append(history, "User: "+msg.Content)
		case models.RoleAssistant:
			if strings.HasPrefix(msg.Content, "Reasoning:") {
				continue
			}
			history = append(history, "Assistant: "+clip(msg.Content, 200)+"...")
		}
	}
	conversation := "No previous conversation"
	if len(history) > 0 {
		conversation = strings.Join(history, "\n")
	}

	industry := state.Industry
	if industry == "" {
		industry = "Not specified yet"
	}

	lastResult := "None"
	if state.CurrentToolResult != nil {
		res := state.CurrentToolResult
		preview := struct {
			ToolName    string `json:"tool_name"`
			Success     bool   `json:"success"`
			DataSummary string `json:"data_summary,omitempty"`
		}{ToolName: res.ToolName, Success: res.Success}
		if res.Data != nil {
			preview.DataSummary = clip(fmt.Sprintf("%v", res.Data), 500) + "..."
		}
		if b, err := json.MarshalIndent(preview, "", "  "); err == nil {
			lastResult = string(b)
		}
	}

	reflection := state.ReflectionExplanation
	if reflection == "" {
		reflection = "None"
	}

	return fmt.Sprintf(reasoningUserPrompt,
		clip(conversation, 4000),
		clip(query, 800),
		industry,
		planContext(state),
		e.summarizeResearch(state.ResearchData),
		lastResult,
		clip(reflection, 1200),
	)
}

// planContext renders the confirmed plan for the reasoning prompt so tool
// choices stay aligned with what the user approved.
func planContext(state *models.ConversationState) string {
	plan := state.ResearchPlan
	if plan == nil || !plan.IsConfirmed {
		return "No research plan yet - do general research."
	}

	selectedComp := make(map[string]bool)
	for _, name := range plan.SelectedCompetitors {
		selectedComp[name] = true
	}
	selectedCert := make(map[string]bool)
	for _, name := range plan.SelectedCertifications {
		selectedCert[name] = true
	}

	parts := []string{
		fmt.Sprintf("**Industry:** %s", plan.Industry),
		"",
		"**Selected Competitors to Research:**",
	}
	shown := 0
	for _, comp := range plan.Competitors {
		if shown >= 10 {
			break
		}
		if selectedComp[comp.Name] {
			ctype := comp.Type
			if ctype == "" {
				ctype = "unknown"
			}
			parts = append(parts, fmt.Sprintf("  - %s (%s)", comp.Name, ctype))
			shown++
		}
	}
	parts = append(parts, "", "**Certifications to Cover:**")
	shown = 0
	for _, cert := range plan.Certifications {
		if shown >= 6 {
			break
		}
		if selectedCert[cert.Name] {
			parts = append(parts, fmt.Sprintf("  - %s", cert.Name))
			shown++
		}
	}
	parts = append(parts, "", fmt.Sprintf("**Target Audience:** %s", selectedAudienceLabel(plan)))
	return strings.Join(parts, "\n")
}

// summarizeResearch gives the reasoner counts, not raw data. Courses carry a
// short name preview since they drive the sufficiency judgment.
func (e *Engine) summarizeResearch(data models.ResearchData) string {
	per := e.cfg.SummaryItems
	if per <= 0 {
		per = 5
	}

	var lines []string
	if n := len(data.Courses); n > 0 {
		var names []string
		for i, c := range data.Courses {
			if i >= per {
				break
			}
			names = append(names, c.Name)
		}
		lines = append(lines, fmt.Sprintf("- Courses: %d collected (e.g. %s)", n, strings.Join(names, ", ")))
	}
	if n := len(data.ModuleInventory); n > 0 {
		lines = append(lines, fmt.Sprintf("- Module inventory: %d modules", n))
	}
	if n := len(data.Competitors); n > 0 {
		lines = append(lines, fmt.Sprintf("- Competitors: %d found", n))
	}
	if n := len(data.Curricula); n > 0 {
		lines = append(lines, fmt.Sprintf("- Curricula: %d extracted", n))
	}
	if n := len(data.RedditPosts); n > 0 {
		lines = append(lines, fmt.Sprintf("- Reddit discussions: %d", n))
	}
	if n := len(data.QuoraAnswers); n > 0 {
		lines = append(lines, fmt.Sprintf("- Quora answers: %d", n))
	}
	if n := len(data.Podcasts); n > 0 {
		lines = append(lines, fmt.Sprintf("- Podcasts: %d", n))
	}
	if n := len(data.Blogs); n > 0 {
		lines = append(lines, fmt.Sprintf("- Blogs: %d", n))
	}
	if n := len(data.TrendingTopics); n > 0 {
		lines = append(lines, fmt.Sprintf("- Trending topics: %d", n))
	}
	if len(lines) == 0 {
		return "No research data yet"
	}
	return strings.Join(lines, "\n")
}

func parseReasoningDecision(content string) reasoningDecision {
	var decision reasoningDecision
	if err := json.Unmarshal([]byte(llm.ExtractFirstJSON(content)), &decision); err != nil || decision.Action == "" {
		return reasoningDecision{Action: "respond", Thinking: content}
	}
	return decision
}
