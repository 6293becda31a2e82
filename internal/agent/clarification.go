package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/curricula/internal/llm"
	"github.com/mohammad-safakhou/curricula/internal/stream"
	"github.com/mohammad-safakhou/curricula/models"
)

// The intent classifiers below are deterministic on purpose: plan execution
// must never be triggered by a prompt-level misreading of user intent.

// confirmationPattern matches approval wording on word boundaries, so
// "starters" does not confirm via "start".
var confirmationPattern = regexp.MustCompile(
	`\b(?:yes|proceed|go ahead|looks good|confirmed?|start research|approved?|ok|okay|perfect|great|let'?s go|do it|begin)\b`)

// feedbackIndicatorPattern matches edit wording. The unanchored stems
// (audienc, provider, certif) deliberately catch all their inflections.
var feedbackIndicatorPattern = regexp.MustCompile(
	`\b(?:target|focus|remove|add|change|update|include|exclude|beginners?|starters?|advanced|intermediate)\b|\b(?:audienc|provider|certif)`)

// IsConfirmation reports whether a reply to a presented plan approves it.
// Approval requires a short message matching an approval pattern with no
// feedback keyword; anything ambiguous or long is treated as feedback.
func IsConfirmation(message string) bool {
	if len(message) >= 50 {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(message))
	if !confirmationPattern.MatchString(lower) {
		return false
	}
	return !feedbackIndicatorPattern.MatchString(lower)
}

// newTopicIndicators are research-intent phrases that open a new request.
var newTopicIndicators = []string{
	"i want to", "want to research", "research on", "research about",
	"courses on", "courses about", "courses for", "training on", "training for",
	"curriculum for", "curriculum on", "write a course", "create a course",
	"build a course", "develop a course", "learn about", "teach me",
	"i need courses", "looking for courses", "find courses",
	"i want a course", "a course on", "a course about",
}

// planFeedbackPhrases mark a message as plan editing rather than a fresh
// request when the message is short.
var planFeedbackPhrases = []string{
	"remove", "add ", "focus on", "proceed", "yes", "no", "ok", "okay",
	"looks good", "go ahead", "confirm", "start research", "approved",
	"include", "exclude", "target", "great", "perfect", "change",
}

// IsNewTopic reports whether a message starts research on a brand-new topic
// rather than continuing or editing the current one. With an existing
// industry, the message must also share fewer than two keywords with it.
func IsNewTopic(message, currentIndustry string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))

	hasIntent := false
	for _, phrase := range newTopicIndicators {
		if strings.Contains(lower, phrase) {
			hasIntent = true
			break
		}
	}
	if !hasIntent {
		return false
	}

	if len(message) < 100 {
		for _, phrase := range planFeedbackPhrases {
			if strings.Contains(lower, phrase) {
				return false
			}
		}
	}

	if currentIndustry == "" {
		return true
	}
	current := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(currentIndustry)) {
		current[w] = true
	}
	overlap := 0
	for _, w := range strings.Fields(lower) {
		if current[w] {
			overlap++
		}
	}
	return overlap < 2
}

// vagueTopics are single words too generic to research.
var vagueTopics = map[string]bool{
	"course": true, "courses": true, "training": true, "education": true,
	"learning": true, "learn": true, "study": true, "class": true,
	"classes": true, "program": true, "programs": true, "certification": true,
	"certifications": true, "research": true, "help": true, "something": true,
	"anything": true, "stuff": true, "things": true,
}

// isVagueTopic reports whether a cleaned topic is too generic to act on.
func isVagueTopic(topic string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(topic))
	if trimmed == "" {
		return true
	}
	if strings.ContainsRune(trimmed, ' ') {
		return false
	}
	return vagueTopics[trimmed]
}

const vagueTopicPrompt = "Could you tell me which topic or industry you'd like me to research? For example:\n\n" +
	"- HVAC technician training\n" +
	"- Data science courses\n" +
	"- Digital marketing"

// runClarification drives the plan approval loop: discovery on first
// contact, then confirmation-vs-feedback on each reply until the user
// approves.
func (e *Engine) runClarification(ctx context.Context, state *models.ConversationState, em Emitter) (string, Node, error) {
	stage := state.Clarification.Stage
	if stage == "" {
		stage = models.StageDiscovery
	}
	message := state.LastUserMessage()

	if state.ResearchPlan == nil || stage == models.StageDiscovery {
		return e.runDiscovery(ctx, state, em)
	}

	if stage == models.StagePresentingPlan || stage == models.StageRefining {
		if IsConfirmation(message) {
			plan := state.ResearchPlan
			plan.IsConfirmed = true
			state.Clarification.Stage = models.StageConfirmed
			state.Clarification.UserFeedback = append(state.Clarification.UserFeedback, message)
			state.Clarification.IsComplete = true
			state.AwaitingClarification = false

			confirm := formatConfirmationMessage(plan)
			e.appendAssistant(state, confirm)
			e.emit(ctx, em, stream.Clarification(confirm, "planning"))
			e.logger.Printf("session %s: plan confirmed for %q", state.SessionID, plan.Industry)
			return "", NodeReasoning, nil
		}

		e.emit(ctx, em, stream.Status("Updating the research plan..."))
		e.applyPlanFeedback(ctx, state.ResearchPlan, message)
		state.Clarification.Stage = models.StageRefining
		state.Clarification.Iteration++
		state.Clarification.UserFeedback = append(state.Clarification.UserFeedback, message)
		state.AwaitingClarification = true

		reply := formatPlanPresentation(state.ResearchPlan, false, state.Clarification.Iteration)
		return reply, NodeEnd, nil
	}

	// Stage confirmed: nothing to clarify, research proceeds.
	state.AwaitingClarification = false
	return "", NodeReasoning, nil
}

// runDiscovery researches the topic's training landscape and presents a
// draft plan. Discovery failure degrades to a request for more detail, so a
// search outage never kills the conversation.
func (e *Engine) runDiscovery(ctx context.Context, state *models.ConversationState, em Emitter) (string, Node, error) {
	topic := state.Industry
	if topic == "" {
		topic = state.LastUserMessage()
	}
	clean := CleanTopic(topic)

	if isVagueTopic(clean) {
		state.Clarification = models.ClarificationState{Stage: models.StageDiscovery}
		state.AwaitingClarification = true
		state.IsClarifyingQuestion = true
		return vagueTopicPrompt, NodeEnd, nil
	}

	e.emit(ctx, em, stream.Statusf("Researching the %s training landscape...", clean))
	plan, err := e.DiscoverPlan(ctx, clean, em)
	if err != nil {
		e.logger.Printf("session %s: plan discovery for %q failed: %v", state.SessionID, clean, err)
		state.Clarification = models.ClarificationState{Stage: models.StageDiscovery}
		state.AwaitingClarification = true
		reply := fmt.Sprintf("I'm having trouble researching '%s'. Could you provide more details about what you're looking for?", clean)
		return reply, NodeEnd, nil
	}

	state.ResearchPlan = plan
	state.Industry = plan.Industry
	state.Clarification = models.ClarificationState{Stage: models.StagePresentingPlan, Iteration: 1}
	state.AwaitingClarification = true

	reply := formatPlanPresentation(plan, true, 1)
	return reply, NodeEnd, nil
}

// planEdit is the JSON shape the plan-edit completion returns.
type planEdit struct {
	SelectedCompetitors    []string `json:"selected_competitors"`
	SelectedCertifications []string `json:"selected_certifications"`
	SelectedAudience       string   `json:"selected_audience"`
	NewCompetitors         []struct {
		Name string `json:"name"`
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"new_competitors"`
	NewCertifications []struct {
		Name       string `json:"name"`
		Importance string `json:"importance"`
	} `json:"new_certifications"`
	NewAudiences []string `json:"new_audiences"`
}

// applyPlanFeedback edits the plan per the user's words via a structured
// completion. Users may add providers or certifications the discovery never
// found. Any failure leaves the plan unchanged; the user can rephrase.
func (e *Engine) applyPlanFeedback(ctx context.Context, plan *models.ResearchPlan, feedback string) {
	provider, model, err := e.llm.ForTask("extraction")
	if err != nil {
		e.logger.Printf("plan edit unavailable: %v", err)
		return
	}

	prompt := buildPlanEditPrompt(plan, feedback)
	raw, err := provider.Generate(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.0,
		"max_tokens":  2000,
		"system":      "Update a research plan based on user feedback. Users can add new items not in the original list. Return only valid JSON.",
	})
	if err != nil {
		e.logger.Printf("plan edit call failed: %v", err)
		return
	}

	var edit planEdit
	if err := json.Unmarshal([]byte(llm.ExtractFirstJSON(raw)), &edit); err != nil {
		e.logger.Printf("plan edit parse failed: %v", err)
		return
	}

	existingCompetitors := make(map[string]bool)
	for _, c := range plan.Competitors {
		existingCompetitors[c.Name] = true
	}
	for _, nc := range edit.NewCompetitors {
		if nc.Name == "" || existingCompetitors[nc.Name] {
			continue
		}
		ctype := nc.Type
		if ctype == "" {
			ctype = models.ProviderIndustrySpecialist
		}
		plan.Competitors = append(plan.Competitors, models.PlanCompetitor{Name: nc.Name, Type: ctype, URL: nc.URL})
		existingCompetitors[nc.Name] = true
	}

	existingCerts := make(map[string]bool)
	for _, c := range plan.Certifications {
		existingCerts[c.Name] = true
	}
	for _, nc := range edit.NewCertifications {
		if nc.Name == "" || existingCerts[nc.Name] {
			continue
		}
		importance := nc.Importance
		if importance == "" {
			importance = models.CertHighlyRecommended
		}
		plan.Certifications = append(plan.Certifications, models.PlanCertification{Name: nc.Name, Importance: importance})
		existingCerts[nc.Name] = true
	}

	existingAudiences := make(map[string]bool)
	for _, a := range plan.Audiences {
		existingAudiences[a] = true
	}
	for _, na := range edit.NewAudiences {
		if na == "" || existingAudiences[na] {
			continue
		}
		plan.Audiences = append(plan.Audiences, na)
		existingAudiences[na] = true
	}

	if edit.SelectedCompetitors != nil {
		plan.SelectedCompetitors = edit.SelectedCompetitors
	}
	if edit.SelectedCertifications != nil {
		plan.SelectedCertifications = edit.SelectedCertifications
	}
	if edit.SelectedAudience != "" {
		plan.SelectedAudiences = []string{edit.SelectedAudience}
	}
}

func buildPlanEditPrompt(plan *models.ResearchPlan, feedback string) string {
	allCompetitors := make([]string, 0, len(plan.Competitors))
	for _, c := range plan.Competitors {
		allCompetitors = append(allCompetitors, c.Name)
	}
	allCerts := make([]string, 0, len(plan.Certifications))
	for _, c := range plan.Certifications {
		allCerts = append(allCerts, c.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are helping a user EDIT their research plan for %q training courses.\n\n", plan.Industry)
	b.WriteString("This is an EDITING MODE - accept the user's exact words, don't map or interpret them.\n\n")
	b.WriteString("CURRENT PLAN:\n")
	fmt.Fprintf(&b, "- Selected Providers: %s\n", strings.Join(plan.SelectedCompetitors, ", "))
	fmt.Fprintf(&b, "- Selected Certifications: %s\n", strings.Join(plan.SelectedCertifications, ", "))
	fmt.Fprintf(&b, "- Selected Audience: %s\n\n", selectedAudienceLabel(plan))
	b.WriteString("DISCOVERED OPTIONS (suggestions only - user can add anything):\n")
	fmt.Fprintf(&b, "- Providers: %s\n", strings.Join(allCompetitors, ", "))
	fmt.Fprintf(&b, "- Certifications: %s\n", strings.Join(allCerts, ", "))
	fmt.Fprintf(&b, "- Audiences: %s\n\n", strings.Join(plan.Audiences, ", "))
	fmt.Fprintf(&b, "USER'S EDIT REQUEST:\n%q\n\n", feedback)
	b.WriteString(`EDITING RULES:
1. "Remove X" removes X from the selection; "Add X" adds it even if not discovered; "Only use X, Y" sets the selection to exactly those.
2. The same rules apply to certifications.
3. For the audience, use the user's EXACT words. Do not map or translate them.
4. Items the user adds that are not in the discovered lists go into new_competitors / new_certifications / new_audiences.
5. If a field is unchanged, return its current value.

Return ONLY this JSON:
{
  "selected_competitors": ["exact list the user wants"],
  "selected_certifications": ["exact list the user wants"],
  "selected_audience": "user's exact words for the audience",
  "new_competitors": [{"name": "Name", "type": "industry_specialist|certification_body|trade_school|bootcamp|mooc", "url": ""}],
  "new_certifications": [{"name": "Name", "importance": "required|highly_recommended|optional"}],
  "new_audiences": ["segment name"]
}`)
	return b.String()
}
