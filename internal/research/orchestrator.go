package research

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/curricula/config"
	"github.com/mohammad-safakhou/curricula/internal/stream"
	"github.com/mohammad-safakhou/curricula/internal/telemetry"
	"github.com/mohammad-safakhou/curricula/models"
)

// Researcher runs one budgeted deep-research call. *DeepResearcher satisfies
// it; tests substitute a stub.
type Researcher interface {
	Run(ctx context.Context, budget config.PhaseBudget, system, prompt string, em Emitter) (Result, error)
}

// Orchestrator walks one session through the guided research pipeline:
// clarifying questions, then competitive, expertise and sentiment research,
// then the final synthesis. Phases are strictly linear; each pauses for the
// user, who either signals continue or asks for a refinement that stays in
// the phase. One Orchestrator serves one session and is not safe for
// concurrent turns; the chat surface serializes turns per session.
type Orchestrator struct {
	deep      Researcher
	cfg       config.ResearchConfig
	telemetry *telemetry.Telemetry
	logger    *log.Logger

	state models.ResearchState
	index *FindingsIndex
}

// NewOrchestrator builds a fresh orchestrator in the initial phase. The
// telemetry handle may be nil.
func NewOrchestrator(deep Researcher, cfg config.ResearchConfig, tel *telemetry.Telemetry) *Orchestrator {
	o := &Orchestrator{
		deep:      deep,
		cfg:       cfg,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags),
		state: models.ResearchState{
			Phase:    models.PhaseInitial,
			Findings: make(map[models.ResearchPhase]string),
		},
	}
	if idx, err := NewFindingsIndex(); err == nil {
		o.index = idx
	} else {
		o.logger.Printf("findings index unavailable, refinement falls back to prefix context: %v", err)
	}
	return o
}

// State returns a copy of the serializable orchestrator state.
func (o *Orchestrator) State() models.ResearchState {
	st := o.state
	st.Clarifications = append([]string(nil), o.state.Clarifications...)
	st.History = append([]string(nil), o.state.History...)
	st.Findings = make(map[models.ResearchPhase]string, len(o.state.Findings))
	for k, v := range o.state.Findings {
		st.Findings[k] = v
	}
	return st
}

// Restore replaces the orchestrator state with a saved snapshot and rebuilds
// the findings index from it. Unknown phases reset to initial so a corrupt
// snapshot cannot wedge the session.
func (o *Orchestrator) Restore(st models.ResearchState) {
	switch st.Phase {
	case models.PhaseInitial, models.PhaseClarification, models.PhaseCompetitive,
		models.PhaseExpertise, models.PhaseSentiment, models.PhaseSynthesis, models.PhaseComplete:
	default:
		st.Phase = models.PhaseInitial
	}
	if st.Findings == nil {
		st.Findings = make(map[models.ResearchPhase]string)
	}
	o.state = st
	if o.index != nil {
		for phase, text := range st.Findings {
			if err := o.index.Add(string(phase), text); err != nil {
				o.logger.Printf("reindex %s findings: %v", phase, err)
			}
		}
	}
}

// Topic returns the research topic, empty until the first message arrives.
func (o *Orchestrator) Topic() string { return o.state.Topic }

// Phase returns the current pipeline phase.
func (o *Orchestrator) Phase() models.ResearchPhase { return o.state.Phase }

// FinalReport returns the synthesis findings, empty until synthesis ran.
func (o *Orchestrator) FinalReport() string {
	return o.state.Findings[models.PhaseSynthesis]
}

// ProcessMessage advances the pipeline by one user turn, publishing progress
// and results to em. The phase decides what the message means: a topic, a
// clarification answer, a continue-signal or refinement feedback.
func (o *Orchestrator) ProcessMessage(ctx context.Context, message string, em Emitter) error {
	switch o.state.Phase {
	case models.PhaseInitial:
		o.state.Topic = message
		o.state.Phase = models.PhaseClarification
		return o.runClarify(ctx, em)

	case models.PhaseClarification:
		o.state.Clarifications = append(o.state.Clarifications, message)
		em.Publish(ctx, stream.Status("Starting **Phase 1: Competitive Research**..."))
		return o.runCompetitive(ctx, em)

	case models.PhaseCompetitive, models.PhaseExpertise, models.PhaseSentiment:
		return o.handleFeedback(ctx, o.state.Phase, message, em)

	case models.PhaseSynthesis:
		em.Publish(ctx, stream.Status("Processing your feedback on the curriculum..."))
		return o.refine(ctx, models.PhaseSynthesis, message, em)

	default:
		// Completed or unknown: treat the message as a fresh topic.
		o.state = models.ResearchState{
			Topic:    message,
			Phase:    models.PhaseClarification,
			Findings: make(map[models.ResearchPhase]string),
		}
		return o.runClarify(ctx, em)
	}
}

// handleFeedback routes a paused phase: continue-signals advance the
// pipeline, anything else refines the current phase in place.
func (o *Orchestrator) handleFeedback(ctx context.Context, phase models.ResearchPhase, message string, em Emitter) error {
	if !wantsContinue(phase, message) {
		return o.refine(ctx, phase, message, em)
	}
	o.state.History = append(o.state.History, string(phase))
	switch phase {
	case models.PhaseCompetitive:
		em.Publish(ctx, stream.Status("Moving to **Phase 2: Recent Industry Expertise**..."))
		return o.runExpertise(ctx, em)
	case models.PhaseExpertise:
		em.Publish(ctx, stream.Status("Moving to **Phase 3: Consumer Sentiment**..."))
		return o.runSentiment(ctx, em)
	case models.PhaseSentiment:
		em.Publish(ctx, stream.Status("Generating **Final Curriculum Synthesis**..."))
		return o.runSynthesis(ctx, em)
	}
	return fmt.Errorf("no phase follows %s", phase)
}

func (o *Orchestrator) runClarify(ctx context.Context, em Emitter) error {
	o.state.AwaitingFeedback = false
	em.Publish(ctx, stream.Status("Understanding your curriculum needs..."))

	res, err := o.deep.Run(ctx, o.budget("clarify"), clarifySystem, clarifyPrompt(o.state.Topic), em)
	o.state.TotalSearches += res.Searches
	if err != nil {
		return fmt.Errorf("clarifying questions: %w", err)
	}

	o.state.AwaitingFeedback = true
	em.Publish(ctx, stream.Clarification(res.Findings, string(models.PhaseClarification)))
	return nil
}

func (o *Orchestrator) runCompetitive(ctx context.Context, em Emitter) error {
	o.begin(ctx, models.PhaseCompetitive, em, 1, 3,
		"Competitive Research", "Finding online courses, pricing, certifications, and lesson lists")

	res, err := o.deep.Run(ctx, o.budget("competitive"), competitiveSystem,
		competitivePrompt(o.state.Topic, o.userContext()), em)
	return o.land(ctx, models.PhaseCompetitive, res, err, competitiveFeedbackRequest, em)
}

func (o *Orchestrator) runExpertise(ctx context.Context, em Emitter) error {
	o.begin(ctx, models.PhaseExpertise, em, 2, 3,
		"Recent Industry Expertise", "Finding podcasts, blogs, publications, and emerging trends")

	res, err := o.deep.Run(ctx, o.budget("expertise"), expertiseSystem,
		expertisePrompt(o.state.Topic, o.userContext()), em)
	return o.land(ctx, models.PhaseExpertise, res, err, expertiseFeedbackRequest, em)
}

func (o *Orchestrator) runSentiment(ctx context.Context, em Emitter) error {
	o.begin(ctx, models.PhaseSentiment, em, 3, 3,
		"Consumer Sentiment", "Analyzing Reddit, Quora, forums for common questions and pain points")

	res, err := o.deep.Run(ctx, o.budget("sentiment"), sentimentSystem,
		sentimentPrompt(o.state.Topic, o.userContext()), em)
	return o.land(ctx, models.PhaseSentiment, res, err, sentimentFeedbackRequest, em)
}

// runSynthesis composes the three findings blocks into the master inventory.
// It does not pause for feedback: the pipeline lands in the complete phase
// and later messages refine the synthesis findings directly.
func (o *Orchestrator) runSynthesis(ctx context.Context, em Emitter) error {
	o.begin(ctx, models.PhaseSynthesis, em, 4, 4,
		"Final Curriculum Synthesis", "Combining all research into comprehensive curriculum")

	prompt := synthesisPrompt(o.state.Topic,
		o.state.Findings[models.PhaseCompetitive],
		o.state.Findings[models.PhaseExpertise],
		o.state.Findings[models.PhaseSentiment])

	res, err := o.deep.Run(ctx, o.budget("synthesis"), synthesisSystem, prompt, em)
	o.state.TotalSearches += res.Searches
	if err != nil {
		o.recordPhase(models.PhaseSynthesis, false)
		return fmt.Errorf("synthesis: %w", err)
	}

	o.state.Findings[models.PhaseSynthesis] = res.Findings
	o.state.Phase = models.PhaseComplete
	o.state.AwaitingFeedback = false
	o.addToIndex(models.PhaseSynthesis, res.Findings)
	o.recordPhase(models.PhaseSynthesis, true)
	o.logger.Printf("synthesis complete: %d chars, %d total searches", len(res.Findings), o.state.TotalSearches)

	em.Publish(ctx, stream.ResearchComplete(res.Findings, o.state.Topic))
	em.Publish(ctx, stream.Completion(completionMessage))
	return nil
}

// refine re-runs a bounded research call inside the current phase and
// appends the result to the phase's findings. Existing findings are never
// replaced.
func (o *Orchestrator) refine(ctx context.Context, phase models.ResearchPhase, feedback string, em Emitter) error {
	current := o.state.Findings[phase]
	res, err := o.deep.Run(ctx, o.budget("refine"), refineSystem,
		refinePrompt(phase, o.state.Topic, feedback, o.refineContext(phase, feedback, current)), em)
	o.state.TotalSearches += res.Searches
	if err != nil {
		return fmt.Errorf("refine %s: %w", phase, err)
	}

	if res.Findings != "" {
		if current == "" {
			o.state.Findings[phase] = res.Findings
		} else {
			o.state.Findings[phase] = current + "\n\n---\n\n" + res.Findings
		}
		o.addToIndex(phase, res.Findings)
	}

	em.Publish(ctx, stream.Refinement(string(phase)))
	o.state.AwaitingFeedback = true
	em.Publish(ctx, stream.FeedbackRequest(refineFeedbackRequest(phase), string(phase)))
	return nil
}

// refineContext selects what the refine prompt quotes: the findings blocks
// the index scores against the feedback, or a plain prefix when the index is
// unavailable or silent. A covered subject gets an extend-don't-repeat note.
func (o *Orchestrator) refineContext(phase models.ResearchPhase, feedback, current string) string {
	if o.index != nil {
		if blocks := o.index.Relevant(feedback, 6); len(blocks) > 0 {
			context := strings.Join(blocks, "\n\n")
			if o.index.Covers(feedback) {
				context = "(These findings already touch on the request - extend them with new detail rather than restating.)\n\n" + context
			}
			return clip(context, refineContextCap)
		}
	}
	return clip(current, refineContextCap)
}

// begin marks the phase started and announces it.
func (o *Orchestrator) begin(ctx context.Context, phase models.ResearchPhase, em Emitter, number, total int, title, description string) {
	o.state.Phase = phase
	o.state.AwaitingFeedback = false
	o.logger.Printf("topic %q: starting %s research", o.state.Topic, phase)
	em.Publish(ctx, stream.PhaseStart(string(phase), number, total, title, description))
}

// land stores a finished phase's findings and pauses for feedback.
func (o *Orchestrator) land(ctx context.Context, phase models.ResearchPhase, res Result, err error, feedbackPrompt string, em Emitter) error {
	o.state.TotalSearches += res.Searches
	if err != nil {
		o.recordPhase(phase, false)
		return fmt.Errorf("%s research: %w", phase, err)
	}

	o.state.Findings[phase] = res.Findings
	o.addToIndex(phase, res.Findings)
	o.recordPhase(phase, true)
	o.logger.Printf("%s phase complete: %d chars, %d searches", phase, len(res.Findings), res.Searches)

	em.Publish(ctx, stream.PhaseComplete(string(phase), res.Searches))
	o.state.AwaitingFeedback = true
	em.Publish(ctx, stream.FeedbackRequest(feedbackPrompt, string(phase)))
	return nil
}

// userContext joins the clarification answers collected so far.
func (o *Orchestrator) userContext() string {
	return strings.Join(o.state.Clarifications, "\n")
}

func (o *Orchestrator) budget(name string) config.PhaseBudget {
	if b, ok := o.cfg.Phases[name]; ok && b.MaxTokens > 0 {
		return b
	}
	// Sane floor when a phase is missing from config.
	return config.PhaseBudget{MaxSearches: 15, ThinkingBudget: 8000, MaxTokens: 15000, Passes: 1}
}

func (o *Orchestrator) addToIndex(phase models.ResearchPhase, text string) {
	if o.index == nil || text == "" {
		return
	}
	if err := o.index.Add(string(phase), text); err != nil {
		o.logger.Printf("index %s findings: %v", phase, err)
	}
}

func (o *Orchestrator) recordPhase(phase models.ResearchPhase, success bool) {
	if o.telemetry != nil {
		o.telemetry.RecordPhase(string(phase), success)
	}
}

// Close releases the findings index.
func (o *Orchestrator) Close() error {
	if o.index == nil {
		return nil
	}
	return o.index.Close()
}
