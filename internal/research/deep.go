package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/curricula/config"
	"github.com/mohammad-safakhou/curricula/internal/llm"
	"github.com/mohammad-safakhou/curricula/internal/stream"
	"github.com/mohammad-safakhou/curricula/internal/telemetry"
)

// Emitter receives user-visible events while research runs. *stream.Mux
// satisfies it.
type Emitter interface {
	Publish(ctx context.Context, ev stream.Event)
}

// searchBuffer pads each pass's search allowance so a pass closing out a
// table is not cut off one lookup short.
const searchBuffer = 10

// Result is the outcome of one deep-research call, all passes included.
type Result struct {
	Findings     string
	Searches     int
	InputTokens  int64
	OutputTokens int64
}

// modelRouter is the slice of *llm.Router the researcher uses.
type modelRouter interface {
	ResearcherForTask(task string) (llm.Researcher, string, error)
	ForModel(model string) (llm.Provider, string, error)
}

// DeepResearcher issues long-form research calls against the routed research
// model: server-side web search interleaved with extended thinking, streamed
// back as events. A budget with Passes > 1 runs sequential rounds where each
// later round sees the previous rounds' findings and is told to fill gaps
// rather than repeat them.
type DeepResearcher struct {
	router    modelRouter
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewDeepResearcher wires the researcher to the LLM router. The telemetry
// handle may be nil.
func NewDeepResearcher(router *llm.Router, tel *telemetry.Telemetry) *DeepResearcher {
	return &DeepResearcher{
		router:    router,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags),
	}
}

// Run executes one research call under the given budget. Thinking, text and
// search events are forwarded to em as they arrive; the accumulated findings
// text and the cumulative search count come back in the Result. The search
// counter keeps counting across passes so callers see one monotonic series.
func (d *DeepResearcher) Run(ctx context.Context, budget config.PhaseBudget, system, prompt string, em Emitter) (Result, error) {
	researcher, model, err := d.router.ResearcherForTask("research")
	if err != nil {
		return Result{}, err
	}

	passes := budget.Passes
	if passes < 1 {
		passes = 1
	}
	perPass := budget.MaxSearches
	if passes > 1 {
		perPass = budget.MaxSearches/passes + searchBuffer
	}

	var (
		res      Result
		sections []string
	)
	for pass := 0; pass < passes; pass++ {
		current := prompt
		if passes > 1 {
			if pass == 0 {
				current = prompt + broadPassSuffix
			} else {
				current = gapFillPrompt(prompt, sections)
			}
			em.Publish(ctx, stream.Statusf("Research pass %d/%d: %s", pass+1, passes, passDescription(pass)))
		}

		req := llm.ResearchRequest{
			System:         system,
			Prompt:         current,
			Model:          model,
			MaxTokens:      budget.MaxTokens,
			ThinkingBudget: budget.ThinkingBudget,
			MaxSearches:    perPass,
		}
		start := time.Now()
		inBefore, outBefore := res.InputTokens, res.OutputTokens
		section, err := d.consume(ctx, researcher, req, &res, em)
		if section != "" {
			sections = append(sections, section)
		}
		d.record(model, res.InputTokens-inBefore, res.OutputTokens-outBefore, time.Since(start), err == nil)
		if err != nil {
			res.Findings = strings.Join(sections, "\n\n")
			return res, err
		}
		d.logger.Printf("pass %d/%d done: %d chars, %d searches so far", pass+1, passes, len(section), res.Searches)
	}
	res.Findings = strings.Join(sections, "\n\n")
	return res, nil
}

// depthBudgets maps the one-shot research depths to budgets, mirroring the
// quick/standard/comprehensive/exhaustive modes of the chat pipeline.
var depthBudgets = map[string]config.PhaseBudget{
	"quick":         {MaxSearches: 20, ThinkingBudget: 8000, MaxTokens: 16000, Passes: 1},
	"standard":      {MaxSearches: 40, ThinkingBudget: 10000, MaxTokens: 20000, Passes: 2},
	"comprehensive": {MaxSearches: 60, ThinkingBudget: 12000, MaxTokens: 24000, Passes: 3},
	"exhaustive":    {MaxSearches: 100, ThinkingBudget: 16000, MaxTokens: 32000, Passes: 4},
}

// Adaptive runs one research call with the budget implied by depth. Unknown
// depths fall back to comprehensive.
func (d *DeepResearcher) Adaptive(ctx context.Context, depth, system, prompt string, em Emitter) (Result, error) {
	budget, ok := depthBudgets[depth]
	if !ok {
		budget = depthBudgets["comprehensive"]
	}
	em.Publish(ctx, stream.Statusf("Research depth %s: up to %d searches over %d passes", depth, budget.MaxSearches, budget.Passes))
	return d.Run(ctx, budget, system, prompt, em)
}

// consume drains one research stream, forwarding events and accumulating the
// text. Search numbering continues from res so multi-pass calls emit one
// monotonic series.
func (d *DeepResearcher) consume(ctx context.Context, r llm.Researcher, req llm.ResearchRequest, res *Result, em Emitter) (string, error) {
	events, err := r.ResearchStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("research stream: %w", err)
	}

	var text strings.Builder
	for ev := range events {
		if err := ctx.Err(); err != nil {
			return text.String(), err
		}
		switch ev.Kind {
		case llm.ResearchThinking:
			em.Publish(ctx, stream.Thinking(ev.Text))
		case llm.ResearchText:
			text.WriteString(ev.Text)
			em.Publish(ctx, stream.Text(ev.Text))
		case llm.ResearchToolStart:
			res.Searches++
			em.Publish(ctx, stream.Search(res.Searches))
		case llm.ResearchComplete:
			res.InputTokens += ev.InputTokens
			res.OutputTokens += ev.OutputTokens
			em.Publish(ctx, stream.SearchComplete(res.Searches))
		case llm.ResearchError:
			return text.String(), fmt.Errorf("research stream: %s", ev.Text)
		}
	}
	return text.String(), ctx.Err()
}

// record books one pass's token usage and cost against the research model.
func (d *DeepResearcher) record(model string, inputTokens, outputTokens int64, dur time.Duration, success bool) {
	if d.telemetry == nil {
		return
	}
	var cost float64
	if p, _, err := d.router.ForModel(model); err == nil {
		cost = p.CalculateCost(inputTokens, outputTokens, model)
	}
	d.telemetry.RecordLLM(telemetry.LLMEvent{
		Model:        model,
		Operation:    "research",
		Duration:     dur,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
		Success:      success,
	})
}

// passDescriptions label the multi-pass rounds for progress events.
var passDescriptions = []string{
	"Broad exploration - surveying the landscape",
	"Gap analysis - filling missing information",
	"Deep dive - specific details and verification",
	"Final sweep - comprehensive coverage check",
}

func passDescription(pass int) string {
	if pass >= len(passDescriptions) {
		pass = len(passDescriptions) - 1
	}
	return passDescriptions[pass]
}
