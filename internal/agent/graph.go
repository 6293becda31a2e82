package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/curricula/config"
	"github.com/mohammad-safakhou/curricula/internal/llm"
	"github.com/mohammad-safakhou/curricula/internal/stream"
	"github.com/mohammad-safakhou/curricula/internal/telemetry"
	"github.com/mohammad-safakhou/curricula/internal/tools"
	"github.com/mohammad-safakhou/curricula/internal/tools/websearch"
	"github.com/mohammad-safakhou/curricula/models"
)

var engineTracer trace.Tracer = otel.Tracer("curricula/internal/agent")

// Node identifies one state of the conversational research machine.
type Node string

const (
	NodeEntry         Node = "entry"
	NodeClarification Node = "clarification"
	NodeReasoning     Node = "reasoning"
	NodeToolExecutor  Node = "tool_executor"
	NodeReflection    Node = "reflection"
	NodeResponse      Node = "response"
	NodeEnd           Node = "end"
)

// maxTurnPasses bounds node transitions within one turn. The ceilings end a
// turn long before this; the bound only guards against routing bugs.
const maxTurnPasses = 50

// Emitter receives user-visible events while a turn runs. *stream.Mux
// satisfies it; a nil Emitter silences progress.
type Emitter interface {
	Publish(ctx context.Context, ev stream.Event)
}

// Deps carries the collaborators an Engine is built from.
type Deps struct {
	Config    config.AgentConfig
	LLM       *llm.Router
	Tools     *tools.Registry
	Searcher  websearch.Searcher
	Telemetry *telemetry.Telemetry
	Logger    *log.Logger
}

// Engine drives the conversational state machine. One Engine is shared by
// all sessions; per-session locks keep concurrent turns from interleaving
// writes to the same ConversationState.
type Engine struct {
	cfg       config.AgentConfig
	llm       *llm.Router
	tools     *tools.Registry
	searcher  websearch.Searcher
	telemetry *telemetry.Telemetry
	logger    *log.Logger

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock serializes turns for one session. The refcount covers holders
// and waiters so the janitor never reaps a lock someone is queued on.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewEngine wires the state machine with its collaborators.
func NewEngine(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[AGENT] ", log.LstdFlags)
	}
	return &Engine{
		cfg:       deps.Config,
		llm:       deps.LLM,
		tools:     deps.Tools,
		searcher:  deps.Searcher,
		telemetry: deps.Telemetry,
		logger:    logger,
		locks:     make(map[string]*sessionLock),
	}
}

// lockSession returns the per-session turn mutex, creating it on first use.
func (e *Engine) lockSession(sessionID string) func() {
	e.mu.Lock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		e.locks[sessionID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		e.mu.Unlock()
	}
}

// PruneIdleLocks drops lock entries for sessions with no turn running or
// queued and reports how many were reclaimed. Deleted sessions and long-idle
// ones otherwise accumulate entries forever.
func (e *Engine) PruneIdleLocks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, l := range e.locks {
		if l.refs == 0 {
			delete(e.locks, id)
			n++
		}
	}
	return n
}

func (e *Engine) emit(ctx context.Context, em Emitter, ev stream.Event) {
	if em != nil {
		em.Publish(ctx, ev)
	}
}

func (e *Engine) progress(ctx context.Context, em Emitter) tools.ProgressFunc {
	if em == nil {
		return nil
	}
	return func(message string) {
		em.Publish(ctx, stream.Status(message))
	}
}

// RunTurn appends the user message to the state, runs the state machine to
// completion and returns the assistant's reply. The state is mutated in
// place; callers persist it afterwards. Exactly one turn runs per session
// at a time.
func (e *Engine) RunTurn(ctx context.Context, state *models.ConversationState, message string, em Emitter) (string, error) {
	unlock := e.lockSession(state.SessionID)
	defer unlock()

	ctx, span := engineTracer.Start(ctx, "agent.turn",
		trace.WithAttributes(
			attribute.String("session.id", state.SessionID),
			attribute.String("agent.industry", state.Industry),
		))
	defer span.End()

	start := time.Now()
	startToolCalls := state.ToolCallCount

	state.Messages = append(state.Messages, models.Message{
		Role:      models.RoleUser,
		Content:   message,
		CreatedAt: time.Now(),
	})
	state.CurrentToolCall = nil
	state.CurrentToolResult = nil
	state.IsClarifyingQuestion = false
	state.PendingResponse = ""

	reply, err := e.run(ctx, state, em)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("turn.tool_calls", state.ToolCallCount-startToolCalls))
		span.SetStatus(codes.Ok, "completed")
	}

	if e.telemetry != nil {
		e.telemetry.RecordTurn(telemetry.TurnEvent{
			SessionID: state.SessionID,
			Duration:  time.Since(start),
			ToolCalls: state.ToolCallCount - startToolCalls,
			Success:   err == nil,
		})
	}
	return reply, err
}

// run walks the graph from Entry to End. Every hop goes through a route
// function so ceilings and floors are enforced here, not inside nodes.
func (e *Engine) run(ctx context.Context, state *models.ConversationState, em Emitter) (string, error) {
	e.runEntry(state)
	node := e.routeEntry(state)

	for pass := 0; pass < maxTurnPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		e.logger.Printf("session %s: -> %s", state.SessionID, node)

		switch node {
		case NodeClarification:
			reply, next, err := e.runClarification(ctx, state, em)
			if err != nil {
				return "", fmt.Errorf("clarification: %w", err)
			}
			if next == NodeEnd {
				e.appendAssistant(state, reply)
				return reply, nil
			}
			node = next

		case NodeReasoning:
			hint := e.runReasoning(ctx, state, em)
			node = e.routeAfterReasoning(state, hint)

		case NodeToolExecutor:
			e.runToolExecutor(ctx, state, em)
			node = NodeReflection

		case NodeReflection:
			verdict := e.runReflection(ctx, state, em)
			node = e.routeAfterReflection(state, verdict)

		case NodeResponse:
			reply := e.runResponse(state)
			e.appendAssistant(state, reply)
			return reply, nil

		default:
			return "", fmt.Errorf("unknown node %q", node)
		}
	}
	return "", fmt.Errorf("turn exceeded %d passes without reaching a response", maxTurnPasses)
}

// runEntry resets stale plan state when the user switches to a brand-new
// topic mid-conversation. Messages are kept; plan, clarification progress
// and accumulated data are discarded so the old topic cannot leak into the
// new report.
func (e *Engine) runEntry(state *models.ConversationState) {
	message := state.LastUserMessage()
	if !IsNewTopic(message, state.Industry) {
		return
	}
	if state.ResearchPlan == nil && state.Industry == "" {
		// First contact: nothing to reset, discovery handles it.
		return
	}
	topic := CleanTopic(message)
	e.logger.Printf("session %s: new topic %q detected, resetting plan state", state.SessionID, topic)
	state.ResetForNewTopic(topic)
}

// routeEntry picks the first node of a turn. Collected research wins over
// everything else; an unconfirmed or missing plan routes back to planning.
func (e *Engine) routeEntry(state *models.ConversationState) Node {
	stage := state.Clarification.Stage

	if state.ResearchData.PrimaryCount() > 0 {
		return NodeReasoning
	}
	if state.ResearchPlan != nil && state.ResearchPlan.IsConfirmed {
		return NodeReasoning
	}
	if stage == models.StageConfirmed {
		return NodeReasoning
	}
	if state.AwaitingClarification &&
		(stage == models.StagePresentingPlan || stage == models.StageRefining || stage == models.StageDiscovery) {
		return NodeClarification
	}
	if state.ToolCallCount > 0 {
		return NodeReasoning
	}
	if state.ResearchPlan == nil || !state.ResearchPlan.IsConfirmed {
		return NodeClarification
	}
	return NodeReasoning
}

// routeAfterReasoning validates the reasoning hint. A tool call only
// proceeds when one was actually prepared and the ceilings have room.
func (e *Engine) routeAfterReasoning(state *models.ConversationState, hint Node) Node {
	if hint != NodeToolExecutor {
		return NodeResponse
	}
	if state.CurrentToolCall == nil {
		return NodeResponse
	}
	if state.ToolCallCount >= e.cfg.ToolCallCeiling {
		e.logger.Printf("session %s: tool call ceiling (%d) reached, forcing response", state.SessionID, e.cfg.ToolCallCeiling)
		return NodeResponse
	}
	if state.RetryCount >= e.cfg.RetryCeiling {
		e.logger.Printf("session %s: retry ceiling (%d) reached, forcing response", state.SessionID, e.cfg.RetryCeiling)
		return NodeResponse
	}
	return NodeToolExecutor
}

// routeAfterReflection applies the quantitative floors and safety ceilings
// before considering the model's own sufficiency verdict. The verdict is
// untrusted input: it can only extend research while the hard limits allow.
func (e *Engine) routeAfterReflection(state *models.ConversationState, verdict reflectionVerdict) Node {
	if state.ToolCallCount >= e.cfg.ToolCallCeiling {
		e.logger.Printf("session %s: tool call ceiling (%d) reached after reflection", state.SessionID, e.cfg.ToolCallCeiling)
		return NodeResponse
	}
	if state.RetryCount >= e.cfg.RetryCeiling {
		e.logger.Printf("session %s: retry ceiling (%d) reached after reflection", state.SessionID, e.cfg.RetryCeiling)
		return NodeResponse
	}
	if state.ResearchData.PrimaryCount() >= e.cfg.SufficiencyFloor {
		return NodeResponse
	}
	if verdict.IsValid && verdict.IsSufficient {
		return NodeResponse
	}
	return NodeReasoning
}

func (e *Engine) appendAssistant(state *models.ConversationState, content string) {
	state.Messages = append(state.Messages, models.Message{
		Role:      models.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	})
}
