package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/curricula/config"
	"github.com/mohammad-safakhou/curricula/internal/agent"
	"github.com/mohammad-safakhou/curricula/internal/research"
	"github.com/mohammad-safakhou/curricula/internal/session"
	"github.com/mohammad-safakhou/curricula/internal/stream"
	"github.com/mohammad-safakhou/curricula/internal/telemetry"
	"github.com/mohammad-safakhou/curricula/models"
)

// Chat modes.
const (
	ModeAgent        = "agent"
	ModeDeepResearch = "deep_research"
)

const maxTitleLen = 50

// agentRunner is the slice of the agent engine the chat handler drives.
type agentRunner interface {
	RunTurn(ctx context.Context, state *models.ConversationState, message string, em agent.Emitter) (string, error)
}

// ChatHandler serves the conversational endpoint. Everything turn-scoped is
// built inside the request: the multiplexer, and in research mode an
// orchestrator restored from the session store and persisted back when the
// turn ends. No per-session object survives between requests.
type ChatHandler struct {
	Engine      agentRunner
	Deep        research.Researcher
	Store       session.Store
	Research    config.ResearchConfig
	Stream      config.StreamConfig
	TurnTimeout time.Duration
	Telemetry   *telemetry.Telemetry
	Logger      *log.Logger
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
}

// chat runs one turn and streams its events as SSE. The turn shares the
// request's cancellation: a dropped client connection aborts research
// mid-flight, and whatever state the turn reached is not saved.
func (h *ChatHandler) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeDeepResearch
	}
	if mode != ModeAgent && mode != ModeDeepResearch {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
	}

	ctx := c.Request().Context()
	userID, _ := c.Get("user_id").(string)

	var (
		sess  session.Session
		isNew bool
		err   error
	)
	if req.SessionID == "" {
		sess, err = h.Store.Create(ctx, userID, req.ClientID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		isNew = true
	} else {
		sess, err = h.Store.Get(ctx, req.SessionID)
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if userID != "" && sess.UserID != "" && sess.UserID != userID {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
	}

	turnCtx, cancel := h.turnContext(ctx)
	defer cancel()

	mux := stream.NewMux(h.Stream, h.Telemetry)
	if h.Telemetry != nil {
		h.Telemetry.StreamOpened()
		defer h.Telemetry.StreamClosed()
	}

	go h.runTurn(turnCtx, mux, sess, isNew, mode, req.Message)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	err = mux.Consume(turnCtx, func(ev stream.Event) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(res, "data: %s\n\n", payload); err != nil {
			return err
		}
		res.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (h *ChatHandler) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.TurnTimeout > 0 {
		return context.WithTimeout(ctx, h.TurnTimeout)
	}
	return context.WithCancel(ctx)
}

// runTurn is the step producer: it loads state, runs the selected engine,
// persists the result and terminates the stream. All user-visible progress
// goes through the recorder into the multiplexer.
func (h *ChatHandler) runTurn(ctx context.Context, mux *stream.Mux, sess session.Session, isNew bool, mode, message string) {
	if isNew {
		mux.Publish(ctx, stream.Session(sess.ID))
	}

	st, err := h.Store.LoadState(ctx, sess.ID)
	if err != nil {
		mux.Fail(ctx, sess.ID, fmt.Errorf("load session state: %w", err))
		return
	}

	if _, err := h.Store.AppendMessage(ctx, session.Message{
		SessionID: sess.ID,
		Role:      string(models.RoleUser),
		Content:   message,
	}); err != nil {
		h.logf("session %s: record user message: %v", sess.ID, err)
	}

	rec := &turnRecorder{inner: mux}

	var reply string
	switch mode {
	case ModeAgent:
		reply, err = h.agentTurn(ctx, &st, sess.ID, message, rec)
	default:
		err = h.researchTurn(ctx, &st, message, rec)
		reply = researchTranscript(st.Research, rec.Last())
	}
	if err != nil {
		h.logf("session %s: turn failed: %v", sess.ID, err)
		mux.Fail(ctx, sess.ID, err)
		return
	}

	if err := h.Store.SaveState(ctx, sess.ID, st); err != nil {
		mux.Fail(ctx, sess.ID, fmt.Errorf("save session state: %w", err))
		return
	}
	if reply != "" {
		if _, err := h.Store.AppendMessage(ctx, session.Message{
			SessionID: sess.ID,
			Role:      string(models.RoleAssistant),
			Content:   reply,
		}); err != nil {
			h.logf("session %s: record assistant message: %v", sess.ID, err)
		}
	}
	h.syncMetadata(ctx, sess, st)

	mux.Finish(ctx, sess.ID)
}

// agentTurn runs the conversational state machine. The engine returns the
// reply without emitting it, so the handler publishes it with the kind the
// turn's outcome calls for.
func (h *ChatHandler) agentTurn(ctx context.Context, st *session.State, sessionID, message string, em *turnRecorder) (string, error) {
	state := st.Conversation
	if state == nil {
		state = &models.ConversationState{SessionID: sessionID}
	}

	reply, err := h.Engine.RunTurn(ctx, state, message, em)
	if err != nil {
		return "", err
	}
	st.Conversation = state

	if reply != "" {
		if state.AwaitingClarification || state.IsClarifyingQuestion {
			em.Publish(ctx, stream.Clarification(reply, "planning"))
		} else {
			em.Publish(ctx, stream.Completion(reply))
		}
	}
	return reply, nil
}

// researchTurn advances the deep-research pipeline by one message. The
// orchestrator lives only for this turn; its state is serialized back into
// the session afterwards.
func (h *ChatHandler) researchTurn(ctx context.Context, st *session.State, message string, em *turnRecorder) error {
	orch := research.NewOrchestrator(h.Deep, h.Research, h.Telemetry)
	defer orch.Close()

	if st.Research != nil {
		orch.Restore(*st.Research)
	}
	if err := orch.ProcessMessage(ctx, message, em); err != nil {
		return err
	}

	rs := orch.State()
	st.Research = &rs
	return nil
}

// researchTranscript picks the assistant text recorded for a research turn:
// the final report once complete, the phase's findings while paused, or the
// streamed content (clarifying questions) when no findings exist yet.
func researchTranscript(rs *models.ResearchState, fallback string) string {
	if rs == nil {
		return fallback
	}
	if rs.Phase == models.PhaseComplete {
		if report := rs.Findings[models.PhaseSynthesis]; report != "" {
			return report
		}
	}
	if f := rs.Findings[rs.Phase]; f != "" {
		return f
	}
	return fallback
}

// syncMetadata keeps listing columns in step with the turn: the topic fills
// the industry column, new sessions take a truncated topic as their title,
// and completed research flips the status (and back, when a fresh topic
// restarts a completed session).
func (h *ChatHandler) syncMetadata(ctx context.Context, sess session.Session, st session.State) {
	topic := ""
	if st.Research != nil {
		topic = st.Research.Topic
	}
	if topic == "" && st.Conversation != nil {
		topic = st.Conversation.Industry
	}

	var upd session.Update
	if topic != "" && topic != sess.Industry {
		upd.Industry = session.String(topic)
	}
	if sess.Title == "" && topic != "" {
		upd.Title = session.String(truncateTitle(topic, maxTitleLen))
	}
	if st.Research != nil {
		done := st.Research.Phase == models.PhaseComplete
		if done && sess.Status != session.StatusCompleted {
			upd.Status = session.String(session.StatusCompleted)
		} else if !done && sess.Status == session.StatusCompleted {
			upd.Status = session.String(session.StatusActive)
		}
	}
	if upd == (session.Update{}) {
		return
	}
	if err := h.Store.Update(ctx, sess.ID, upd); err != nil {
		h.logf("session %s: update metadata: %v", sess.ID, err)
	}
}

func (h *ChatHandler) logf(format string, args ...interface{}) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}

// truncateTitle caps a title at n runes, marking the cut with an ellipsis.
func truncateTitle(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}

// turnRecorder tees events through to the multiplexer while remembering the
// last assistant-facing content. Clarifying questions exist only in the
// stream, so the transcript row is recovered from here.
type turnRecorder struct {
	inner *stream.Mux

	mu   sync.Mutex
	last string
}

func (r *turnRecorder) Publish(ctx context.Context, ev stream.Event) {
	r.inner.Publish(ctx, ev)

	var content string
	switch ev.Kind {
	case stream.KindClarification, stream.KindFeedbackRequest, stream.KindComplete:
		content = ev.Content
	case stream.KindResearchComplete:
		content = ev.Report
	}
	if content != "" {
		r.mu.Lock()
		r.last = content
		r.mu.Unlock()
	}
}

// Last returns the most recent assistant-facing content published this turn.
func (r *turnRecorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
