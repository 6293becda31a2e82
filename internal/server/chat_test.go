package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/curricula/config"
	"github.com/mohammad-safakhou/curricula/internal/agent"
	"github.com/mohammad-safakhou/curricula/internal/research"
	"github.com/mohammad-safakhou/curricula/internal/session"
	"github.com/mohammad-safakhou/curricula/internal/stream"
	"github.com/mohammad-safakhou/curricula/models"
)

// stubDeep satisfies research.Researcher and returns canned findings.
type stubDeep struct {
	findings string
	err      error
	calls    int
}

func (s *stubDeep) Run(ctx context.Context, budget config.PhaseBudget, system, prompt string, em research.Emitter) (research.Result, error) {
	s.calls++
	if s.err != nil {
		return research.Result{}, s.err
	}
	return research.Result{Findings: s.findings, Searches: 1}, nil
}

// stubAgent satisfies agentRunner without touching any LLM.
type stubAgent struct {
	reply    string
	industry string
	clarify  bool
	err      error
}

func (s *stubAgent) RunTurn(ctx context.Context, state *models.ConversationState, message string, em agent.Emitter) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	state.Messages = append(state.Messages, models.Message{Role: models.RoleUser, Content: message})
	if s.industry != "" {
		state.Industry = s.industry
	}
	state.AwaitingClarification = s.clarify
	return s.reply, nil
}

func testStreamConfig() config.StreamConfig {
	return config.StreamConfig{
		KeepaliveInterval: time.Second,
		PopTimeout:        50 * time.Millisecond,
		QueueSize:         64,
	}
}

func testChatHandler(deep research.Researcher, runner agentRunner, store session.Store) *ChatHandler {
	return &ChatHandler{
		Engine:      runner,
		Deep:        deep,
		Store:       store,
		Research:    config.ResearchConfig{Phases: map[string]config.PhaseBudget{}},
		Stream:      testStreamConfig(),
		TurnTimeout: 5 * time.Second,
	}
}

func postChat(t *testing.T, h *ChatHandler, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, h.chat(c)
}

// sseEvents parses the data: lines of an SSE body.
func sseEvents(t *testing.T, body string) []stream.Event {
	t.Helper()
	var events []stream.Event
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev stream.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("unmarshal event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func kindsOf(events []stream.Event) []stream.Kind {
	kinds := make([]stream.Kind, 0, len(events))
	for _, ev := range events {
		if ev.Kind == stream.KindPing {
			continue
		}
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func TestChatResearchTurnStreamsSSE(t *testing.T) {
	store := session.NewMemory()
	deep := &stubDeep{findings: "1. What depth of certification coverage do you need?"}
	h := testChatHandler(deep, &stubAgent{}, store)

	rec, err := postChat(t, h, `{"message": "HVAC technician training", "client_id": "web-1"}`)
	if err != nil {
		t.Fatalf("chat returned error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}
	if cc := rec.Header().Get(echo.HeaderCacheControl); cc != "no-cache" {
		t.Fatalf("cache control = %q", cc)
	}

	events := sseEvents(t, rec.Body.String())
	if len(events) == 0 {
		t.Fatal("no events streamed")
	}
	if events[0].Kind != stream.KindSession || events[0].SessionID == "" {
		t.Fatalf("first event = %+v, want session event with id", events[0])
	}
	last := events[len(events)-1]
	if last.Kind != stream.KindDone {
		t.Fatalf("last event = %s, want done", last.Kind)
	}

	var clar *stream.Event
	for i := range events {
		if events[i].Kind == stream.KindClarification {
			clar = &events[i]
		}
	}
	if clar == nil {
		t.Fatal("no clarification event in stream")
	}
	if clar.Content != deep.findings {
		t.Fatalf("clarification content = %q", clar.Content)
	}

	sessionID := events[0].SessionID
	st, err := store.LoadState(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if st.Research == nil || st.Research.Phase != models.PhaseClarification {
		t.Fatalf("saved research state = %+v, want clarification phase", st.Research)
	}
	if st.Research.Topic != "HVAC technician training" {
		t.Fatalf("topic = %q", st.Research.Topic)
	}

	msgs, err := store.Messages(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d transcript rows, want user + assistant", len(msgs))
	}
	if msgs[0].Role != string(models.RoleUser) || msgs[1].Role != string(models.RoleAssistant) {
		t.Fatalf("transcript roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content != deep.findings {
		t.Fatalf("assistant row = %q, want the clarifying questions", msgs[1].Content)
	}
}

func TestChatContinuesExistingSession(t *testing.T) {
	store := session.NewMemory()
	sess, err := store.Create(context.Background(), "", "web-1")
	if err != nil {
		t.Fatal(err)
	}
	rs := models.ResearchState{
		Topic:            "HVAC technician training",
		Phase:            models.PhaseClarification,
		Findings:         map[models.ResearchPhase]string{},
		AwaitingFeedback: true,
	}
	if err := store.SaveState(context.Background(), sess.ID, session.State{Research: &rs}); err != nil {
		t.Fatal(err)
	}

	deep := &stubDeep{findings: "## Competitive Landscape\n\nPlenty of courses."}
	h := testChatHandler(deep, &stubAgent{}, store)

	rec, err := postChat(t, h, fmt.Sprintf(`{"message": "focus on commercial systems", "session_id": %q}`, sess.ID))
	if err != nil {
		t.Fatalf("chat returned error: %v", err)
	}

	events := sseEvents(t, rec.Body.String())
	for _, ev := range events {
		if ev.Kind == stream.KindSession {
			t.Fatal("existing session must not re-emit the session event")
		}
	}
	var sawPhaseStart, sawFeedback bool
	for _, ev := range events {
		switch ev.Kind {
		case stream.KindPhaseStart:
			sawPhaseStart = true
		case stream.KindFeedbackRequest:
			sawFeedback = true
		}
	}
	if !sawPhaseStart || !sawFeedback {
		t.Fatalf("expected phase_start and feedback_request events, got %v", kindsOf(events))
	}

	st, _ := store.LoadState(context.Background(), sess.ID)
	if st.Research.Phase != models.PhaseCompetitive {
		t.Fatalf("phase = %s, want competitive", st.Research.Phase)
	}
	if len(st.Research.Clarifications) != 1 || st.Research.Clarifications[0] != "focus on commercial systems" {
		t.Fatalf("clarifications = %v", st.Research.Clarifications)
	}

	got, _ := store.Get(context.Background(), sess.ID)
	if got.Industry != "HVAC technician training" {
		t.Fatalf("industry = %q", got.Industry)
	}
	if got.Title != "HVAC technician training" {
		t.Fatalf("title = %q", got.Title)
	}
}

func TestChatAgentMode(t *testing.T) {
	store := session.NewMemory()
	runner := &stubAgent{reply: "Here is the full research report.", industry: "Solar Panel Installation"}
	h := testChatHandler(&stubDeep{}, runner, store)

	rec, err := postChat(t, h, `{"message": "solar installer courses", "mode": "agent"}`)
	if err != nil {
		t.Fatalf("chat returned error: %v", err)
	}

	events := sseEvents(t, rec.Body.String())
	var complete *stream.Event
	for i := range events {
		if events[i].Kind == stream.KindComplete {
			complete = &events[i]
		}
	}
	if complete == nil {
		t.Fatalf("no complete event, got %v", kindsOf(events))
	}
	if complete.Content != runner.reply {
		t.Fatalf("complete content = %q", complete.Content)
	}

	sessionID := events[0].SessionID
	st, err := store.LoadState(context.Background(), sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Conversation == nil || st.Conversation.Industry != "Solar Panel Installation" {
		t.Fatalf("saved conversation = %+v", st.Conversation)
	}
	got, _ := store.Get(context.Background(), sessionID)
	if got.Title != "Solar Panel Installation" {
		t.Fatalf("title = %q", got.Title)
	}
}

func TestChatAgentClarifyingReply(t *testing.T) {
	store := session.NewMemory()
	runner := &stubAgent{reply: "Which audience should the curriculum target?", clarify: true}
	h := testChatHandler(&stubDeep{}, runner, store)

	rec, err := postChat(t, h, `{"message": "make me a curriculum", "mode": "agent"}`)
	if err != nil {
		t.Fatalf("chat returned error: %v", err)
	}
	events := sseEvents(t, rec.Body.String())
	var clar bool
	for _, ev := range events {
		if ev.Kind == stream.KindClarification && ev.Content == runner.reply {
			clar = true
		}
		if ev.Kind == stream.KindComplete {
			t.Fatal("clarifying reply must not be published as complete")
		}
	}
	if !clar {
		t.Fatalf("expected clarification event, got %v", kindsOf(events))
	}
}

func TestChatTurnErrorTerminatesStream(t *testing.T) {
	store := session.NewMemory()
	deep := &stubDeep{err: fmt.Errorf("research provider down")}
	h := testChatHandler(deep, &stubAgent{}, store)

	rec, err := postChat(t, h, `{"message": "HVAC technician training"}`)
	if err != nil {
		t.Fatalf("chat returned error: %v", err)
	}

	events := sseEvents(t, rec.Body.String())
	kinds := kindsOf(events)
	if len(kinds) < 2 {
		t.Fatalf("events = %v", kinds)
	}
	if kinds[len(kinds)-2] != stream.KindError || kinds[len(kinds)-1] != stream.KindDone {
		t.Fatalf("stream tail = %v, want error then done", kinds[len(kinds)-2:])
	}

	// The failed turn must not persist half-built research state.
	sessionID := events[0].SessionID
	st, _ := store.LoadState(context.Background(), sessionID)
	if st.Research != nil {
		t.Fatalf("state saved despite error: %+v", st.Research)
	}
}

func TestChatValidation(t *testing.T) {
	h := testChatHandler(&stubDeep{}, &stubAgent{}, session.NewMemory())

	if _, err := postChat(t, h, `{"message": "   "}`); !isHTTPStatus(err, http.StatusBadRequest) {
		t.Fatalf("blank message: %v", err)
	}
	if _, err := postChat(t, h, `{"message": "hi", "mode": "turbo"}`); !isHTTPStatus(err, http.StatusBadRequest) {
		t.Fatalf("unknown mode: %v", err)
	}
	if _, err := postChat(t, h, `{"message": "hi", "session_id": "nope"}`); !isHTTPStatus(err, http.StatusNotFound) {
		t.Fatalf("missing session: %v", err)
	}
}

func TestTruncateTitle(t *testing.T) {
	long := strings.Repeat("heat pump ", 10)
	got := truncateTitle(long, 50)
	if len([]rune(got)) > 50 {
		t.Fatalf("title %q exceeds 50 runes", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("truncated title %q missing ellipsis", got)
	}
	if short := truncateTitle("HVAC", 50); short != "HVAC" {
		t.Fatalf("short title mangled: %q", short)
	}
}

func isHTTPStatus(err error, code int) bool {
	he, ok := err.(*echo.HTTPError)
	return ok && he.Code == code
}
