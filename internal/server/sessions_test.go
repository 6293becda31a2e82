package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/curricula/internal/session"
	"github.com/mohammad-safakhou/curricula/models"
)

func sessionsContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestSessionEndpointsLifecycle(t *testing.T) {
	store := session.NewMemory()
	h := &SessionsHandler{Store: store}

	// Create.
	c, rec := sessionsContext(t, http.MethodPost, "/api/sessions", `{"client_id": "web-1"}`)
	if err := h.create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created SessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Status != session.StatusActive {
		t.Fatalf("created = %+v", created)
	}

	// Seed a transcript and research state through the store.
	ctx := context.Background()
	if _, err := store.AppendMessage(ctx, session.Message{SessionID: created.ID, Role: "user", Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	rs := models.ResearchState{
		Topic:         "HVAC technician training",
		Phase:         models.PhaseCompetitive,
		TotalSearches: 42,
		Findings:      map[models.ResearchPhase]string{},
	}
	if err := store.SaveState(ctx, created.ID, session.State{Research: &rs}); err != nil {
		t.Fatal(err)
	}

	// List.
	c, rec = sessionsContext(t, http.MethodGet, "/api/sessions?client_id=web-1", "")
	if err := h.list(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var page SessionListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Sessions) != 1 || page.Sessions[0].ID != created.ID {
		t.Fatalf("list = %+v", page)
	}

	// Detail with transcript and research progress.
	c, rec = sessionsContext(t, http.MethodGet, "/api/sessions/"+created.ID, "")
	c.SetParamNames("id")
	c.SetParamValues(created.ID)
	if err := h.get(c); err != nil {
		t.Fatalf("get: %v", err)
	}
	var detail SessionDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if len(detail.Messages) != 1 || detail.Messages[0].Content != "hi" {
		t.Fatalf("detail messages = %+v", detail.Messages)
	}
	if detail.Phase != string(models.PhaseCompetitive) || detail.TotalSearches != 42 {
		t.Fatalf("detail research = %q/%d", detail.Phase, detail.TotalSearches)
	}

	// Rename.
	c, rec = sessionsContext(t, http.MethodPut, "/api/sessions/"+created.ID, `{"title": "Texas HVAC market"}`)
	c.SetParamNames("id")
	c.SetParamValues(created.ID)
	if err := h.update(c); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := store.Get(ctx, created.ID)
	if got.Title != "Texas HVAC market" {
		t.Fatalf("title = %q", got.Title)
	}

	// Delete, then the detail route reports not found.
	c, rec = sessionsContext(t, http.MethodDelete, "/api/sessions/"+created.ID, "")
	c.SetParamNames("id")
	c.SetParamValues(created.ID)
	if err := h.delete(c); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	c, _ = sessionsContext(t, http.MethodGet, "/api/sessions/"+created.ID, "")
	c.SetParamNames("id")
	c.SetParamValues(created.ID)
	if err := h.get(c); !isHTTPStatus(err, http.StatusNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
}

func TestSessionsHiddenAcrossUsers(t *testing.T) {
	store := session.NewMemory()
	h := &SessionsHandler{Store: store}

	sess, err := store.Create(context.Background(), "user-a", "")
	if err != nil {
		t.Fatal(err)
	}

	c, _ := sessionsContext(t, http.MethodGet, "/api/sessions/"+sess.ID, "")
	c.SetParamNames("id")
	c.SetParamValues(sess.ID)
	c.Set("user_id", "user-b")
	if err := h.get(c); !isHTTPStatus(err, http.StatusNotFound) {
		t.Fatalf("foreign session should be hidden, got %v", err)
	}

	// The owner still sees it.
	c, rec := sessionsContext(t, http.MethodGet, "/api/sessions/"+sess.ID, "")
	c.SetParamNames("id")
	c.SetParamValues(sess.ID)
	c.Set("user_id", "user-a")
	if err := h.get(c); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("owner get status = %d", rec.Code)
	}
}

func TestGenerateTitleEndpoint(t *testing.T) {
	h := &SessionsHandler{Store: session.NewMemory()}

	c, rec := sessionsContext(t, http.MethodPost, "/api/sessions/generate-title",
		`{"message": "I want to research HVAC technician training programs in Texas"}`)
	if err := h.generateTitle(c); err != nil {
		t.Fatalf("generate-title: %v", err)
	}
	var resp TitleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Title != "I want to research HVAC technician" {
		t.Fatalf("title = %q", resp.Title)
	}

	c, _ = sessionsContext(t, http.MethodPost, "/api/sessions/generate-title", `{"message": "   "}`)
	if err := h.generateTitle(c); !isHTTPStatus(err, http.StatusBadRequest) {
		t.Fatalf("blank message: %v", err)
	}
}

func TestReportDownload(t *testing.T) {
	store := session.NewMemory()
	h := &SessionsHandler{Store: store}
	ctx := context.Background()

	sess, err := store.Create(ctx, "", "")
	if err != nil {
		t.Fatal(err)
	}

	// No research yet.
	c, _ := sessionsContext(t, http.MethodGet, "/api/sessions/"+sess.ID+"/report", "")
	c.SetParamNames("id")
	c.SetParamValues(sess.ID)
	if err := h.report(c); !isHTTPStatus(err, http.StatusNotFound) {
		t.Fatalf("report before synthesis: %v", err)
	}

	report := "# HVAC Curriculum\n\n## Module Inventory\n..."
	rs := models.ResearchState{
		Topic: "HVAC technician training",
		Phase: models.PhaseComplete,
		Findings: map[models.ResearchPhase]string{
			models.PhaseSynthesis: report,
		},
	}
	if err := store.SaveState(ctx, sess.ID, session.State{Research: &rs}); err != nil {
		t.Fatal(err)
	}
	if err := store.Update(ctx, sess.ID, session.Update{Industry: session.String("HVAC technician training")}); err != nil {
		t.Fatal(err)
	}

	c, rec := sessionsContext(t, http.MethodGet, "/api/sessions/"+sess.ID+"/report", "")
	c.SetParamNames("id")
	c.SetParamValues(sess.ID)
	if err := h.report(c); err != nil {
		t.Fatalf("report: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != report {
		t.Fatalf("body = %q", got)
	}
	cd := rec.Header().Get(echo.HeaderContentDisposition)
	if !strings.Contains(cd, "hvac-technician-training-report.md") {
		t.Fatalf("content disposition = %q", cd)
	}
}

func TestTitleFromMessage(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"solar installer certification", "solar installer certification"},
		{"I want to research HVAC technician training programs", "I want to research HVAC technician"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := titleFromMessage(tc.in); got != tc.want {
			t.Fatalf("titleFromMessage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
