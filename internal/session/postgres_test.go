package session

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/curricula/models"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Postgres{DB: db}, mock
}

func TestCreateSession(t *testing.T) {
	p, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO research_sessions (id, user_id, client_id, status) VALUES ($1, $2, $3, $4) RETURNING created_at, updated_at`)).
		WithArgs(sqlmock.AnyArg(), nil, "client-1", StatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	s, err := p.Create(context.Background(), "", "client-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" || s.Status != StatusActive || s.ClientID != "client-1" {
		t.Fatalf("session = %+v", s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM research_sessions s WHERE s\.id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := p.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListSessionsFilters(t *testing.T) {
	p, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM research_sessions s WHERE 1=1 AND s\.client_id = \$1`).
		WithArgs("web-abc").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	rows := sqlmock.NewRows([]string{"id", "user_id", "client_id", "title", "industry", "status", "created_at", "updated_at", "count"}).
		AddRow("s2", "", "web-abc", "Plumbing", "plumbing", StatusActive, now, now, 4).
		AddRow("s1", "", "web-abc", "HVAC", "hvac", StatusCompleted, now, now, 12)
	mock.ExpectQuery(`SELECT .+ FROM research_sessions s WHERE 1=1 AND s\.client_id = \$1 ORDER BY s\.updated_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("web-abc", 50, 0).
		WillReturnRows(rows)

	list, total, err := p.List(context.Background(), Filter{ClientID: "web-abc"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("total=%d len=%d", total, len(list))
	}
	if list[0].ID != "s2" || list[0].MessageCount != 4 {
		t.Fatalf("first = %+v", list[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateSessionTitleAndStatus(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE research_sessions SET updated_at = NOW\(\), title = \$1, status = \$2 WHERE id = \$3`).
		WithArgs("New Title", StatusCompleted, "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.Update(context.Background(), "sess-1", Update{
		Title:  String("New Title"),
		Status: String(StatusCompleted),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateSessionMissing(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE research_sessions SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.Update(context.Background(), "nope", Update{Title: String("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteSessionMissing(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM research_sessions WHERE id = \$1`).
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := p.Delete(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStateRoundTrip(t *testing.T) {
	p, mock := newMockStore(t)

	st := State{
		Conversation: &models.ConversationState{
			SessionID: "sess-1",
			Industry:  "hvac",
			Messages: []models.Message{
				{Role: models.RoleUser, Content: "hvac courses"},
			},
		},
		Research: &models.ResearchState{
			Topic: "hvac",
			Phase: models.PhaseCompetitive,
			Findings: map[models.ResearchPhase]string{
				models.PhaseCompetitive: "findings",
			},
		},
	}
	conv, _ := json.Marshal(st.Conversation)
	research, _ := json.Marshal(st.Research)

	mock.ExpectExec(`UPDATE research_sessions SET conversation_state = \$1, research_state = \$2, updated_at = NOW\(\) WHERE id = \$3`).
		WithArgs(conv, research, "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := p.SaveState(context.Background(), "sess-1", st); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	mock.ExpectQuery(`SELECT conversation_state, research_state FROM research_sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"conversation_state", "research_state"}).AddRow(conv, research))

	got, err := p.LoadState(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got.Conversation == nil || got.Conversation.Industry != "hvac" {
		t.Fatalf("conversation state = %+v", got.Conversation)
	}
	if got.Research == nil || got.Research.Phase != models.PhaseCompetitive {
		t.Fatalf("research state = %+v", got.Research)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoadStateEmptyColumns(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT conversation_state, research_state FROM research_sessions WHERE id = \$1`).
		WithArgs("fresh").
		WillReturnRows(sqlmock.NewRows([]string{"conversation_state", "research_state"}).AddRow(nil, nil))

	st, err := p.LoadState(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if st.Conversation != nil || st.Research != nil {
		t.Fatalf("fresh state = %+v", st)
	}
}

func TestAppendMessage(t *testing.T) {
	p, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages (id, session_id, role, content, tool_name) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`)).
		WithArgs(sqlmock.AnyArg(), "sess-1", "assistant", "here are the findings", nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	msg, err := p.AppendMessage(context.Background(), Message{
		SessionID: "sess-1",
		Role:      "assistant",
		Content:   "here are the findings",
	})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Fatalf("message = %+v", msg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
