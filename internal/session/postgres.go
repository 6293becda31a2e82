package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/curricula/models"
)

// Postgres is the durable session store.
type Postgres struct {
	DB *sql.DB
}

// NewPostgres opens and pings a postgres connection. Schema is managed by the
// migrate command, not here.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Postgres{DB: db}, nil
}

const sessionColumns = `s.id, COALESCE(s.user_id::text, ''), COALESCE(s.client_id, ''), s.title, s.industry, s.status, s.created_at, s.updated_at,
	(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)`

func scanSession(row interface{ Scan(...interface{}) error }) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.ClientID, &s.Title, &s.Industry, &s.Status,
		&s.CreatedAt, &s.UpdatedAt, &s.MessageCount)
	return s, err
}

func (p *Postgres) Create(ctx context.Context, userID, clientID string) (Session, error) {
	s := Session{ID: uuid.NewString(), UserID: userID, ClientID: clientID, Status: StatusActive}
	var uid interface{}
	if userID != "" {
		uid = userID
	}
	err := p.DB.QueryRowContext(ctx,
		`INSERT INTO research_sessions (id, user_id, client_id, status) VALUES ($1, $2, $3, $4) RETURNING created_at, updated_at`,
		s.ID, uid, clientID, s.Status).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (Session, error) {
	row := p.DB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM research_sessions s WHERE s.id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (p *Postgres) List(ctx context.Context, f Filter) ([]Session, int, error) {
	where := ""
	args := []interface{}{}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where += fmt.Sprintf(" AND s.user_id = $%d", len(args))
	}
	if f.ClientID != "" {
		args = append(args, f.ClientID)
		where += fmt.Sprintf(" AND s.client_id = $%d", len(args))
	}

	var total int
	if err := p.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM research_sessions s WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(`SELECT `+sessionColumns+` FROM research_sessions s WHERE 1=1%s ORDER BY s.updated_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (p *Postgres) Update(ctx context.Context, id string, upd Update) error {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{}
	if upd.Title != nil {
		args = append(args, *upd.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if upd.Industry != nil {
		args = append(args, *upd.Industry)
		sets = append(sets, fmt.Sprintf("industry = $%d", len(args)))
	}
	if upd.Status != nil {
		args = append(args, *upd.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, id)
	res, err := p.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE research_sessions SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return requireRow(res)
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	// Messages go with the session via ON DELETE CASCADE.
	res, err := p.DB.ExecContext(ctx, `DELETE FROM research_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireRow(res)
}

func (p *Postgres) LoadState(ctx context.Context, id string) (State, error) {
	var conv, research []byte
	err := p.DB.QueryRowContext(ctx,
		`SELECT conversation_state, research_state FROM research_sessions WHERE id = $1`, id).
		Scan(&conv, &research)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("load state: %w", err)
	}
	var st State
	if len(conv) > 0 {
		st.Conversation = &models.ConversationState{}
		if err := json.Unmarshal(conv, st.Conversation); err != nil {
			return State{}, fmt.Errorf("decode conversation state: %w", err)
		}
	}
	if len(research) > 0 {
		st.Research = &models.ResearchState{}
		if err := json.Unmarshal(research, st.Research); err != nil {
			return State{}, fmt.Errorf("decode research state: %w", err)
		}
	}
	return st, nil
}

func (p *Postgres) SaveState(ctx context.Context, id string, st State) error {
	var conv, research []byte
	var err error
	if st.Conversation != nil {
		if conv, err = json.Marshal(st.Conversation); err != nil {
			return fmt.Errorf("encode conversation state: %w", err)
		}
	}
	if st.Research != nil {
		if research, err = json.Marshal(st.Research); err != nil {
			return fmt.Errorf("encode research state: %w", err)
		}
	}
	res, err := p.DB.ExecContext(ctx,
		`UPDATE research_sessions SET conversation_state = $1, research_state = $2, updated_at = NOW() WHERE id = $3`,
		conv, research, id)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return requireRow(res)
}

func (p *Postgres) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	var tool interface{}
	if msg.ToolName != "" {
		tool = msg.ToolName
	}
	err := p.DB.QueryRowContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, tool_name) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, tool).Scan(&msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

func (p *Postgres) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT id, session_id, role, content, COALESCE(tool_name, ''), created_at FROM messages WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.ToolName, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
