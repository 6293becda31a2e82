package session

import (
	"context"
	"errors"
	"time"

	"github.com/mohammad-safakhou/curricula/models"
)

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session not found")

// Session statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Session is one research conversation's metadata row.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"-"`
	ClientID     string    `json:"client_id,omitempty"`
	Title        string    `json:"title"`
	Industry     string    `json:"industry,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Message is one persisted transcript entry. The transcript is the UI-facing
// record; the engines keep their own working history inside State.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// State bundles the serialized engine states persisted with a session. Either
// engine may be nil when that mode has not been used in the session.
type State struct {
	Conversation *models.ConversationState `json:"conversation,omitempty"`
	Research     *models.ResearchState     `json:"research,omitempty"`
}

// Update names the mutable session fields; nil fields are left untouched.
type Update struct {
	Title    *string
	Industry *string
	Status   *string
}

// Filter narrows and pages a session listing.
type Filter struct {
	UserID   string
	ClientID string
	Limit    int
	Offset   int
}

// Store persists sessions, their transcripts and engine state. A session is
// mutated by one turn at a time; the chat surface serializes turns, so
// implementations do not need per-session transactions.
type Store interface {
	Create(ctx context.Context, userID, clientID string) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	List(ctx context.Context, f Filter) ([]Session, int, error)
	Update(ctx context.Context, id string, upd Update) error
	Delete(ctx context.Context, id string) error

	LoadState(ctx context.Context, id string) (State, error)
	SaveState(ctx context.Context, id string, st State) error

	AppendMessage(ctx context.Context, msg Message) (Message, error)
	Messages(ctx context.Context, sessionID string) ([]Message, error)
}

// String returns a pointer to s, for building Update values.
func String(s string) *string { return &s }
