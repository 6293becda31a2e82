package server

import "time"

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// ChatRequest is one user turn. A missing session_id starts a new session;
// mode selects the conversational agent or the guided deep-research
// pipeline and defaults to deep research.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// CreateSessionRequest creates an empty session ahead of the first message.
type CreateSessionRequest struct {
	ClientID string `json:"client_id,omitempty"`
}

// UpdateSessionRequest renames a session.
type UpdateSessionRequest struct {
	Title string `json:"title"`
}

// GenerateTitleRequest derives a short session title from a message.
type GenerateTitleRequest struct {
	Message string `json:"message"`
}

// TitleResponse carries a generated title.
type TitleResponse struct {
	Title string `json:"title"`
}

// SessionResponse is the list/detail view of one session.
type SessionResponse struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id,omitempty"`
	Title        string    `json:"title"`
	Industry     string    `json:"industry,omitempty"`
	Status       string    `json:"status"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionListResponse is a page of sessions plus the unpaged total.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int               `json:"total"`
}

// MessageResponse is one transcript row.
type MessageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionDetailResponse is a session with its transcript and research
// progress. Phase is empty until deep research has started.
type SessionDetailResponse struct {
	SessionResponse
	Messages      []MessageResponse `json:"messages"`
	Phase         string            `json:"research_phase,omitempty"`
	TotalSearches int               `json:"total_searches,omitempty"`
}
