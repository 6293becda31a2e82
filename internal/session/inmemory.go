package session

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a map-backed Store for tests and for running without postgres.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*memSession
}

type memSession struct {
	meta     Session
	state    []byte // JSON-encoded State, mirroring what postgres stores
	messages []Message
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*memSession)}
}

func (m *Memory) Create(_ context.Context, userID, clientID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	s := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ClientID:  clientID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[s.ID] = &memSession{meta: s}
	return s, nil
}

func (m *Memory) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	s := ms.meta
	s.MessageCount = len(ms.messages)
	return s, nil
}

func (m *Memory) List(_ context.Context, f Filter) ([]Session, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Session
	for _, ms := range m.sessions {
		if f.UserID != "" && ms.meta.UserID != f.UserID {
			continue
		}
		if f.ClientID != "" && ms.meta.ClientID != f.ClientID {
			continue
		}
		s := ms.meta
		s.MessageCount = len(ms.messages)
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })

	total := len(all)
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[f.Offset:]
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *Memory) Update(_ context.Context, id string, upd Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Title != nil {
		ms.meta.Title = *upd.Title
	}
	if upd.Industry != nil {
		ms.meta.Industry = *upd.Industry
	}
	if upd.Status != nil {
		ms.meta.Status = *upd.Status
	}
	ms.meta.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *Memory) LoadState(_ context.Context, id string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return State{}, ErrNotFound
	}
	var st State
	if len(ms.state) > 0 {
		if err := json.Unmarshal(ms.state, &st); err != nil {
			return State{}, err
		}
	}
	return st, nil
}

func (m *Memory) SaveState(_ context.Context, id string, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	ms.state = raw
	ms.meta.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) AppendMessage(_ context.Context, msg Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[msg.SessionID]
	if !ok {
		return Message{}, ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	ms.messages = append(ms.messages, msg)
	return msg, nil
}

func (m *Memory) Messages(_ context.Context, sessionID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]Message(nil), ms.messages...), nil
}
