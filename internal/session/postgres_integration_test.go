package session_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mohammad-safakhou/curricula/internal/session"
	"github.com/mohammad-safakhou/curricula/models"
)

const integrationSchema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS users (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  email TEXT UNIQUE NOT NULL,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS research_sessions (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  user_id UUID REFERENCES users(id) ON DELETE CASCADE,
  client_id TEXT,
  title TEXT NOT NULL DEFAULT '',
  industry VARCHAR(500) NOT NULL DEFAULT '',
  status VARCHAR(50) NOT NULL DEFAULT 'active',
  conversation_state JSONB,
  research_state JSONB,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  session_id UUID NOT NULL REFERENCES research_sessions(id) ON DELETE CASCADE,
  role VARCHAR(20) NOT NULL,
  content TEXT NOT NULL,
  tool_name VARCHAR(100),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func TestPostgresStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "curricula",
				"POSTGRES_PASSWORD": "curricula",
				"POSTGRES_DB":       "curricula",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	pgHost, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	pgPort, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://curricula:curricula@%s:%s/curricula?sslmode=disable", pgHost, pgPort.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.ExecContext(ctx, integrationSchema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	db.Close()

	store, err := session.NewPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}

	// Lifecycle against the real database.
	s, err := store.Create(ctx, "", "client-int")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.AppendMessage(ctx, session.Message{SessionID: s.ID, Role: "user", Content: "welding curriculum"}); err != nil {
		t.Fatalf("append user: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := store.AppendMessage(ctx, session.Message{SessionID: s.ID, Role: "assistant", Content: "questions..."}); err != nil {
		t.Fatalf("append assistant: %v", err)
	}
	msgs, err := store.Messages(ctx, s.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("messages = %+v", msgs)
	}

	if err := store.Update(ctx, s.ID, session.Update{
		Title:    session.String("Welding"),
		Industry: session.String("welding"),
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Welding" || got.Industry != "welding" || got.MessageCount != 2 {
		t.Fatalf("session = %+v", got)
	}

	st := session.State{
		Research: &models.ResearchState{
			Topic:    "welding",
			Phase:    models.PhaseSentiment,
			Findings: map[models.ResearchPhase]string{models.PhaseCompetitive: "blocks"},
		},
	}
	if err := store.SaveState(ctx, s.ID, st); err != nil {
		t.Fatalf("save state: %v", err)
	}
	loaded, err := store.LoadState(ctx, s.ID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if loaded.Research == nil || loaded.Research.Phase != models.PhaseSentiment {
		t.Fatalf("state = %+v", loaded)
	}

	list, total, err := store.List(ctx, session.Filter{ClientID: "client-int"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(list) != 1 || list[0].ID != s.ID {
		t.Fatalf("list = %+v total = %d", list, total)
	}

	// Redis cache layer over the same store.
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	redisHost, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	redisPort, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port())})
	defer rdb.Close()

	cache := session.NewCache(store, rdb, time.Minute)
	st.Research.Phase = models.PhaseSynthesis
	if err := cache.SaveState(ctx, s.ID, st); err != nil {
		t.Fatalf("cache save: %v", err)
	}
	// Hot read comes from redis.
	fromCache, err := cache.LoadState(ctx, s.ID)
	if err != nil {
		t.Fatalf("cache load: %v", err)
	}
	if fromCache.Research.Phase != models.PhaseSynthesis {
		t.Fatalf("cached state = %+v", fromCache)
	}
	// Cold read falls back to postgres and backfills.
	if err := rdb.FlushAll(ctx).Err(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	cold, err := cache.LoadState(ctx, s.ID)
	if err != nil {
		t.Fatalf("cold load: %v", err)
	}
	if cold.Research.Phase != models.PhaseSynthesis {
		t.Fatalf("cold state = %+v", cold)
	}
	if n, err := rdb.Exists(ctx, session.StateKey(s.ID)).Result(); err != nil || n != 1 {
		t.Fatalf("backfill missing (n=%d err=%v)", n, err)
	}

	// Delete drops the row, its messages and the cache entry.
	if err := cache.Delete(ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
	if _, err := store.Messages(ctx, s.ID); err != nil {
		t.Fatalf("messages after delete: %v", err)
	} else if msgs, _ := store.Messages(ctx, s.ID); len(msgs) != 0 {
		t.Fatalf("messages survived cascade: %+v", msgs)
	}
	if n, _ := rdb.Exists(ctx, session.StateKey(s.ID)).Result(); n != 0 {
		t.Fatalf("cache entry survived delete")
	}
}
