package agent

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/mohammad-safakhou/curricula/config"
	"github.com/mohammad-safakhou/curricula/internal/tools"
	"github.com/mohammad-safakhou/curricula/models"
)

func executorEngine(searcher *fakeSearcher) *Engine {
	registry := tools.NewRegistry(tools.Deps{
		Searcher: searcher,
		Search:   config.SearchConfig{MaxResults: 10},
		Logger:   log.New(io.Discard, "", 0),
	}, time.Minute)
	return NewEngine(Deps{
		Config:   testAgentConfig(),
		Tools:    registry,
		Searcher: searcher,
		Logger:   log.New(io.Discard, "", 0),
	})
}

func TestExecutorRecordsMissingCall(t *testing.T) {
	e := NewEngine(Deps{Config: testAgentConfig(), Logger: log.New(io.Discard, "", 0)})
	state := &models.ConversationState{}

	e.runToolExecutor(context.Background(), state, nil)

	result := state.CurrentToolResult
	if result == nil || result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.ToolName != "unknown" || result.Error != "No tool call specified" {
		t.Fatalf("result = %+v", result)
	}
}

func TestExecutorRunsToolAndRecordsTranscript(t *testing.T) {
	searcher := &fakeSearcher{results: []models.SearchResult{
		{Title: "HVAC School", URL: "https://hvac.example.com", Snippet: "s"},
	}}
	e := executorEngine(searcher)
	state := &models.ConversationState{
		CurrentToolCall: &models.ToolCall{
			Name:      "search_google",
			Arguments: map[string]interface{}{"query": "hvac courses"},
		},
	}

	e.runToolExecutor(context.Background(), state, nil)

	result := state.CurrentToolResult
	if result == nil || !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if results, ok := result.Data.([]models.SearchResult); !ok || len(results) != 1 {
		t.Fatalf("data = %T %v", result.Data, result.Data)
	}
	if state.CurrentToolCall != nil {
		t.Fatal("tool call not cleared after execution")
	}

	last := state.Messages[len(state.Messages)-1]
	if last.Role != models.RoleTool || last.Content != "Tool 'search_google' executed successfully." {
		t.Fatalf("transcript entry = %+v", last)
	}
}

func TestExecutorKeepsFailureOutOfTranscript(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("quota exceeded")}
	e := executorEngine(searcher)
	state := &models.ConversationState{
		CurrentToolCall: &models.ToolCall{
			Name:      "search_google",
			Arguments: map[string]interface{}{"query": "hvac courses"},
		},
	}

	e.runToolExecutor(context.Background(), state, nil)

	result := state.CurrentToolResult
	if result == nil || result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Error == "" {
		t.Fatal("error text missing")
	}
	if len(state.Messages) != 0 {
		t.Fatalf("failure leaked into transcript: %+v", state.Messages)
	}
	if state.CurrentToolCall != nil {
		t.Fatal("tool call not cleared after failure")
	}
}
