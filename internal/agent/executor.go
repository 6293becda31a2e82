package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/curricula/internal/stream"
	"github.com/mohammad-safakhou/curricula/models"
)

// runToolExecutor invokes the staged tool call and records its result.
// Failures land in the result, never as a turn error: reflection decides
// whether to retry.
func (e *Engine) runToolExecutor(ctx context.Context, state *models.ConversationState, em Emitter) {
	if state.CurrentToolCall == nil {
		state.CurrentToolResult = &models.ToolResult{
			ToolName: "unknown",
			Success:  false,
			Error:    "No tool call specified",
		}
		return
	}

	call := *state.CurrentToolCall
	e.emit(ctx, em, stream.Statusf("Running %s...", call.Name))

	result := e.tools.Execute(ctx, call, e.progress(ctx, em))
	state.CurrentToolResult = &result
	state.CurrentToolCall = nil

	if result.Success {
		state.Messages = append(state.Messages, models.Message{
			Role:      models.RoleTool,
			Content:   fmt.Sprintf("Tool '%s' executed successfully.", call.Name),
			CreatedAt: time.Now(),
		})
	} else {
		e.logger.Printf("session %s: tool %s failed: %s", state.SessionID, call.Name, result.Error)
	}
}
