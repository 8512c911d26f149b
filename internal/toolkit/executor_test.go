package toolkit

import (
	"context"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func toolCall(id, name, args string) openai.ToolCall {
	return openai.ToolCall{
		ID:   id,
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestExecuteBatch(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(&fakeStock{})
	executor := NewExecutor(registry, 5*time.Second)

	t.Run("empty batch", func(t *testing.T) {
		res := executor.ExecuteBatch(ctx, nil)
		if len(res.Messages) != 0 || len(res.Audit) != 0 {
			t.Errorf("empty batch produced output: %+v", res)
		}
	})

	t.Run("results keep call order", func(t *testing.T) {
		calls := []openai.ToolCall{
			toolCall("call_1", "get_quote", `{"symbol": "AAPL"}`),
			toolCall("call_2", "get_news", `{"symbol": "AAPL", "limit": 5}`),
		}

		res := executor.ExecuteBatch(ctx, calls)
		if len(res.Messages) != 2 {
			t.Fatalf("messages = %d, want 2", len(res.Messages))
		}
		if res.Messages[0].ToolCallID != "call_1" || res.Messages[1].ToolCallID != "call_2" {
			t.Errorf("messages out of order: %s, %s", res.Messages[0].ToolCallID, res.Messages[1].ToolCallID)
		}
		for i, msg := range res.Messages {
			if msg.Role != openai.ChatMessageRoleTool {
				t.Errorf("message %d role = %q", i, msg.Role)
			}
		}
		if res.Audit[0].Name != "get_quote" || res.Audit[0].Error != "" {
			t.Errorf("audit[0] = %+v", res.Audit[0])
		}
	})

	t.Run("invalid arguments fail only that call", func(t *testing.T) {
		calls := []openai.ToolCall{
			toolCall("call_1", "get_quote", `{not json`),
			toolCall("call_2", "get_quote", `{"symbol": "MSFT"}`),
		}

		res := executor.ExecuteBatch(ctx, calls)
		if res.Audit[0].Error == "" {
			t.Error("expected error for malformed arguments")
		}
		if !strings.Contains(res.Messages[0].Content, "error") {
			t.Errorf("error message not surfaced to model: %s", res.Messages[0].Content)
		}
		if res.Audit[1].Error != "" {
			t.Errorf("healthy call polluted by broken sibling: %s", res.Audit[1].Error)
		}
	})

	t.Run("tool failure reported as result", func(t *testing.T) {
		calls := []openai.ToolCall{
			toolCall("call_1", "get_crystal_ball", `{}`),
		}
		res := executor.ExecuteBatch(ctx, calls)
		if res.Audit[0].Error == "" {
			t.Error("expected unknown-tool error in audit")
		}
		if !strings.Contains(res.Messages[0].Content, "unknown tool") {
			t.Errorf("model message should carry the error: %s", res.Messages[0].Content)
		}
	})
}
