package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/alphalens/alphalens/pkg/logger"
	"github.com/alphalens/alphalens/pkg/models"
)

// Executor runs a batch of model-requested tool calls concurrently.
// One slow or broken call never blocks or fails the rest of the batch:
// each call gets its own timeout and its error is reported back to the
// model as that call's result.
type Executor struct {
	registry    *Registry
	toolTimeout time.Duration
}

// NewExecutor creates an executor over the registry
func NewExecutor(registry *Registry, toolTimeout time.Duration) *Executor {
	if toolTimeout <= 0 {
		toolTimeout = 15 * time.Second
	}
	return &Executor{
		registry:    registry,
		toolTimeout: toolTimeout,
	}
}

// ExecutionResult pairs the conversation messages the model needs with
// the audit records the job stores
type ExecutionResult struct {
	Messages []openai.ChatCompletionMessage
	Audit    []models.ToolCall
}

// ExecuteBatch runs all calls in parallel and returns results in the
// original call order. Results and audit entries are index-aligned
// with the input.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []openai.ToolCall) *ExecutionResult {
	res := &ExecutionResult{
		Messages: make([]openai.ChatCompletionMessage, len(calls)),
		Audit:    make([]models.ToolCall, len(calls)),
	}
	if len(calls) == 0 {
		return res
	}

	logger.Debug("executing tool batch",
		zap.Int("calls", len(calls)),
		zap.Duration("per_tool_timeout", e.toolTimeout),
	)

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call openai.ToolCall) {
			defer wg.Done()
			res.Messages[i], res.Audit[i] = e.executeOne(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return res
}

func (e *Executor) executeOne(ctx context.Context, call openai.ToolCall) (openai.ChatCompletionMessage, models.ToolCall) {
	audit := models.ToolCall{
		Name:      call.Function.Name,
		Timestamp: time.Now().UTC(),
	}

	var params map[string]interface{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &params); err != nil {
			audit.Error = fmt.Sprintf("invalid tool arguments: %v", err)
			return toolMessage(call.ID, call.Function.Name, errorPayload(audit.Error)), audit
		}
	}
	audit.Arguments = params

	toolCtx, cancel := context.WithTimeout(ctx, e.toolTimeout)
	defer cancel()

	startTime := time.Now()
	result, err := e.registry.Execute(toolCtx, call.Function.Name, params)
	audit.DurationMs = time.Since(startTime).Milliseconds()

	if err != nil {
		audit.Error = err.Error()
		return toolMessage(call.ID, call.Function.Name, errorPayload(audit.Error)), audit
	}

	payload, err := json.Marshal(result)
	if err != nil {
		audit.Error = fmt.Sprintf("encode tool result: %v", err)
		return toolMessage(call.ID, call.Function.Name, errorPayload(audit.Error)), audit
	}

	audit.Result = payload
	return toolMessage(call.ID, call.Function.Name, string(payload)), audit
}

func toolMessage(callID, name, content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		ToolCallID: callID,
		Name:       name,
		Content:    content,
	}
}

func errorPayload(msg string) string {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return string(payload)
}
