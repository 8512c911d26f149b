package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alphalens/alphalens/internal/adapters/config"
	"github.com/alphalens/alphalens/internal/llm"
	"github.com/alphalens/alphalens/internal/toolkit"
	"github.com/alphalens/alphalens/pkg/models"
)

// scriptedClient returns canned responses in order; the last response
// repeats once the script runs out
type scriptedClient struct {
	responses []*llm.Response
	errs      []error
	calls     int
	requests  []*llm.Request
}

func (s *scriptedClient) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.requests = append(s.requests, req)
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	return s.responses[idx], nil
}

// fakeExecutor fabricates a successful result per call
type fakeExecutor struct {
	batches int
}

func (f *fakeExecutor) ExecuteBatch(ctx context.Context, calls []openai.ToolCall) *toolkit.ExecutionResult {
	f.batches++
	res := &toolkit.ExecutionResult{}
	for _, call := range calls {
		res.Messages = append(res.Messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			ToolCallID: call.ID,
			Name:       call.Function.Name,
			Content:    `{"price": 187.5}`,
		})
		res.Audit = append(res.Audit, models.ToolCall{
			Name:      call.Function.Name,
			Result:    []byte(`{"price": 187.5}`),
			Timestamp: time.Now().UTC(),
		})
	}
	return res
}

type fakeSchemas struct{}

func (fakeSchemas) OpenAITools(names []string) []openai.Tool {
	tools := make([]openai.Tool, len(names))
	for i, name := range names {
		tools[i] = openai.Tool{
			Type:     openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{Name: name},
		}
	}
	return tools
}

func (f fakeSchemas) AllOpenAITools() []openai.Tool {
	return f.OpenAITools([]string{"get_quote", "get_news", "get_forex_quote"})
}

func agentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxIterations:   10,
		MaxToolCalls:    15,
		ForceFinalizeAt: 8,
		MaxReflections:  2,
	}
}

func contentResponse(content string) *llm.Response {
	return &llm.Response{Content: content, FinishReason: openai.FinishReasonStop}
}

func toolResponse(names ...string) *llm.Response {
	calls := make([]openai.ToolCall, len(names))
	for i, name := range names {
		calls[i] = openai.ToolCall{
			ID:       fmt.Sprintf("call_%s_%d", name, i),
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: name, Arguments: `{"symbol":"AAPL"}`},
		}
	}
	return &llm.Response{ToolCalls: calls, FinishReason: openai.FinishReasonToolCalls}
}

func TestRunHappyPath(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse("get_quote", "get_indicators"),
		contentResponse("AAPL shows a strong uptrend with support at 180."),
		// critique: confident, no refinement
		contentResponse(`{"strengths":["data-backed"],"weaknesses":[],"missing_data":[],"confidence":85,"recommendations":[],"should_refine":false}`),
		// structured extraction
		contentResponse(`{"recommendation":"buy","confidence":75,"entry_price":185,"stop_loss":180,"price_target":200,"reasoning":"trend continuation"}`),
	}}
	executor := &fakeExecutor{}

	var progressValues []int
	orch := NewOrchestrator(client, executor, fakeSchemas{}, agentConfig())
	result := orch.Run(context.Background(), RunRequest{
		Symbol:       "AAPL",
		AnalysisType: models.AnalysisStock,
		Progress: func(progress int, step string, toolCalls []models.ToolCall) {
			progressValues = append(progressValues, progress)
		},
	})

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Recommendation == nil {
		t.Fatal("recommendation missing")
	}
	if result.Recommendation.Recommendation != models.RecBuy {
		t.Errorf("recommendation = %s", result.Recommendation.Recommendation)
	}
	// reward 15 / risk 5 = 3.0 passes the gate
	if result.Recommendation.CurrentPrice == nil || *result.Recommendation.CurrentPrice != 187.5 {
		t.Errorf("current price not backfilled from gathered quote: %v", result.Recommendation.CurrentPrice)
	}
	if result.InitialAnalysis == "" {
		t.Error("initial analysis missing")
	}
	if result.Critique == "" {
		t.Error("critique missing")
	}
	if len(result.ToolCalls) != 2 {
		t.Errorf("tool calls = %d, want 2", len(result.ToolCalls))
	}

	if len(progressValues) == 0 || progressValues[0] != 5 || progressValues[len(progressValues)-1] != 100 {
		t.Errorf("progress sequence = %v", progressValues)
	}
	for i := 1; i < len(progressValues); i++ {
		if progressValues[i] < progressValues[i-1] {
			t.Errorf("progress regressed at %d: %v", i, progressValues)
		}
	}
	seen := make(map[int]bool, len(progressValues))
	for _, v := range progressValues {
		seen[v] = true
	}
	for _, milestone := range []int{5, 50, 55, 60, 70, 80, 85, 100} {
		if !seen[milestone] {
			t.Errorf("milestone %d not emitted: %v", milestone, progressValues)
		}
	}
}

func TestRunToolHappyModelTerminates(t *testing.T) {
	// The model requests tools on every turn. The forced-finalization
	// guard must still end the run within the budgets.
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse("get_quote", "get_news", "get_indicators"),
		toolResponse("get_quote", "get_news", "get_indicators"),
		toolResponse("get_quote", "get_news", "get_indicators"),
		toolResponse("get_quote", "get_news", "get_indicators"), // ignored: budget already past the threshold
		contentResponse("Forced analysis from gathered data."),
		contentResponse(`{"confidence":70,"should_refine":false}`),
		contentResponse(`{"recommendation":"hold","confidence":60}`),
	}}
	executor := &fakeExecutor{}

	orch := NewOrchestrator(client, executor, fakeSchemas{}, agentConfig())
	result := orch.Run(context.Background(), RunRequest{Symbol: "AAPL", AnalysisType: models.AnalysisStock})

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if len(result.ToolCalls) > 15 {
		t.Errorf("tool call budget exceeded: %d", len(result.ToolCalls))
	}
	if result.Recommendation == nil || result.Recommendation.Recommendation != models.RecHold {
		t.Errorf("recommendation = %+v", result.Recommendation)
	}

	// After the force threshold the model must have been called
	// without tools at least once
	sawToolless := false
	for _, req := range client.requests {
		if req.Task == llm.TaskAnalysis && len(req.Tools) == 0 {
			sawToolless = true
		}
	}
	if !sawToolless {
		t.Error("forced finalization never stripped tools")
	}
}

func TestRunLLMFailure(t *testing.T) {
	client := &scriptedClient{
		responses: []*llm.Response{nil},
		errs:      []error{errors.New("both providers failed: rate limited")},
	}

	orch := NewOrchestrator(client, &fakeExecutor{}, fakeSchemas{}, agentConfig())
	result := orch.Run(context.Background(), RunRequest{Symbol: "AAPL", AnalysisType: models.AnalysisStock})

	if result.Error == "" {
		t.Fatal("expected captured error")
	}
	if result.Recommendation != nil {
		t.Errorf("failed run should carry no recommendation: %+v", result.Recommendation)
	}
	if !strings.Contains(result.Error, "rate limited") {
		t.Errorf("error = %s", result.Error)
	}
}

func TestRunMalformedFinalJSON(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		contentResponse("Analysis text without tools."),
		contentResponse(`{"confidence":85,"should_refine":false}`),
		contentResponse("not json at all"),
	}}

	orch := NewOrchestrator(client, &fakeExecutor{}, fakeSchemas{}, agentConfig())
	result := orch.Run(context.Background(), RunRequest{Symbol: "AAPL", AnalysisType: models.AnalysisStock})

	if result.Error != "" {
		t.Fatalf("parse failure must degrade, not fail: %s", result.Error)
	}
	rec := result.Recommendation
	if rec == nil || rec.Recommendation != models.RecHold || rec.Confidence != 30 {
		t.Errorf("degraded recommendation = %+v", rec)
	}
}

func TestRunEmptyCompletionsExhaustBudget(t *testing.T) {
	// Model keeps returning empty content with a stop reason; the run
	// must fail with an explicit budget error, not hang.
	client := &scriptedClient{responses: []*llm.Response{
		{Content: "", FinishReason: openai.FinishReasonStop},
	}}

	orch := NewOrchestrator(client, &fakeExecutor{}, fakeSchemas{}, agentConfig())
	result := orch.Run(context.Background(), RunRequest{Symbol: "AAPL", AnalysisType: models.AnalysisStock})

	if result.Error == "" {
		t.Fatal("expected budget-exhaustion error")
	}
	if !strings.Contains(result.Error, "no content") {
		t.Errorf("error = %s", result.Error)
	}
}

func TestStateTransitions(t *testing.T) {
	s := NewState("sys", "user", 15, 8)

	if s.Phase != PhaseGathering {
		t.Fatalf("initial phase = %s", s.Phase)
	}
	if err := s.TransitionTo(PhaseReflecting); err == nil {
		t.Error("gathering -> reflecting should be rejected")
	}
	if err := s.TransitionTo(PhaseAnalyzing); err != nil {
		t.Fatalf("gathering -> analyzing: %v", err)
	}
	if err := s.TransitionTo(PhaseReflecting); err != nil {
		t.Fatalf("analyzing -> reflecting: %v", err)
	}
	if err := s.TransitionTo(PhaseFinalizing); err != nil {
		t.Fatalf("reflecting -> finalizing: %v", err)
	}
	if err := s.TransitionTo(PhaseGathering); err == nil {
		t.Error("finalizing is terminal")
	}
}

func TestStateForceFinalize(t *testing.T) {
	s := NewState("sys", "user", 15, 8)

	if s.ShouldForceFinalize() {
		t.Error("fresh state should not force finalize")
	}

	audit := make([]models.ToolCall, 8)
	for i := range audit {
		audit[i] = models.ToolCall{Name: "get_quote", Result: []byte(`{}`)}
	}
	s.RecordToolRound(nil, audit)

	if !s.ShouldForceFinalize() {
		t.Error("threshold reached, should force finalize")
	}
	if s.RemainingToolBudget() != 7 {
		t.Errorf("remaining budget = %d, want 7", s.RemainingToolBudget())
	}
	if len(s.GatheredData) != 1 {
		t.Errorf("gathered data entries = %d, want 1 (keyed by name)", len(s.GatheredData))
	}
}
