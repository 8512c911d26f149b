package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/alphalens/alphalens/internal/adapters/config"
	"github.com/alphalens/alphalens/internal/llm"
	"github.com/alphalens/alphalens/internal/toolkit"
	"github.com/alphalens/alphalens/pkg/logger"
	"github.com/alphalens/alphalens/pkg/models"
)

// BatchExecutor is the slice of the tool executor the orchestrator
// needs
type BatchExecutor interface {
	ExecuteBatch(ctx context.Context, calls []openai.ToolCall) *toolkit.ExecutionResult
}

// ToolSchemas provides function-calling definitions by tool name
type ToolSchemas interface {
	OpenAITools(names []string) []openai.Tool
	AllOpenAITools() []openai.Tool
}

// ProgressFunc receives live progress for the polling UI. Called
// zero or more times per run, always with the full accumulated
// tool-call list.
type ProgressFunc func(progress int, step string, toolCalls []models.ToolCall)

// RunRequest describes one analysis run
type RunRequest struct {
	Symbol       string
	AnalysisType models.AnalysisType
	UserContext  string
	Timeframe    string
	Progress     ProgressFunc
}

// Orchestrator drives the LLM through tool gathering, reflection and
// structured extraction. Run always returns a result, never an error:
// failures are captured in AgentResult.Error so the job runner is the
// sole retry boundary.
type Orchestrator struct {
	client    CompletionClient
	executor  BatchExecutor
	schemas   ToolSchemas
	reflector *Reflector
	parser    *Parser

	maxIterations   int
	maxToolCalls    int
	forceFinalizeAt int
}

// NewOrchestrator wires the orchestrator from its collaborators
func NewOrchestrator(client CompletionClient, executor BatchExecutor, schemas ToolSchemas, cfg config.AgentConfig) *Orchestrator {
	return &Orchestrator{
		client:          client,
		executor:        executor,
		schemas:         schemas,
		reflector:       NewReflector(client, cfg.MaxReflections),
		parser:          NewParser(),
		maxIterations:   cfg.MaxIterations,
		maxToolCalls:    cfg.MaxToolCalls,
		forceFinalizeAt: cfg.ForceFinalizeAt,
	}
}

// Run executes one full analysis. Any panic inside the loop is
// recovered into a failed result with the accumulated audit trail.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (result *models.AgentResult) {
	state := NewState(
		systemPromptFor(req.AnalysisType),
		buildUserPrompt(req.Symbol, req.AnalysisType, req.UserContext, req.Timeframe, time.Now().UTC()),
		o.maxToolCalls,
		o.forceFinalizeAt,
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("agent run panicked",
				zap.String("symbol", req.Symbol),
				zap.Any("panic", r),
			)
			result = &models.AgentResult{
				ToolCalls: state.Audit,
				Error:     fmt.Sprintf("internal error during analysis: %v", r),
			}
		}
	}()

	logger.Info("agent run starting",
		zap.String("symbol", req.Symbol),
		zap.String("analysis_type", string(req.AnalysisType)),
	)
	o.progress(req, state, 5, "Starting analysis")

	tools := o.toolsFor(req.AnalysisType)

	initialAnalysis, err := o.gather(ctx, req, state, tools)
	if err != nil {
		return &models.AgentResult{ToolCalls: state.Audit, Error: err.Error()}
	}

	if err := state.TransitionTo(PhaseAnalyzing); err != nil {
		return &models.AgentResult{ToolCalls: state.Audit, Error: err.Error()}
	}
	o.progress(req, state, 50, "Initial analysis complete")

	state.TransitionTo(PhaseReflecting)
	o.progress(req, state, 55, "Reviewing analysis")
	reflection := o.reflector.Reflect(ctx, initialAnalysis, state.GatheredSummary(0), func() {
		o.progress(req, state, 60, "Critique complete")
	})
	o.progress(req, state, 70, "Review complete")

	state.TransitionTo(PhaseFinalizing)
	o.progress(req, state, 80, "Preparing recommendation")
	recommendation := o.finalize(ctx, req, state, reflection.FinalText())
	o.progress(req, state, 85, "Validating recommendation")

	critiqueJSON := ""
	if reflection.Critique != nil {
		if b, err := json.Marshal(reflection.Critique); err == nil {
			critiqueJSON = string(b)
		}
	}

	o.progress(req, state, 100, "Analysis complete")
	logger.Info("agent run finished",
		zap.String("symbol", req.Symbol),
		zap.String("recommendation", string(recommendation.Recommendation)),
		zap.Int("confidence", recommendation.Confidence),
		zap.Int("tool_calls", state.ToolCallCount),
	)

	return &models.AgentResult{
		Recommendation:  recommendation,
		ToolCalls:       state.Audit,
		InitialAnalysis: initialAnalysis,
		Critique:        critiqueJSON,
	}
}

// toolsFor builds the tool schema set for one analysis type. Forex and
// stock expose their curated sets; every other type gets the union of
// all registered tools.
func (o *Orchestrator) toolsFor(analysisType models.AnalysisType) []openai.Tool {
	names := toolkit.ToolNamesFor(analysisType)
	if names == nil {
		return o.schemas.AllOpenAITools()
	}
	return o.schemas.OpenAITools(names)
}

// gather runs the bounded tool loop until the model produces analysis
// content. Returns the initial analysis text or an error when every
// budget is spent with nothing usable.
func (o *Orchestrator) gather(ctx context.Context, req RunRequest, state *State, tools []openai.Tool) (string, error) {
	forced := false

	for iteration := 0; iteration < o.maxIterations; iteration++ {
		callTools := tools
		if state.ShouldForceFinalize() {
			// Budget spent: strip tools and demand an answer, once
			callTools = nil
			if !forced {
				forced = true
				state.Append(openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleUser,
					Content: forceAnswerPrompt,
				})
				logger.Info("forcing finalization",
					zap.String("symbol", req.Symbol),
					zap.Int("tool_calls", state.ToolCallCount),
				)
			}
		}

		resp, err := o.client.Complete(ctx, &llm.Request{
			Task:     llm.TaskAnalysis,
			Messages: state.Messages,
			Tools:    callTools,
		})
		if err != nil {
			return "", fmt.Errorf("analysis failed after %d iterations and %d tool calls: %w",
				iteration, state.ToolCallCount, err)
		}

		if resp.WantsTools() && callTools != nil {
			calls := resp.ToolCalls
			if budget := state.RemainingToolBudget(); len(calls) > budget {
				calls = calls[:budget]
			}

			state.Append(openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   resp.Content,
				ToolCalls: calls,
			})

			execResult := o.executor.ExecuteBatch(ctx, calls)
			state.RecordToolRound(execResult.Messages, execResult.Audit)

			// Gathering progress ramps toward the 50 milestone as the
			// tool budget is consumed
			gatherProgress := 5 + (40*state.ToolCallCount)/o.maxToolCalls
			o.progress(req, state, gatherProgress, "Gathering market data ("+strconv.Itoa(state.ToolCallCount)+" lookups)")
			continue
		}

		if resp.Content != "" {
			return resp.Content, nil
		}

		logger.Warn("empty completion during gathering",
			zap.String("symbol", req.Symbol),
			zap.String("finish_reason", string(resp.FinishReason)),
			zap.Int("iteration", iteration),
		)
	}

	// One last demand for an answer before giving up
	state.Append(openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: forceAnswerPrompt,
	})
	resp, err := o.client.Complete(ctx, &llm.Request{
		Task:     llm.TaskAnalysis,
		Messages: state.Messages,
	})
	if err == nil && resp.Content != "" {
		return resp.Content, nil
	}

	return "", fmt.Errorf("analysis produced no content after %d iterations and %d tool calls",
		o.maxIterations, state.ToolCallCount)
}

// finalize asks for the structured recommendation and parses it. A
// failed extraction call falls back to parsing the analysis text
// itself, and the parser degrades rather than failing from there.
func (o *Orchestrator) finalize(ctx context.Context, req RunRequest, state *State, analysis string) *models.TradeRecommendation {
	state.Append(openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: finalizePrompt(analysis),
	})

	raw := analysis
	resp, err := o.client.Complete(ctx, &llm.Request{
		Task:     llm.TaskRecommendation,
		Messages: state.Messages,
	})
	if err != nil {
		logger.Warn("structured extraction call failed, parsing analysis text directly",
			zap.String("symbol", req.Symbol),
			zap.Error(err),
		)
	} else if resp.Content != "" {
		raw = resp.Content
	}

	return o.parser.Parse(raw, req.Symbol, req.AnalysisType, o.gatheredQuotePrice(state))
}

// gatheredQuotePrice pulls the price from a gathered quote result so
// the parser can backfill current_price
func (o *Orchestrator) gatheredQuotePrice(state *State) *float64 {
	for _, tool := range []string{"get_quote", "get_forex_quote"} {
		raw, ok := state.GatheredData[tool]
		if !ok {
			continue
		}
		var payload struct {
			Price interface{} `json:"price"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}
		if price, ok := toFloat(payload.Price); ok {
			return &price
		}
	}
	return nil
}

// toFloat accepts both JSON numbers and decimal-as-string encodings
func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func (o *Orchestrator) progress(req RunRequest, state *State, progress int, step string) {
	if req.Progress == nil {
		return
	}
	req.Progress(progress, step, state.Audit)
}
