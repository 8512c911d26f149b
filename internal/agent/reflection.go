package agent

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/alphalens/alphalens/internal/llm"
	"github.com/alphalens/alphalens/pkg/logger"
	"github.com/alphalens/alphalens/pkg/models"
)

const (
	defaultMaxReflections = 2
	refineStopConfidence  = 80
)

// CompletionClient is the slice of the LLM client the agent needs
type CompletionClient interface {
	Complete(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// Reflector runs the bounded critique-then-refine loop over a draft
// analysis. It never fails: LLM errors and unparseable critiques
// degrade to "keep the draft as is" so reflection can never abort the
// outer run.
type Reflector struct {
	client        CompletionClient
	maxIterations int
}

// NewReflector creates a reflector; maxIterations <= 0 uses the default
func NewReflector(client CompletionClient, maxIterations int) *Reflector {
	if maxIterations <= 0 {
		maxIterations = defaultMaxReflections
	}
	return &Reflector{client: client, maxIterations: maxIterations}
}

// Reflect critiques and optionally refines the analysis against the
// gathered data summary. onCritique, if non-nil, is called once after
// the first critique lands so the caller can report progress.
func (r *Reflector) Reflect(ctx context.Context, analysis, gatheredSummary string, onCritique func()) *models.ReflectionResult {
	result := &models.ReflectionResult{Original: analysis}
	current := analysis

	for i := 0; i < r.maxIterations; i++ {
		critique := r.critique(ctx, current, gatheredSummary)
		result.Critique = critique
		result.Iterations = i + 1
		if i == 0 && onCritique != nil {
			onCritique()
		}

		if !critique.ShouldRefine || critique.Confidence >= refineStopConfidence {
			logger.Debug("reflection stopped",
				zap.Int("iteration", i+1),
				zap.Int("confidence", critique.Confidence),
				zap.Bool("should_refine", critique.ShouldRefine),
			)
			break
		}

		refined, ok := r.refine(ctx, current, critique)
		if !ok {
			break
		}
		current = refined
		result.Refined = refined
	}

	return result
}

// critique asks for a structured review; any failure yields the
// conservative default critique
func (r *Reflector) critique(ctx context.Context, analysis, gatheredSummary string) *models.AnalysisCritique {
	resp, err := r.client.Complete(ctx, &llm.Request{
		Task: llm.TaskReflection,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a rigorous reviewer of trading analyses. You respond only with the requested JSON object."},
			{Role: openai.ChatMessageRoleUser, Content: critiquePrompt(analysis, gatheredSummary)},
		},
	})
	if err != nil {
		logger.Warn("critique request failed, using default critique", zap.Error(err))
		return defaultCritique()
	}

	span, ok := extractJSON(resp.Content)
	if !ok {
		logger.Warn("critique response carried no JSON, using default critique")
		return defaultCritique()
	}

	var critique models.AnalysisCritique
	if err := json.Unmarshal([]byte(span), &critique); err != nil {
		logger.Warn("critique JSON failed to decode, using default critique", zap.Error(err))
		return defaultCritique()
	}

	if critique.Confidence < 0 {
		critique.Confidence = 0
	}
	if critique.Confidence > 100 {
		critique.Confidence = 100
	}
	return &critique
}

func (r *Reflector) refine(ctx context.Context, analysis string, critique *models.AnalysisCritique) (string, bool) {
	resp, err := r.client.Complete(ctx, &llm.Request{
		Task: llm.TaskAnalysis,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a professional trading analyst improving a draft based on review feedback."},
			{Role: openai.ChatMessageRoleUser, Content: refinePrompt(analysis, critique)},
		},
	})
	if err != nil {
		logger.Warn("refine request failed, keeping current draft", zap.Error(err))
		return "", false
	}
	if resp.Content == "" {
		return "", false
	}
	return resp.Content, true
}

func defaultCritique() *models.AnalysisCritique {
	return &models.AnalysisCritique{
		Confidence:   50,
		ShouldRefine: false,
	}
}
