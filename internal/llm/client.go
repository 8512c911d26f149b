// Package llm wraps chat-completion providers behind a task-aware
// client. Callers name the task (analysis, reflection, chat,
// recommendation) and the client picks the model and temperature;
// a failed primary call is retried once against the fallback
// provider before the error surfaces.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/alphalens/alphalens/internal/adapters/config"
	"github.com/alphalens/alphalens/pkg/logger"
)

// TaskType selects the model profile for a request
type TaskType string

const (
	TaskAnalysis       TaskType = "analysis"
	TaskReflection     TaskType = "reflection"
	TaskChat           TaskType = "chat"
	TaskRecommendation TaskType = "recommendation"
)

// Request is a provider-agnostic chat request. Messages already
// include any tool results from previous turns.
type Request struct {
	Task     TaskType
	Messages []openai.ChatCompletionMessage
	Tools    []openai.Tool
}

// Response is the normalized completion shape the agent consumes
type Response struct {
	Content      string
	ToolCalls    []openai.ToolCall
	FinishReason openai.FinishReason
	Model        string
	TotalTokens  int
}

// WantsTools reports whether the model asked for tool executions
// instead of (or before) answering
func (r *Response) WantsTools() bool {
	return len(r.ToolCalls) > 0
}

// Client routes chat requests to a primary provider with a single-hop
// fallback
type Client struct {
	primary  *openai.Client
	fallback *openai.Client

	cfg *config.AIConfig
}

// New builds the client from configuration. The fallback client is nil
// when no fallback API key is configured.
func New(cfg *config.AIConfig) (*Client, error) {
	if cfg.Primary.APIKey == "" {
		return nil, fmt.Errorf("primary AI provider API key not configured")
	}

	c := &Client{
		primary: newProviderClient(cfg.Primary, cfg.RequestTimeout),
		cfg:     cfg,
	}
	if cfg.Fallback.APIKey != "" {
		c.fallback = newProviderClient(cfg.Fallback, cfg.RequestTimeout)
	}

	return c, nil
}

func newProviderClient(p config.AIProviderConfig, timeout time.Duration) *openai.Client {
	conf := openai.DefaultConfig(p.APIKey)
	if p.BaseURL != "" {
		conf.BaseURL = p.BaseURL
	}
	conf.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(conf)
}

// Complete sends the request to the primary provider and, on failure,
// retries once against the fallback with the fallback model. Fallback
// requests never carry tools because fallback providers do not all
// support function calling.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	task := c.cfg.TaskConfig(string(req.Task))

	resp, err := c.call(ctx, c.primary, task.Model, task.Temperature, req.Messages, req.Tools)
	if err == nil {
		return resp, nil
	}

	if c.fallback == nil {
		return nil, fmt.Errorf("completion failed (task %s): %w", req.Task, err)
	}

	logger.Warn("primary AI provider failed, trying fallback",
		zap.String("task", string(req.Task)),
		zap.String("primary_model", task.Model),
		zap.String("fallback_model", c.cfg.FallbackModel),
		zap.Error(err),
	)

	resp, fbErr := c.call(ctx, c.fallback, c.cfg.FallbackModel, task.Temperature, req.Messages, nil)
	if fbErr != nil {
		return nil, fmt.Errorf("both providers failed (task %s): primary: %v, fallback: %w", req.Task, err, fbErr)
	}
	return resp, nil
}

// CompleteStream streams the completion for interactive chat, invoking
// onDelta for every content chunk. Streaming requests go to the primary
// provider only and never carry tools.
func (c *Client) CompleteStream(ctx context.Context, req *Request, onDelta func(chunk string)) error {
	task := c.cfg.TaskConfig(string(req.Task))

	stream, err := c.primary.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       task.Model,
		Temperature: task.Temperature,
		Messages:    req.Messages,
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("chat completion stream failed (task %s): %w", req.Task, err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("chat completion stream read failed: %w", err)
		}
		if len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
			onDelta(resp.Choices[0].Delta.Content)
		}
	}
}

func (c *Client) call(ctx context.Context, client *openai.Client, model string, temperature float32, messages []openai.ChatCompletionMessage, tools []openai.Tool) (*Response, error) {
	startTime := time.Now()
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		Messages:    messages,
		Tools:       tools,
	})
	latency := time.Since(startTime)

	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]

	logger.Debug("chat completion",
		zap.String("model", model),
		zap.Duration("latency", latency),
		zap.String("finish_reason", string(choice.FinishReason)),
		zap.Int("tool_calls", len(choice.Message.ToolCalls)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return &Response{
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		Model:        resp.Model,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}
