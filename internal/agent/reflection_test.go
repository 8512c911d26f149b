package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/alphalens/alphalens/internal/llm"
)

func TestReflect(t *testing.T) {
	ctx := context.Background()

	t.Run("confident critique stops immediately", func(t *testing.T) {
		client := &scriptedClient{responses: []*llm.Response{
			contentResponse(`{"strengths":["solid"],"confidence":85,"should_refine":true}`),
		}}
		r := NewReflector(client, 2)

		result := r.Reflect(ctx, "draft analysis", "", nil)
		if result.Iterations != 1 {
			t.Errorf("iterations = %d, want 1", result.Iterations)
		}
		if result.Refined != "" {
			t.Errorf("no refinement expected, got %q", result.Refined)
		}
		if result.Critique == nil || result.Critique.Confidence != 85 {
			t.Errorf("critique = %+v", result.Critique)
		}
	})

	t.Run("should_refine false stops", func(t *testing.T) {
		client := &scriptedClient{responses: []*llm.Response{
			contentResponse(`{"confidence":40,"should_refine":false}`),
		}}
		r := NewReflector(client, 2)

		result := r.Reflect(ctx, "draft", "", nil)
		if result.Iterations != 1 || result.Refined != "" {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("refine loop runs to cap", func(t *testing.T) {
		client := &scriptedClient{responses: []*llm.Response{
			contentResponse(`{"weaknesses":["thin data"],"confidence":40,"should_refine":true}`),
			contentResponse("refined draft one"),
			contentResponse(`{"weaknesses":["still thin"],"confidence":50,"should_refine":true}`),
			contentResponse("refined draft two"),
		}}
		r := NewReflector(client, 2)

		result := r.Reflect(ctx, "draft", "quote: {}", nil)
		if result.Iterations != 2 {
			t.Errorf("iterations = %d, want 2", result.Iterations)
		}
		if result.Refined != "refined draft two" {
			t.Errorf("refined = %q", result.Refined)
		}
		if result.Original != "draft" {
			t.Errorf("original = %q", result.Original)
		}
		if result.FinalText() != "refined draft two" {
			t.Errorf("final text = %q", result.FinalText())
		}
	})

	t.Run("critique hook fires once across iterations", func(t *testing.T) {
		client := &scriptedClient{responses: []*llm.Response{
			contentResponse(`{"weaknesses":["thin data"],"confidence":40,"should_refine":true}`),
			contentResponse("refined draft one"),
			contentResponse(`{"confidence":50,"should_refine":true}`),
			contentResponse("refined draft two"),
		}}
		r := NewReflector(client, 2)

		calls := 0
		r.Reflect(ctx, "draft", "", func() { calls++ })
		if calls != 1 {
			t.Errorf("onCritique called %d times, want 1", calls)
		}
	})

	t.Run("unparseable critique degrades to default", func(t *testing.T) {
		client := &scriptedClient{responses: []*llm.Response{
			contentResponse("I think it's fine overall."),
		}}
		r := NewReflector(client, 2)

		result := r.Reflect(ctx, "draft", "", nil)
		if result.Critique == nil {
			t.Fatal("critique missing")
		}
		if result.Critique.Confidence != 50 || result.Critique.ShouldRefine {
			t.Errorf("default critique = %+v", result.Critique)
		}
	})

	t.Run("llm error never aborts reflection", func(t *testing.T) {
		client := &scriptedClient{
			responses: []*llm.Response{nil},
			errs:      []error{errors.New("provider down")},
		}
		r := NewReflector(client, 2)

		result := r.Reflect(ctx, "draft", "", nil)
		if result.Critique == nil || result.Critique.ShouldRefine {
			t.Errorf("expected default critique, got %+v", result.Critique)
		}
		if result.FinalText() != "draft" {
			t.Errorf("final text = %q", result.FinalText())
		}
	})
}
