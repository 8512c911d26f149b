package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/alphalens/alphalens/pkg/models"
)

func TestResolve(t *testing.T) {
	ctx := context.Background()

	event := models.EarningsEvent{Symbol: "AAPL", Date: "2026-10-29"}

	failing := func(ctx context.Context, symbol string) ([]models.EarningsEvent, error) {
		return nil, errors.New("http 429: rate limited")
	}
	empty := func(ctx context.Context, symbol string) ([]models.EarningsEvent, error) {
		return nil, nil
	}
	full := func(ctx context.Context, symbol string) ([]models.EarningsEvent, error) {
		return []models.EarningsEvent{event}, nil
	}

	t.Run("fail then empty then win", func(t *testing.T) {
		res := Resolve(ctx, "AAPL", []Source[models.EarningsEvent]{
			{Name: "a", Fetch: failing},
			{Name: "b", Fetch: empty},
			{Name: "c", Fetch: full},
		})

		if res.PrimarySource != "c" {
			t.Fatalf("primary source = %q, want c", res.PrimarySource)
		}
		if len(res.Data) != 1 || res.Data[0].Symbol != "AAPL" {
			t.Fatalf("unexpected data: %+v", res.Data)
		}
		if len(res.Sources) != 3 {
			t.Fatalf("attempts = %d, want 3", len(res.Sources))
		}
		if res.Sources[0].Status != "failed" || res.Sources[0].Error == "" {
			t.Errorf("attempt a = %+v, want failed with error", res.Sources[0])
		}
		if res.Sources[1].Status != "success" || res.Sources[1].Error != "No data returned" {
			t.Errorf("attempt b = %+v, want empty success", res.Sources[1])
		}
		if res.Sources[2].Status != "success" || res.Sources[2].Error != "" {
			t.Errorf("attempt c = %+v, want clean success", res.Sources[2])
		}
	})

	t.Run("winner short-circuits remaining sources", func(t *testing.T) {
		called := false
		spy := func(ctx context.Context, symbol string) ([]models.EarningsEvent, error) {
			called = true
			return nil, nil
		}
		res := Resolve(ctx, "AAPL", []Source[models.EarningsEvent]{
			{Name: "a", Fetch: full},
			{Name: "b", Fetch: spy},
		})
		if res.PrimarySource != "a" {
			t.Fatalf("primary source = %q, want a", res.PrimarySource)
		}
		if called {
			t.Error("second source was fetched after first succeeded")
		}
	})

	t.Run("exhaustion yields empty result not error", func(t *testing.T) {
		res := Resolve(ctx, "ZZZZ", []Source[models.EarningsEvent]{
			{Name: "a", Fetch: failing},
			{Name: "b", Fetch: empty},
		})
		if res.PrimarySource != "None" {
			t.Errorf("primary source = %q, want None", res.PrimarySource)
		}
		if len(res.Data) != 0 {
			t.Errorf("data = %+v, want empty", res.Data)
		}
		if len(res.Sources) != 2 {
			t.Errorf("attempts = %d, want 2", len(res.Sources))
		}
	})

	t.Run("no sources", func(t *testing.T) {
		res := Resolve[models.EarningsEvent](ctx, "AAPL", nil)
		if res.PrimarySource != "None" || len(res.Data) != 0 {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("chain skips nil fetchers", func(t *testing.T) {
		sources := EarningsChain(full, nil, empty)
		if len(sources) != 2 {
			t.Fatalf("chain length = %d, want 2", len(sources))
		}
		if sources[0].Name != "fmp" || sources[1].Name != "yahoo" {
			t.Errorf("chain order = %s, %s", sources[0].Name, sources[1].Name)
		}
	})
}
