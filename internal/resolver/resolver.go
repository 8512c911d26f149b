// Package resolver implements ordered fallback across data providers
// for categories where availability varies by subscription tier and
// symbol. A hard failure here would make a whole analysis unusable
// whenever the first-choice source lacks data for an obscure symbol,
// so exhaustion yields an empty result, never an error.
package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/alphalens/alphalens/pkg/logger"
	"github.com/alphalens/alphalens/pkg/models"
)

// Attempt records one provider try
type Attempt struct {
	Source string `json:"source"`
	Status string `json:"status"` // success or failed
	Error  string `json:"error,omitempty"`
}

// Result carries the winning data plus the full trace of attempts
type Result[T any] struct {
	Data          []T       `json:"data"`
	Sources       []Attempt `json:"sources"`
	PrimarySource string    `json:"primary_source"` // "None" when every source failed or was empty
}

// Source is one named provider in a fallback chain
type Source[T any] struct {
	Name  string
	Fetch func(ctx context.Context, symbol string) ([]T, error)
}

// Resolve tries sources in order. A thrown error records a failed
// attempt and continues; a structurally valid but empty result records
// a success-with-no-data attempt and continues; the first non-empty
// result wins. Exhaustion returns an empty Result with PrimarySource
// "None" rather than an error.
func Resolve[T any](ctx context.Context, symbol string, sources []Source[T]) Result[T] {
	res := Result[T]{PrimarySource: "None"}

	for _, src := range sources {
		data, err := src.Fetch(ctx, symbol)
		if err != nil {
			logger.Debug("resolver source failed",
				zap.String("source", src.Name),
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			res.Sources = append(res.Sources, Attempt{
				Source: src.Name,
				Status: "failed",
				Error:  err.Error(),
			})
			continue
		}

		if len(data) == 0 {
			// Empty is not a hard success; keep trying
			res.Sources = append(res.Sources, Attempt{
				Source: src.Name,
				Status: "success",
				Error:  "No data returned",
			})
			continue
		}

		res.Sources = append(res.Sources, Attempt{Source: src.Name, Status: "success"})
		res.Data = data
		res.PrimarySource = src.Name
		return res
	}

	logger.Debug("resolver exhausted all sources",
		zap.String("symbol", symbol),
		zap.Int("attempts", len(res.Sources)),
	)
	return res
}

// EarningsChain builds the earnings fallback order from whichever
// clients are configured: FMP, then Finnhub, then Yahoo. Nil fetchers
// are skipped so a missing API key just shortens the chain.
func EarningsChain(fmp, finnhub, yahoo func(ctx context.Context, symbol string) ([]models.EarningsEvent, error)) []Source[models.EarningsEvent] {
	return chain(
		Source[models.EarningsEvent]{Name: "fmp", Fetch: fmp},
		Source[models.EarningsEvent]{Name: "finnhub", Fetch: finnhub},
		Source[models.EarningsEvent]{Name: "yahoo", Fetch: yahoo},
	)
}

// RatingsChain builds the analyst-ratings fallback order: FMP, then
// Finnhub.
func RatingsChain(fmp, finnhub func(ctx context.Context, symbol string) ([]models.AnalystRating, error)) []Source[models.AnalystRating] {
	return chain(
		Source[models.AnalystRating]{Name: "fmp", Fetch: fmp},
		Source[models.AnalystRating]{Name: "finnhub", Fetch: finnhub},
	)
}

func chain[T any](sources ...Source[T]) []Source[T] {
	out := make([]Source[T], 0, len(sources))
	for _, s := range sources {
		if s.Fetch != nil {
			out = append(out, s)
		}
	}
	return out
}
