// Package toolkit exposes market data, indicators and knowledge lookups
// as named tools the agent invokes through function calling. The
// registry owns dispatch and metrics, the executor owns parallelism
// and timeouts, and this file owns the actual data semantics.
package toolkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alphalens/alphalens/internal/indicators"
	"github.com/alphalens/alphalens/internal/resolver"
	"github.com/alphalens/alphalens/pkg/models"
)

// StockData is the full-service equities provider (FMP in production)
type StockData interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	HistoricalBars(ctx context.Context, symbol string, limit int) ([]models.Bar, error)
	StockNews(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error)
	EarningsCalendar(ctx context.Context, symbol string) ([]models.EarningsEvent, error)
	AnalystRatings(ctx context.Context, symbol string) ([]models.AnalystRating, error)
	InsiderTrades(ctx context.Context, symbol string, limit int) ([]models.InsiderTrade, error)
	InstitutionalHolders(ctx context.Context, symbol string) ([]models.InstitutionalHolding, error)
	EconomicCalendar(ctx context.Context, from, to time.Time) ([]models.EconomicEvent, error)
}

// SecondaryStockData is the free-tier backup provider (Finnhub)
type SecondaryStockData interface {
	Earnings(ctx context.Context, symbol string) ([]models.EarningsEvent, error)
	Ratings(ctx context.Context, symbol string) ([]models.AnalystRating, error)
	CompanyNews(ctx context.Context, symbol string, days int) ([]models.NewsArticle, error)
}

// KeylessStockData is the no-credentials last resort (Yahoo)
type KeylessStockData interface {
	Earnings(ctx context.Context, symbol string) ([]models.EarningsEvent, error)
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// OptionsData serves chains and flow (Tradier)
type OptionsData interface {
	OptionsChain(ctx context.Context, symbol, expiration string) ([]models.OptionContract, error)
	UnusualActivity(ctx context.Context, symbol string, minRatio float64, limit int) ([]models.OptionsFlowEntry, error)
}

// ForexData serves currency pairs (Alpha Vantage)
type ForexData interface {
	ForexQuote(ctx context.Context, pair string) (*models.ForexQuote, error)
	ForexDaily(ctx context.Context, pair string, limit int) ([]models.Bar, error)
}

// Deps bundles the providers a Toolkit draws from. Nil entries simply
// remove the corresponding tools or shorten fallback chains.
type Deps struct {
	Stock     StockData
	Secondary SecondaryStockData
	Keyless   KeylessStockData
	Options   OptionsData
	Forex     ForexData
	Knowledge *KnowledgeBase
}

// Toolkit implements the data semantics behind every registered tool
type Toolkit struct {
	stock     StockData
	secondary SecondaryStockData
	keyless   KeylessStockData
	options   OptionsData
	forex     ForexData
	knowledge *KnowledgeBase
	calc      *indicators.Calculator
}

// NewToolkit creates the toolkit facade
func NewToolkit(deps Deps) *Toolkit {
	kb := deps.Knowledge
	if kb == nil {
		kb = NewKnowledgeBase()
	}
	return &Toolkit{
		stock:     deps.Stock,
		secondary: deps.Secondary,
		keyless:   deps.Keyless,
		options:   deps.Options,
		forex:     deps.Forex,
		knowledge: kb,
		calc:      indicators.NewCalculator(),
	}
}

// GetQuote returns the latest stock quote, falling back to the keyless
// provider when the primary is unavailable
func (t *Toolkit) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if t.stock != nil {
		quote, err := t.stock.Quote(ctx, symbol)
		if err == nil {
			return quote, nil
		}
		if t.keyless == nil {
			return nil, err
		}
	}
	if t.keyless == nil {
		return nil, fmt.Errorf("no quote provider configured")
	}
	return t.keyless.Quote(ctx, symbol)
}

// GetHistoricalBars returns daily OHLCV bars, oldest first
func (t *Toolkit) GetHistoricalBars(ctx context.Context, symbol string, days int) ([]models.Bar, error) {
	if t.stock == nil {
		return nil, fmt.Errorf("no historical data provider configured")
	}
	return t.stock.HistoricalBars(ctx, symbol, days)
}

// GetIndicators computes the standard technical readout from daily bars
func (t *Toolkit) GetIndicators(ctx context.Context, symbol string, days int) (*indicators.Summary, error) {
	bars, err := t.GetHistoricalBars(ctx, symbol, days)
	if err != nil {
		return nil, fmt.Errorf("fetch bars for indicators: %w", err)
	}
	return t.calc.Summarize(symbol, bars)
}

// SupportResistanceLevels finds recent swing levels from daily bars
type SupportResistanceLevels struct {
	Symbol     string    `json:"symbol"`
	Support    []float64 `json:"support"`
	Resistance []float64 `json:"resistance"`
}

// GetSupportResistance finds swing lows and highs over the lookback
func (t *Toolkit) GetSupportResistance(ctx context.Context, symbol string, lookback int) (*SupportResistanceLevels, error) {
	bars, err := t.GetHistoricalBars(ctx, symbol, lookback)
	if err != nil {
		return nil, fmt.Errorf("fetch bars for levels: %w", err)
	}
	support, resistance := t.calc.SupportResistance(bars, lookback)
	return &SupportResistanceLevels{Symbol: symbol, Support: support, Resistance: resistance}, nil
}

// GetNews returns recent news, preferring the primary provider and
// falling back to company news from the secondary
func (t *Toolkit) GetNews(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	if t.stock != nil {
		articles, err := t.stock.StockNews(ctx, symbol, limit)
		if err == nil && len(articles) > 0 {
			return articles, nil
		}
		if t.secondary == nil {
			return articles, err
		}
	}
	if t.secondary == nil {
		return nil, fmt.Errorf("no news provider configured")
	}
	return t.secondary.CompanyNews(ctx, symbol, 7)
}

// GetEarnings resolves earnings events through the provider chain.
// Provider outages and empty tiers degrade to the next source, never
// to a failed tool call.
func (t *Toolkit) GetEarnings(ctx context.Context, symbol string) resolver.Result[models.EarningsEvent] {
	var fmp, finnhub, yahoo func(ctx context.Context, symbol string) ([]models.EarningsEvent, error)
	if t.stock != nil {
		fmp = t.stock.EarningsCalendar
	}
	if t.secondary != nil {
		finnhub = t.secondary.Earnings
	}
	if t.keyless != nil {
		yahoo = t.keyless.Earnings
	}
	return resolver.Resolve(ctx, symbol, resolver.EarningsChain(fmp, finnhub, yahoo))
}

// GetAnalystRatings resolves analyst actions through the provider chain
func (t *Toolkit) GetAnalystRatings(ctx context.Context, symbol string) resolver.Result[models.AnalystRating] {
	var fmp, finnhub func(ctx context.Context, symbol string) ([]models.AnalystRating, error)
	if t.stock != nil {
		fmp = t.stock.AnalystRatings
	}
	if t.secondary != nil {
		finnhub = t.secondary.Ratings
	}
	return resolver.Resolve(ctx, symbol, resolver.RatingsChain(fmp, finnhub))
}

// GetInsiderTrades returns recent insider filings
func (t *Toolkit) GetInsiderTrades(ctx context.Context, symbol string, limit int) ([]models.InsiderTrade, error) {
	if t.stock == nil {
		return nil, fmt.Errorf("no insider data provider configured")
	}
	return t.stock.InsiderTrades(ctx, symbol, limit)
}

// GetInstitutionalHolders returns the latest 13F snapshot
func (t *Toolkit) GetInstitutionalHolders(ctx context.Context, symbol string) ([]models.InstitutionalHolding, error) {
	if t.stock == nil {
		return nil, fmt.Errorf("no institutional data provider configured")
	}
	return t.stock.InstitutionalHolders(ctx, symbol)
}

// GetOptionsChain returns the chain for an expiration; empty expiration
// means the nearest one
func (t *Toolkit) GetOptionsChain(ctx context.Context, symbol, expiration string) ([]models.OptionContract, error) {
	if t.options == nil {
		return nil, fmt.Errorf("no options data provider configured")
	}
	return t.options.OptionsChain(ctx, symbol, expiration)
}

// GetUnusualOptionsActivity flags contracts with volume well above open
// interest
func (t *Toolkit) GetUnusualOptionsActivity(ctx context.Context, symbol string) ([]models.OptionsFlowEntry, error) {
	if t.options == nil {
		return nil, fmt.Errorf("no options data provider configured")
	}
	return t.options.UnusualActivity(ctx, symbol, 2.0, 20)
}

// GetForexQuote returns the spot rate for a currency pair
func (t *Toolkit) GetForexQuote(ctx context.Context, pair string) (*models.ForexQuote, error) {
	if t.forex == nil {
		return nil, fmt.Errorf("no forex data provider configured")
	}
	return t.forex.ForexQuote(ctx, normalizePair(pair))
}

// GetForexBars returns daily bars for a currency pair, oldest first
func (t *Toolkit) GetForexBars(ctx context.Context, pair string, limit int) ([]models.Bar, error) {
	if t.forex == nil {
		return nil, fmt.Errorf("no forex data provider configured")
	}
	bars, err := t.forex.ForexDaily(ctx, normalizePair(pair), limit)
	if err != nil {
		return nil, err
	}
	// Alpha Vantage returns newest first; indicators expect oldest first
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// GetForexIndicators computes the technical readout for a currency pair
func (t *Toolkit) GetForexIndicators(ctx context.Context, pair string, days int) (*indicators.Summary, error) {
	bars, err := t.GetForexBars(ctx, pair, days)
	if err != nil {
		return nil, fmt.Errorf("fetch forex bars for indicators: %w", err)
	}
	return t.calc.Summarize(pair, bars)
}

// GetEconomicCalendar returns macro events for the next N days
func (t *Toolkit) GetEconomicCalendar(ctx context.Context, days int) ([]models.EconomicEvent, error) {
	if t.stock == nil {
		return nil, fmt.Errorf("no economic calendar provider configured")
	}
	now := time.Now().UTC()
	return t.stock.EconomicCalendar(ctx, now, now.AddDate(0, 0, days))
}

// SearchKnowledge queries the built-in trading strategy notes
func (t *Toolkit) SearchKnowledge(query string, limit int) []KnowledgeEntry {
	return t.knowledge.Search(query, limit)
}

// normalizePair uppercases and strips separators so EUR/USD, eur-usd
// and EURUSD all address the same pair
func normalizePair(pair string) string {
	pair = strings.ToUpper(pair)
	pair = strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(pair)
	return pair
}
