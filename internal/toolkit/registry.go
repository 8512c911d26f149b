package toolkit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alphalens/alphalens/pkg/logger"
	"github.com/alphalens/alphalens/pkg/models"
)

// ToolFunc is the signature for all tool functions
type ToolFunc func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ParamSpec describes one tool parameter for schema generation
type ParamSpec struct {
	Name        string
	Type        string // string, integer, number
	Description string
	Required    bool
	Enum        []string
}

// ToolMetadata contains tool information for introspection and for
// building the function-calling schema
type ToolMetadata struct {
	Name        string
	Description string
	Params      []ParamSpec
	ReturnType  string
}

// MetricsLogger records tool usage for offline analysis
type MetricsLogger interface {
	LogToolUsage(ctx context.Context, toolName string, params interface{}, success bool, executionTimeMs int)
	Close() error
}

// Registry manages all available tools. Dispatch is by name so the
// agent loop never grows a switch statement per tool.
type Registry struct {
	tools         map[string]ToolFunc
	metadata      map[string]ToolMetadata
	order         []string
	toolkit       *Toolkit
	metricsLogger MetricsLogger
}

// NewRegistry creates the registry and registers every tool the
// toolkit's providers can serve
func NewRegistry(tk *Toolkit) *Registry {
	r := &Registry{
		tools:    make(map[string]ToolFunc),
		metadata: make(map[string]ToolMetadata),
		toolkit:  tk,
	}
	r.registerTools()
	return r
}

// SetMetricsLogger sets the optional ClickHouse metrics logger
func (r *Registry) SetMetricsLogger(metricsLogger MetricsLogger) {
	r.metricsLogger = metricsLogger

	if metricsLogger != nil {
		logger.Info("tool registry metrics logger set",
			zap.Int("tools_count", len(r.tools)),
		)
	}
}

// Execute runs a tool by name with given parameters
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	fn, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s (available: %d tools)", name, len(r.tools))
	}

	logger.Debug("executing tool",
		zap.String("tool", name),
		zap.Any("params", params),
	)

	startTime := time.Now()
	result, err := fn(ctx, params)
	duration := time.Since(startTime)
	executionMs := int(duration.Milliseconds())

	if err != nil {
		logger.Warn("tool execution failed",
			zap.String("tool", name),
			zap.Error(err),
			zap.Duration("duration", duration),
		)

		if r.metricsLogger != nil {
			r.metricsLogger.LogToolUsage(ctx, name, params, false, executionMs)
		}

		return nil, fmt.Errorf("tool %s failed: %w", name, err)
	}

	logger.Debug("tool executed",
		zap.String("tool", name),
		zap.Duration("duration", duration),
	)

	if r.metricsLogger != nil {
		r.metricsLogger.LogToolUsage(ctx, name, params, true, executionMs)
	}

	return result, nil
}

// GetMetadata returns metadata for a tool
func (r *Registry) GetMetadata(name string) (ToolMetadata, bool) {
	meta, ok := r.metadata[name]
	return meta, ok
}

// ListTools returns all tool names in registration order
func (r *Registry) ListTools() []string {
	return append([]string(nil), r.order...)
}

// ToolCount returns the number of registered tools
func (r *Registry) ToolCount() int {
	return len(r.tools)
}

// Close flushes the metrics buffer if one is attached
func (r *Registry) Close() error {
	if r.metricsLogger != nil {
		return r.metricsLogger.Close()
	}
	return nil
}

// ToolNamesFor returns the tool names exposed to the model for one
// analysis type. Forex gets the forex tools plus knowledge search,
// stock gets the full stock set, and every other type gets nil,
// meaning all registered tools.
func ToolNamesFor(analysisType models.AnalysisType) []string {
	switch analysisType {
	case models.AnalysisForex:
		return []string{"get_forex_quote", "get_forex_indicators", "get_economic_calendar", "search_knowledge"}
	case models.AnalysisStock:
		return []string{
			"get_quote", "get_indicators", "get_support_resistance", "get_news",
			"get_earnings", "get_analyst_ratings", "get_options_chain", "get_unusual_options_activity",
		}
	default:
		return nil
	}
}

// registerTools registers all available tools with their wrappers.
// This is the only place new tools get added.
func (r *Registry) registerTools() {
	r.register("get_quote", ToolMetadata{
		Description: "Get the latest price quote for a stock symbol including day range, 52-week range, volume and valuation basics",
		Params: []ParamSpec{
			{Name: "symbol", Type: "string", Description: "Stock ticker, e.g. AAPL", Required: true},
		},
		ReturnType: "Quote",
	}, r.wrapGetQuote)

	r.register("get_historical_bars", ToolMetadata{
		Description: "Fetch daily OHLCV bars for a stock symbol, oldest first",
		Params: []ParamSpec{
			{Name: "symbol", Type: "string", Description: "Stock ticker", Required: true},
			{Name: "days", Type: "integer", Description: "Number of trading days (default 90)"},
		},
		ReturnType: "[]Bar",
	}, r.wrapGetHistoricalBars)

	r.register("get_indicators", ToolMetadata{
		Description: "Compute RSI, MACD, Bollinger Bands, EMAs, ATR, trend and volume profile from daily bars",
		Params: []ParamSpec{
			{Name: "symbol", Type: "string", Description: "Stock ticker", Required: true},
			{Name: "days", Type: "integer", Description: "Lookback in trading days (default 90)"},
		},
		ReturnType: "IndicatorSummary",
	}, r.wrapGetIndicators)

	r.register("get_support_resistance", ToolMetadata{
		Description: "Find recent swing support and resistance price levels",
		Params: []ParamSpec{
			{Name: "symbol", Type: "string", Description: "Stock ticker", Required: true},
			{Name: "lookback", Type: "integer", Description: "Bars to scan (default 60)"},
		},
		ReturnType: "SupportResistanceLevels",
	}, r.wrapGetSupportResistance)

	r.register("get_news", ToolMetadata{
		Description: "Fetch recent news articles about a symbol",
		Params: []ParamSpec{
			{Name: "symbol", Type: "string", Description: "Stock ticker", Required: true},
			{Name: "limit", Type: "integer", Description: "Max articles (default 10)"},
		},
		ReturnType: "[]NewsArticle",
	}, r.wrapGetNews)

	r.register("get_earnings", ToolMetadata{
		Description: "Get upcoming and recent earnings dates with estimates. Multiple data sources are tried in order",
		Params: []ParamSpec{
			{Name: "symbol", Type: "string", Description: "Stock ticker", Required: true},
		},
		ReturnType: "EarningsResult",
	}, r.wrapGetEarnings)

	r.register("get_analyst_ratings", ToolMetadata{
		Description: "Get recent analyst ratings and price targets. Multiple data sources are tried in order",
		Params: []ParamSpec{
			{Name: "symbol", Type: "string", Description: "Stock ticker", Required: true},
		},
		ReturnType: "RatingsResult",
	}, r.wrapGetAnalystRatings)

	r.register("get_insider_trades", ToolMetadata{
		Description: "Get recent insider buy and sell filings",
		Params: []ParamSpec{
			{Name: "symbol", Type: "string", Description: "Stock ticker", Required: true},
			{Name: "limit", Type: "integer", Description: "Max filings (default 20)"},
		},
		ReturnType: "[]InsiderTrade",
	}, r.wrapGetInsiderTrades)

	r.register("get_institutional_holders", ToolMetadata{
		Description: "Get the largest institutional holders and their latest position changes",
		Params: []ParamSpec{
			{Name: "symbol", Type: "string", Description: "Stock ticker", Required: true},
		},
		ReturnType: "[]InstitutionalHolding",
	}, r.wrapGetInstitutionalHolders)

	r.register("get_options_chain", ToolMetadata{
		Description: "Get the options chain with greeks for an expiration. Omit expiration for the nearest one",
		Params: []ParamSpec{
			{Name: "symbol", Type: "string", Description: "Underlying ticker", Required: true},
			{Name: "expiration", Type: "string", Description: "Expiration date YYYY-MM-DD (optional)"},
		},
		ReturnType: "[]OptionContract",
	}, r.wrapGetOptionsChain)

	r.register("get_unusual_options_activity", ToolMetadata{
		Description: "Scan for option contracts with volume far above open interest",
		Params: []ParamSpec{
			{Name: "symbol", Type: "string", Description: "Underlying ticker", Required: true},
		},
		ReturnType: "[]OptionsFlowEntry",
	}, r.wrapGetUnusualOptionsActivity)

	r.register("get_forex_quote", ToolMetadata{
		Description: "Get the current spot rate for a currency pair",
		Params: []ParamSpec{
			{Name: "pair", Type: "string", Description: "Currency pair, e.g. EURUSD", Required: true},
		},
		ReturnType: "ForexQuote",
	}, r.wrapGetForexQuote)

	r.register("get_forex_indicators", ToolMetadata{
		Description: "Compute technical indicators for a currency pair from daily bars",
		Params: []ParamSpec{
			{Name: "pair", Type: "string", Description: "Currency pair, e.g. EURUSD", Required: true},
			{Name: "days", Type: "integer", Description: "Lookback in days (default 90)"},
		},
		ReturnType: "IndicatorSummary",
	}, r.wrapGetForexIndicators)

	r.register("get_economic_calendar", ToolMetadata{
		Description: "Get upcoming high-impact economic events (rate decisions, CPI, NFP)",
		Params: []ParamSpec{
			{Name: "days", Type: "integer", Description: "Days ahead to include (default 7)"},
		},
		ReturnType: "[]EconomicEvent",
	}, r.wrapGetEconomicCalendar)

	r.register("search_knowledge", ToolMetadata{
		Description: "Search curated trading strategy notes on sessions, risk rules, pip math and news timing",
		Params: []ParamSpec{
			{Name: "query", Type: "string", Description: "Search terms", Required: true},
			{Name: "limit", Type: "integer", Description: "Max notes (default 3)"},
		},
		ReturnType: "[]KnowledgeEntry",
	}, r.wrapSearchKnowledge)

	logger.Info("tool registry initialized",
		zap.Int("tools_registered", len(r.tools)),
	)
}

func (r *Registry) register(name string, metadata ToolMetadata, fn ToolFunc) {
	metadata.Name = name
	r.tools[name] = fn
	r.metadata[name] = metadata
	r.order = append(r.order, name)
}

// ============ TOOL WRAPPERS ============
// Each wrapper handles parameter extraction and type conversion

func (r *Registry) wrapGetQuote(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetQuote(ctx, symbol)
}

func (r *Registry) wrapGetHistoricalBars(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	days, err := getIntDefault(params, "days", 90)
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetHistoricalBars(ctx, symbol, days)
}

func (r *Registry) wrapGetIndicators(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	days, err := getIntDefault(params, "days", 90)
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetIndicators(ctx, symbol, days)
}

func (r *Registry) wrapGetSupportResistance(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	lookback, err := getIntDefault(params, "lookback", 60)
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetSupportResistance(ctx, symbol, lookback)
}

func (r *Registry) wrapGetNews(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	limit, err := getIntDefault(params, "limit", 10)
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetNews(ctx, symbol, limit)
}

func (r *Registry) wrapGetEarnings(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetEarnings(ctx, symbol), nil
}

func (r *Registry) wrapGetAnalystRatings(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetAnalystRatings(ctx, symbol), nil
}

func (r *Registry) wrapGetInsiderTrades(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	limit, err := getIntDefault(params, "limit", 20)
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetInsiderTrades(ctx, symbol, limit)
}

func (r *Registry) wrapGetInstitutionalHolders(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetInstitutionalHolders(ctx, symbol)
}

func (r *Registry) wrapGetOptionsChain(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	expiration, err := getStringDefault(params, "expiration", "")
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetOptionsChain(ctx, symbol, expiration)
}

func (r *Registry) wrapGetUnusualOptionsActivity(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	symbol, err := getString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetUnusualOptionsActivity(ctx, symbol)
}

func (r *Registry) wrapGetForexQuote(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	pair, err := getString(params, "pair")
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetForexQuote(ctx, pair)
}

func (r *Registry) wrapGetForexIndicators(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	pair, err := getString(params, "pair")
	if err != nil {
		return nil, err
	}
	days, err := getIntDefault(params, "days", 90)
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetForexIndicators(ctx, pair, days)
}

func (r *Registry) wrapGetEconomicCalendar(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	days, err := getIntDefault(params, "days", 7)
	if err != nil {
		return nil, err
	}
	return r.toolkit.GetEconomicCalendar(ctx, days)
}

func (r *Registry) wrapSearchKnowledge(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	query, err := getString(params, "query")
	if err != nil {
		return nil, err
	}
	limit, err := getIntDefault(params, "limit", 3)
	if err != nil {
		return nil, err
	}
	return r.toolkit.SearchKnowledge(query, limit), nil
}

// ============ PARAMETER HELPERS ============

func getString(params map[string]interface{}, key string) (string, error) {
	val, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be string, got %T", key, val)
	}
	return str, nil
}

func getStringDefault(params map[string]interface{}, key, def string) (string, error) {
	val, ok := params[key]
	if !ok {
		return def, nil
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be string, got %T", key, val)
	}
	return str, nil
}

// getIntDefault tolerates both int and float64 because JSON numbers
// decode as float64. A present value of any other type is an error.
func getIntDefault(params map[string]interface{}, key string, def int) (int, error) {
	val, ok := params[key]
	if !ok {
		return def, nil
	}
	switch v := val.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("parameter %s must be integer, got %T", key, val)
	}
}
