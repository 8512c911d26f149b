package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alphalens/alphalens/pkg/models"
)

const alphaVantageBaseURL = "https://www.alphavantage.co"

// AlphaVantageClient provides forex quotes and daily history. Indicator
// values are computed locally from the history rather than fetched.
type AlphaVantageClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	cache   Cache
	barsTTL time.Duration
}

// NewAlphaVantageClient creates new AlphaVantage client. cache may be nil.
func NewAlphaVantageClient(apiKey string, cache Cache, barsTTL time.Duration) *AlphaVantageClient {
	return &AlphaVantageClient{
		apiKey:  apiKey,
		baseURL: alphaVantageBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   cache,
		barsTTL: barsTTL,
	}
}

// SetBaseURL overrides the API endpoint (tests)
func (a *AlphaVantageClient) SetBaseURL(u string) { a.baseURL = u }

func (a *AlphaVantageClient) get(ctx context.Context, params url.Values, out interface{}) error {
	if a.apiKey == "" {
		return fmt.Errorf("ALPHAVANTAGE_API_KEY not configured")
	}
	params.Set("apikey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", a.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("alphavantage error %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode alphavantage response: %w", err)
	}
	return nil
}

// SplitPair splits a 6-letter pair like EURUSD into base and quote
func SplitPair(pair string) (base, quote string, err error) {
	p := strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
	if len(p) != 6 {
		return "", "", fmt.Errorf("invalid forex pair %q", pair)
	}
	return p[:3], p[3:], nil
}

// ForexQuote fetches the current exchange rate for a pair
func (a *AlphaVantageClient) ForexQuote(ctx context.Context, pair string) (*models.ForexQuote, error) {
	base, quote, err := SplitPair(pair)
	if err != nil {
		return nil, err
	}

	var result struct {
		Rate map[string]string `json:"Realtime Currency Exchange Rate"`
	}

	params := url.Values{
		"function":      {"CURRENCY_EXCHANGE_RATE"},
		"from_currency": {base},
		"to_currency":   {quote},
	}
	if err := a.get(ctx, params, &result); err != nil {
		return nil, err
	}
	if len(result.Rate) == 0 {
		return nil, fmt.Errorf("no exchange rate data for %s", pair)
	}

	price, err := decimal.NewFromString(result.Rate["5. Exchange Rate"])
	if err != nil {
		return nil, fmt.Errorf("malformed exchange rate for %s: %w", pair, err)
	}

	fq := &models.ForexQuote{
		Pair:      base + quote,
		Price:     price,
		Timestamp: time.Now(),
	}
	if bid, err := decimal.NewFromString(result.Rate["8. Bid Price"]); err == nil {
		fq.Bid = bid
	}
	if ask, err := decimal.NewFromString(result.Rate["9. Ask Price"]); err == nil {
		fq.Ask = ask
	}
	return fq, nil
}

// ForexDaily fetches up to limit daily bars for a pair, newest first
func (a *AlphaVantageClient) ForexDaily(ctx context.Context, pair string, limit int) ([]models.Bar, error) {
	base, quote, err := SplitPair(pair)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("av:fxdaily:%s%s:%d", base, quote, limit)
	if a.cache != nil {
		if raw, ok := a.cache.Get(ctx, key); ok {
			var bars []models.Bar
			if err := json.Unmarshal([]byte(raw), &bars); err == nil {
				return bars, nil
			}
		}
	}

	var result struct {
		Series map[string]map[string]string `json:"Time Series FX (Daily)"`
	}

	params := url.Values{
		"function":    {"FX_DAILY"},
		"from_symbol": {base},
		"to_symbol":   {quote},
		"outputsize":  {"compact"},
	}
	if err := a.get(ctx, params, &result); err != nil {
		return nil, err
	}
	if len(result.Series) == 0 {
		return nil, fmt.Errorf("no daily history for %s", pair)
	}

	bars := make([]models.Bar, 0, len(result.Series))
	for dateStr, ohlc := range result.Series {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		bars = append(bars, models.Bar{
			Date:  date,
			Open:  parseDecimal(ohlc["1. open"]),
			High:  parseDecimal(ohlc["2. high"]),
			Low:   parseDecimal(ohlc["3. low"]),
			Close: parseDecimal(ohlc["4. close"]),
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.After(bars[j].Date) })
	if limit > 0 && len(bars) > limit {
		bars = bars[:limit]
	}

	if a.cache != nil {
		if raw, err := json.Marshal(bars); err == nil {
			a.cache.Set(ctx, key, string(raw), a.barsTTL)
		}
	}
	return bars, nil
}

func parseDecimal(s string) decimal.Decimal {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}
