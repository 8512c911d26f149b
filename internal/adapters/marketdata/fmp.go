package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alphalens/alphalens/pkg/logger"
	"github.com/alphalens/alphalens/pkg/models"
)

const fmpBaseURL = "https://financialmodelingprep.com/api/v3"

// FMPClient is the primary commercial data source: quotes, bars, news,
// earnings, ratings, insider trades, institutional holdings and the
// economic calendar.
type FMPClient struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	cache    Cache
	quoteTTL time.Duration
	barsTTL  time.Duration
}

// NewFMPClient creates new FMP client. cache may be nil.
func NewFMPClient(apiKey string, cache Cache, quoteTTL, barsTTL time.Duration) *FMPClient {
	return &FMPClient{
		apiKey:   apiKey,
		baseURL:  fmpBaseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		cache:    cache,
		quoteTTL: quoteTTL,
		barsTTL:  barsTTL,
	}
}

// SetBaseURL overrides the API endpoint (tests)
func (f *FMPClient) SetBaseURL(u string) { f.baseURL = u }

func (f *FMPClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if f.apiKey == "" {
		return fmt.Errorf("FMP_API_KEY not configured")
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", f.apiKey)

	reqURL := f.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("FMP error %d for %s: %s", resp.StatusCode, path, truncate(string(body), 200))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode FMP response: %w", err)
	}
	return nil
}

// cached wraps get with a read-through cache keyed by path+params
func (f *FMPClient) cached(ctx context.Context, key string, ttl time.Duration, path string, params url.Values, out interface{}) error {
	if f.cache != nil {
		if raw, ok := f.cache.Get(ctx, key); ok {
			return json.Unmarshal([]byte(raw), out)
		}
	}
	if err := f.get(ctx, path, params, out); err != nil {
		return err
	}
	if f.cache != nil {
		if raw, err := json.Marshal(out); err == nil {
			f.cache.Set(ctx, key, string(raw), ttl)
		}
	}
	return nil
}

// Quote fetches the current stock quote
func (f *FMPClient) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	var result []struct {
		Symbol        string  `json:"symbol"`
		Price         float64 `json:"price"`
		Change        float64 `json:"change"`
		ChangePercent float64 `json:"changesPercentage"`
		DayLow        float64 `json:"dayLow"`
		DayHigh       float64 `json:"dayHigh"`
		YearLow       float64 `json:"yearLow"`
		YearHigh      float64 `json:"yearHigh"`
		Volume        int64   `json:"volume"`
		AvgVolume     int64   `json:"avgVolume"`
		MarketCap     int64   `json:"marketCap"`
		PE            float64 `json:"pe"`
		EPS           float64 `json:"eps"`
	}

	if err := f.cached(ctx, "fmp:quote:"+symbol, f.quoteTTL, "/quote/"+url.PathEscape(symbol), nil, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("no quote data for %s", symbol)
	}

	q := result[0]
	return &models.Quote{
		Symbol:        q.Symbol,
		Price:         decimal.NewFromFloat(q.Price),
		Change:        decimal.NewFromFloat(q.Change),
		ChangePercent: q.ChangePercent,
		DayLow:        decimal.NewFromFloat(q.DayLow),
		DayHigh:       decimal.NewFromFloat(q.DayHigh),
		YearLow:       decimal.NewFromFloat(q.YearLow),
		YearHigh:      decimal.NewFromFloat(q.YearHigh),
		Volume:        q.Volume,
		AvgVolume:     q.AvgVolume,
		MarketCap:     q.MarketCap,
		PE:            q.PE,
		EPS:           q.EPS,
		Timestamp:     time.Now(),
	}, nil
}

// HistoricalBars fetches up to limit daily OHLCV bars, newest first
func (f *FMPClient) HistoricalBars(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	var result struct {
		Symbol     string `json:"symbol"`
		Historical []struct {
			Date   string  `json:"date"`
			Open   float64 `json:"open"`
			High   float64 `json:"high"`
			Low    float64 `json:"low"`
			Close  float64 `json:"close"`
			Volume int64   `json:"volume"`
		} `json:"historical"`
	}

	params := url.Values{"timeseries": {fmt.Sprintf("%d", limit)}}
	key := fmt.Sprintf("fmp:bars:%s:%d", symbol, limit)
	if err := f.cached(ctx, key, f.barsTTL, "/historical-price-full/"+url.PathEscape(symbol), params, &result); err != nil {
		return nil, err
	}

	bars := make([]models.Bar, 0, len(result.Historical))
	for _, h := range result.Historical {
		date, err := time.Parse("2006-01-02", h.Date)
		if err != nil {
			continue
		}
		bars = append(bars, models.Bar{
			Date:   date,
			Open:   decimal.NewFromFloat(h.Open),
			High:   decimal.NewFromFloat(h.High),
			Low:    decimal.NewFromFloat(h.Low),
			Close:  decimal.NewFromFloat(h.Close),
			Volume: h.Volume,
		})
	}

	logger.Debug("fetched historical bars",
		zap.String("symbol", symbol),
		zap.Int("count", len(bars)),
	)

	return bars, nil
}

// StockNews fetches recent news articles for a symbol
func (f *FMPClient) StockNews(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	var result []struct {
		Symbol        string `json:"symbol"`
		PublishedDate string `json:"publishedDate"`
		Title         string `json:"title"`
		Site          string `json:"site"`
		Text          string `json:"text"`
		URL           string `json:"url"`
	}

	params := url.Values{
		"tickers": {symbol},
		"limit":   {fmt.Sprintf("%d", limit)},
	}
	if err := f.get(ctx, "/stock_news", params, &result); err != nil {
		return nil, err
	}

	news := make([]models.NewsArticle, 0, len(result))
	for _, a := range result {
		published, _ := time.Parse("2006-01-02 15:04:05", a.PublishedDate)
		news = append(news, models.NewsArticle{
			Title:       a.Title,
			Text:        truncate(a.Text, 500),
			Site:        a.Site,
			URL:         a.URL,
			Symbol:      a.Symbol,
			PublishedAt: published,
		})
	}
	return news, nil
}

// EarningsCalendar fetches upcoming and recent earnings events for a symbol
func (f *FMPClient) EarningsCalendar(ctx context.Context, symbol string) ([]models.EarningsEvent, error) {
	var result []struct {
		Date             string   `json:"date"`
		Symbol           string   `json:"symbol"`
		Time             string   `json:"time"`
		EPS              *float64 `json:"eps"`
		EPSEstimated     *float64 `json:"epsEstimated"`
		Revenue          *float64 `json:"revenue"`
		RevenueEstimated *float64 `json:"revenueEstimated"`
	}

	if err := f.get(ctx, "/historical/earning_calendar/"+url.PathEscape(symbol), url.Values{"limit": {"8"}}, &result); err != nil {
		return nil, err
	}

	events := make([]models.EarningsEvent, 0, len(result))
	for _, e := range result {
		events = append(events, models.EarningsEvent{
			Symbol:          e.Symbol,
			Date:            e.Date,
			Time:            e.Time,
			EPSEstimate:     e.EPSEstimated,
			EPSActual:       e.EPS,
			RevenueEstimate: e.RevenueEstimated,
			RevenueActual:   e.Revenue,
			FetchedAt:       time.Now(),
		})
	}
	return events, nil
}

// AnalystRatings fetches recent analyst actions for a symbol
func (f *FMPClient) AnalystRatings(ctx context.Context, symbol string) ([]models.AnalystRating, error) {
	var result []struct {
		Symbol         string   `json:"symbol"`
		PublishedDate  string   `json:"publishedDate"`
		AnalystName    string   `json:"analystName"`
		AnalystCompany string   `json:"analystCompany"`
		NewGrade       string   `json:"newGrade"`
		Action         string   `json:"action"`
		PriceTarget    *float64 `json:"priceTarget"`
	}

	if err := f.get(ctx, "/upgrades-downgrades", url.Values{"symbol": {symbol}}, &result); err != nil {
		return nil, err
	}

	ratings := make([]models.AnalystRating, 0, len(result))
	for _, r := range result {
		ratings = append(ratings, models.AnalystRating{
			Symbol:      r.Symbol,
			Analyst:     r.AnalystName,
			Company:     r.AnalystCompany,
			Action:      r.Action,
			Rating:      r.NewGrade,
			PriceTarget: r.PriceTarget,
			Date:        r.PublishedDate,
			FetchedAt:   time.Now(),
		})
	}
	return ratings, nil
}

// InsiderTrades fetches recent insider transactions
func (f *FMPClient) InsiderTrades(ctx context.Context, symbol string, limit int) ([]models.InsiderTrade, error) {
	var result []struct {
		Symbol                  string  `json:"symbol"`
		ReportingName           string  `json:"reportingName"`
		TypeOfOwner             string  `json:"typeOfOwner"`
		AcquistionOrDisposition string  `json:"acquistionOrDisposition"`
		TransactionDate         string  `json:"transactionDate"`
		SecuritiesTransacted    float64 `json:"securitiesTransacted"`
		Price                   float64 `json:"price"`
	}

	params := url.Values{"symbol": {symbol}, "limit": {fmt.Sprintf("%d", limit)}}
	if err := f.get(ctx, "/insider-trading", params, &result); err != nil {
		return nil, err
	}

	trades := make([]models.InsiderTrade, 0, len(result))
	for _, t := range result {
		txType := "sell"
		if t.AcquistionOrDisposition == "A" {
			txType = "buy"
		}
		shares := int64(t.SecuritiesTransacted)
		price := decimal.NewFromFloat(t.Price)
		trades = append(trades, models.InsiderTrade{
			Symbol:          t.Symbol,
			Insider:         t.ReportingName,
			Relationship:    t.TypeOfOwner,
			TransactionType: txType,
			Shares:          shares,
			Price:           price,
			Value:           price.Mul(decimal.NewFromInt(shares)),
			Date:            t.TransactionDate,
		})
	}
	return trades, nil
}

// InstitutionalHolders fetches 13F institutional positions
func (f *FMPClient) InstitutionalHolders(ctx context.Context, symbol string) ([]models.InstitutionalHolding, error) {
	var result []struct {
		Holder       string  `json:"holder"`
		Shares       int64   `json:"shares"`
		DateReported string  `json:"dateReported"`
		Change       int64   `json:"change"`
		Value        float64 `json:"value"`
	}

	if err := f.get(ctx, "/institutional-holder/"+url.PathEscape(symbol), nil, &result); err != nil {
		return nil, err
	}

	holdings := make([]models.InstitutionalHolding, 0, len(result))
	for _, h := range result {
		holdings = append(holdings, models.InstitutionalHolding{
			Symbol:       symbol,
			Institution:  h.Holder,
			Shares:       h.Shares,
			Value:        decimal.NewFromFloat(h.Value),
			ChangeShares: h.Change,
			Date:         h.DateReported,
		})
	}
	return holdings, nil
}

// EconomicCalendar fetches economic events between from and to
func (f *FMPClient) EconomicCalendar(ctx context.Context, from, to time.Time) ([]models.EconomicEvent, error) {
	var result []struct {
		Event    string   `json:"event"`
		Date     string   `json:"date"`
		Country  string   `json:"country"`
		Impact   string   `json:"impact"`
		Actual   *float64 `json:"actual"`
		Estimate *float64 `json:"estimate"`
		Previous *float64 `json:"previous"`
		Unit     string   `json:"unit"`
	}

	params := url.Values{
		"from": {from.Format("2006-01-02")},
		"to":   {to.Format("2006-01-02")},
	}
	if err := f.get(ctx, "/economic_calendar", params, &result); err != nil {
		return nil, err
	}

	events := make([]models.EconomicEvent, 0, len(result))
	for _, e := range result {
		date, err := time.Parse("2006-01-02 15:04:05", e.Date)
		if err != nil {
			date, _ = time.Parse("2006-01-02", e.Date)
		}
		events = append(events, models.EconomicEvent{
			Event:    e.Event,
			Country:  e.Country,
			Date:     date,
			Impact:   e.Impact,
			Actual:   e.Actual,
			Estimate: e.Estimate,
			Previous: e.Previous,
			Unit:     e.Unit,
		})
	}
	return events, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
