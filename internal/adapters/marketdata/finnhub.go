package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alphalens/alphalens/pkg/models"
)

const finnhubBaseURL = "https://finnhub.io/api/v1"

// FinnhubClient is the secondary free source for earnings, analyst
// recommendation trends and company news.
type FinnhubClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewFinnhubClient creates new Finnhub client
func NewFinnhubClient(apiKey string) *FinnhubClient {
	return &FinnhubClient{
		apiKey:  apiKey,
		baseURL: finnhubBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SetBaseURL overrides the API endpoint (tests)
func (f *FinnhubClient) SetBaseURL(u string) { f.baseURL = u }

func (f *FinnhubClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if f.apiKey == "" {
		return fmt.Errorf("FINNHUB_API_KEY not configured")
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", f.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", f.baseURL+path+"?"+params.Encode(), nil)
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
		return fmt.Errorf("finnhub error %d for %s: %s", resp.StatusCode, path, truncate(string(body), 200))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode finnhub response: %w", err)
	}
	return nil
}

// Earnings fetches recent quarterly earnings for a symbol
func (f *FinnhubClient) Earnings(ctx context.Context, symbol string) ([]models.EarningsEvent, error) {
	var result []struct {
		Period   string   `json:"period"`
		Symbol   string   `json:"symbol"`
		Actual   *float64 `json:"actual"`
		Estimate *float64 `json:"estimate"`
	}

	if err := f.get(ctx, "/stock/earnings", url.Values{"symbol": {symbol}}, &result); err != nil {
		return nil, err
	}

	events := make([]models.EarningsEvent, 0, len(result))
	for _, e := range result {
		events = append(events, models.EarningsEvent{
			Symbol:      e.Symbol,
			Date:        e.Period,
			EPSEstimate: e.Estimate,
			EPSActual:   e.Actual,
			FetchedAt:   time.Now(),
		})
	}
	return events, nil
}

// Ratings fetches analyst recommendation trends, converted to the
// common rating shape (one entry per monthly trend row)
func (f *FinnhubClient) Ratings(ctx context.Context, symbol string) ([]models.AnalystRating, error) {
	var result []struct {
		Symbol     string `json:"symbol"`
		Period     string `json:"period"`
		StrongBuy  int    `json:"strongBuy"`
		Buy        int    `json:"buy"`
		Hold       int    `json:"hold"`
		Sell       int    `json:"sell"`
		StrongSell int    `json:"strongSell"`
	}

	if err := f.get(ctx, "/stock/recommendation", url.Values{"symbol": {symbol}}, &result); err != nil {
		return nil, err
	}

	ratings := make([]models.AnalystRating, 0, len(result))
	for _, r := range result {
		ratings = append(ratings, models.AnalystRating{
			Symbol: r.Symbol,
			Rating: consensusLabel(r.StrongBuy, r.Buy, r.Hold, r.Sell, r.StrongSell),
			Company: fmt.Sprintf("consensus (%d analysts)",
				r.StrongBuy+r.Buy+r.Hold+r.Sell+r.StrongSell),
			Date:      r.Period,
			FetchedAt: time.Now(),
		})
	}
	return ratings, nil
}

// CompanyNews fetches recent company news
func (f *FinnhubClient) CompanyNews(ctx context.Context, symbol string, days int) ([]models.NewsArticle, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -days)

	var result []struct {
		Headline string `json:"headline"`
		Summary  string `json:"summary"`
		Source   string `json:"source"`
		URL      string `json:"url"`
		Datetime int64  `json:"datetime"`
	}

	params := url.Values{
		"symbol": {symbol},
		"from":   {from.Format("2006-01-02")},
		"to":     {to.Format("2006-01-02")},
	}
	if err := f.get(ctx, "/company-news", params, &result); err != nil {
		return nil, err
	}

	news := make([]models.NewsArticle, 0, len(result))
	for _, a := range result {
		news = append(news, models.NewsArticle{
			Title:       a.Headline,
			Text:        truncate(a.Summary, 500),
			Site:        a.Source,
			URL:         a.URL,
			Symbol:      symbol,
			PublishedAt: time.Unix(a.Datetime, 0),
		})
	}
	return news, nil
}

// consensusLabel collapses a recommendation trend row into one label
func consensusLabel(strongBuy, buy, hold, sell, strongSell int) string {
	counts := []struct {
		label string
		n     int
	}{
		{"strong buy", strongBuy},
		{"buy", buy},
		{"hold", hold},
		{"sell", sell},
		{"strong sell", strongSell},
	}

	best := counts[0]
	for _, c := range counts[1:] {
		if c.n > best.n {
			best = c
		}
	}
	return best.label
}
