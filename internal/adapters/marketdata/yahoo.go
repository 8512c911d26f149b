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

	"github.com/alphalens/alphalens/pkg/models"
)

const yahooBaseURL = "https://query2.finance.yahoo.com"

// YahooClient is the keyless last-resort source for earnings dates and
// quotes. Availability varies; callers treat it as best-effort.
type YahooClient struct {
	baseURL string
	client  *http.Client
}

// NewYahooClient creates new Yahoo client
func NewYahooClient() *YahooClient {
	return &YahooClient{
		baseURL: yahooBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SetBaseURL overrides the API endpoint (tests)
func (y *YahooClient) SetBaseURL(u string) { y.baseURL = u }

func (y *YahooClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := y.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	// Yahoo rejects default Go user agents
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; alphalens/1.0)")

	resp, err := y.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("yahoo error %d for %s: %s", resp.StatusCode, path, truncate(string(body), 200))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode yahoo response: %w", err)
	}
	return nil
}

// Earnings fetches the next earnings date from the quoteSummary
// calendarEvents module
func (y *YahooClient) Earnings(ctx context.Context, symbol string) ([]models.EarningsEvent, error) {
	var result struct {
		QuoteSummary struct {
			Result []struct {
				CalendarEvents struct {
					Earnings struct {
						EarningsDate []struct {
							Raw int64 `json:"raw"`
						} `json:"earningsDate"`
						EarningsAverage struct {
							Raw float64 `json:"raw"`
						} `json:"earningsAverage"`
					} `json:"earnings"`
				} `json:"calendarEvents"`
			} `json:"result"`
		} `json:"quoteSummary"`
	}

	params := url.Values{"modules": {"calendarEvents"}}
	if err := y.get(ctx, "/v10/finance/quoteSummary/"+url.PathEscape(symbol), params, &result); err != nil {
		return nil, err
	}

	events := make([]models.EarningsEvent, 0, 1)
	for _, r := range result.QuoteSummary.Result {
		earnings := r.CalendarEvents.Earnings
		for _, d := range earnings.EarningsDate {
			estimate := earnings.EarningsAverage.Raw
			ev := models.EarningsEvent{
				Symbol:    symbol,
				Date:      time.Unix(d.Raw, 0).UTC().Format("2006-01-02"),
				FetchedAt: time.Now(),
			}
			if estimate != 0 {
				ev.EPSEstimate = &estimate
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

// Quote fetches a price snapshot from the chart endpoint
func (y *YahooClient) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	var result struct {
		Chart struct {
			Result []struct {
				Meta struct {
					Symbol               string  `json:"symbol"`
					RegularMarketPrice   float64 `json:"regularMarketPrice"`
					RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
					RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
					RegularMarketVolume  int64   `json:"regularMarketVolume"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}

	if err := y.get(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), url.Values{"range": {"1d"}, "interval": {"1d"}}, &result); err != nil {
		return nil, err
	}
	if len(result.Chart.Result) == 0 {
		return nil, fmt.Errorf("no quote data for %s", symbol)
	}

	meta := result.Chart.Result[0].Meta
	return &models.Quote{
		Symbol:    meta.Symbol,
		Price:     decimal.NewFromFloat(meta.RegularMarketPrice),
		DayHigh:   decimal.NewFromFloat(meta.RegularMarketDayHigh),
		DayLow:    decimal.NewFromFloat(meta.RegularMarketDayLow),
		Volume:    meta.RegularMarketVolume,
		Timestamp: time.Now(),
	}, nil
}
