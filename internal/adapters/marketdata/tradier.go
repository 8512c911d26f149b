package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alphalens/alphalens/pkg/models"
)

const tradierBaseURL = "https://api.tradier.com/v1"

// TradierClient provides options chains with greeks and an
// unusual-activity scan derived from volume/open-interest ratios.
type TradierClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewTradierClient creates new Tradier client
func NewTradierClient(apiKey string) *TradierClient {
	return &TradierClient{
		apiKey:  apiKey,
		baseURL: tradierBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SetBaseURL overrides the API endpoint (tests)
func (t *TradierClient) SetBaseURL(u string) { t.baseURL = u }

func (t *TradierClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if t.apiKey == "" {
		return fmt.Errorf("TRADIER_API_KEY not configured")
	}

	reqURL := t.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tradier error %d for %s: %s", resp.StatusCode, path, truncate(string(body), 200))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode tradier response: %w", err)
	}
	return nil
}

type tradierOption struct {
	Symbol         string  `json:"symbol"`
	Underlying     string  `json:"underlying"`
	Strike         float64 `json:"strike"`
	OptionType     string  `json:"option_type"`
	ExpirationDate string  `json:"expiration_date"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Last           float64 `json:"last"`
	Volume         int64   `json:"volume"`
	OpenInterest   int64   `json:"open_interest"`
	Greeks         *struct {
		Delta float64 `json:"delta"`
		Gamma float64 `json:"gamma"`
		Theta float64 `json:"theta"`
		Vega  float64 `json:"vega"`
		MidIV float64 `json:"mid_iv"`
	} `json:"greeks"`
}

// OptionsChain fetches the chain for the nearest expiration on or
// after the given date (empty expiration picks the nearest listed one)
func (t *TradierClient) OptionsChain(ctx context.Context, symbol, expiration string) ([]models.OptionContract, error) {
	if expiration == "" {
		exp, err := t.nearestExpiration(ctx, symbol)
		if err != nil {
			return nil, err
		}
		expiration = exp
	}

	var result struct {
		Options struct {
			Option []tradierOption `json:"option"`
		} `json:"options"`
	}

	params := url.Values{
		"symbol":     {symbol},
		"expiration": {expiration},
		"greeks":     {"true"},
	}
	if err := t.get(ctx, "/markets/options/chains", params, &result); err != nil {
		return nil, err
	}

	contracts := make([]models.OptionContract, 0, len(result.Options.Option))
	for _, o := range result.Options.Option {
		c := models.OptionContract{
			Symbol:       o.Symbol,
			Underlying:   o.Underlying,
			Type:         o.OptionType,
			Strike:       decimal.NewFromFloat(o.Strike),
			Expiration:   o.ExpirationDate,
			Bid:          decimal.NewFromFloat(o.Bid),
			Ask:          decimal.NewFromFloat(o.Ask),
			Last:         decimal.NewFromFloat(o.Last),
			Volume:       o.Volume,
			OpenInterest: o.OpenInterest,
		}
		if o.Greeks != nil {
			c.ImpliedVol = o.Greeks.MidIV
			c.Delta = o.Greeks.Delta
			c.Gamma = o.Greeks.Gamma
			c.Theta = o.Greeks.Theta
			c.Vega = o.Greeks.Vega
		}
		contracts = append(contracts, c)
	}
	return contracts, nil
}

// UnusualActivity scans the nearest chain for contracts whose volume
// exceeds open interest by the given ratio, sorted by ratio descending
func (t *TradierClient) UnusualActivity(ctx context.Context, symbol string, minRatio float64, limit int) ([]models.OptionsFlowEntry, error) {
	contracts, err := t.OptionsChain(ctx, symbol, "")
	if err != nil {
		return nil, err
	}

	flow := make([]models.OptionsFlowEntry, 0)
	for _, c := range contracts {
		if c.OpenInterest == 0 || c.Volume == 0 {
			continue
		}
		ratio := float64(c.Volume) / float64(c.OpenInterest)
		if ratio < minRatio {
			continue
		}

		sentiment := "bearish"
		if c.Type == "call" {
			sentiment = "bullish"
		}

		mid := c.Bid.Add(c.Ask).Div(decimal.NewFromInt(2))
		flow = append(flow, models.OptionsFlowEntry{
			Symbol:       symbol,
			Contract:     c.Symbol,
			Type:         c.Type,
			Strike:       c.Strike,
			Expiration:   c.Expiration,
			Volume:       c.Volume,
			OpenInterest: c.OpenInterest,
			VolOIRatio:   ratio,
			Premium:      mid.Mul(decimal.NewFromInt(c.Volume * 100)),
			Sentiment:    sentiment,
			Timestamp:    time.Now(),
		})
	}

	sort.Slice(flow, func(i, j int) bool { return flow[i].VolOIRatio > flow[j].VolOIRatio })
	if limit > 0 && len(flow) > limit {
		flow = flow[:limit]
	}
	return flow, nil
}

// nearestExpiration returns the first listed expiration date
func (t *TradierClient) nearestExpiration(ctx context.Context, symbol string) (string, error) {
	var result struct {
		Expirations struct {
			Date []string `json:"date"`
		} `json:"expirations"`
	}

	if err := t.get(ctx, "/markets/options/expirations", url.Values{"symbol": {symbol}}, &result); err != nil {
		return "", err
	}
	if len(result.Expirations.Date) == 0 {
		return "", fmt.Errorf("no option expirations listed for %s", symbol)
	}
	return result.Expirations.Date[0], nil
}
