package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a delayed or real-time stock quote
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent float64         `json:"change_percent"`
	DayLow        decimal.Decimal `json:"day_low"`
	DayHigh       decimal.Decimal `json:"day_high"`
	YearLow       decimal.Decimal `json:"year_low"`
	YearHigh      decimal.Decimal `json:"year_high"`
	Volume        int64           `json:"volume"`
	AvgVolume     int64           `json:"avg_volume"`
	MarketCap     int64           `json:"market_cap,omitempty"`
	PE            float64         `json:"pe,omitempty"`
	EPS           float64         `json:"eps,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Bar is one OHLCV candle
type Bar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// OptionContract is one contract in an options chain
type OptionContract struct {
	Symbol       string          `json:"symbol"`
	Underlying   string          `json:"underlying"`
	Type         string          `json:"type"` // call or put
	Strike       decimal.Decimal `json:"strike"`
	Expiration   string          `json:"expiration"` // YYYY-MM-DD
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	Last         decimal.Decimal `json:"last"`
	Volume       int64           `json:"volume"`
	OpenInterest int64           `json:"open_interest"`
	ImpliedVol   float64         `json:"implied_volatility,omitempty"`
	Delta        float64         `json:"delta,omitempty"`
	Gamma        float64         `json:"gamma,omitempty"`
	Theta        float64         `json:"theta,omitempty"`
	Vega         float64         `json:"vega,omitempty"`
}

// OptionsFlowEntry is one unusual-options-activity observation
type OptionsFlowEntry struct {
	Symbol       string          `json:"symbol"`
	Contract     string          `json:"contract"`
	Type         string          `json:"type"`
	Strike       decimal.Decimal `json:"strike"`
	Expiration   string          `json:"expiration"`
	Volume       int64           `json:"volume"`
	OpenInterest int64           `json:"open_interest"`
	VolOIRatio   float64         `json:"vol_oi_ratio"`
	Premium      decimal.Decimal `json:"premium"`
	Sentiment    string          `json:"sentiment,omitempty"` // bullish/bearish
	Timestamp    time.Time       `json:"timestamp"`
}

// NewsArticle is one news item about a symbol
type NewsArticle struct {
	Title       string    `json:"title"`
	Text        string    `json:"text,omitempty"`
	Site        string    `json:"site"`
	URL         string    `json:"url"`
	Symbol      string    `json:"symbol,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// EarningsEvent is one scheduled or reported earnings entry
type EarningsEvent struct {
	Symbol          string    `json:"symbol"`
	Date            string    `json:"date"`           // YYYY-MM-DD
	Time            string    `json:"time,omitempty"` // bmo/amc
	EPSEstimate     *float64  `json:"eps_estimate,omitempty"`
	EPSActual       *float64  `json:"eps_actual,omitempty"`
	RevenueEstimate *float64  `json:"revenue_estimate,omitempty"`
	RevenueActual   *float64  `json:"revenue_actual,omitempty"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// AnalystRating is one analyst action on a symbol
type AnalystRating struct {
	Symbol      string    `json:"symbol"`
	Analyst     string    `json:"analyst,omitempty"`
	Company     string    `json:"company,omitempty"`
	Action      string    `json:"action,omitempty"` // upgrade/downgrade/initiate/maintain
	Rating      string    `json:"rating"`
	PriceTarget *float64  `json:"price_target,omitempty"`
	Date        string    `json:"date"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// InsiderTrade is one insider transaction filing
type InsiderTrade struct {
	Symbol          string          `json:"symbol"`
	Insider         string          `json:"insider"`
	Relationship    string          `json:"relationship,omitempty"`
	TransactionType string          `json:"transaction_type"` // buy or sell
	Shares          int64           `json:"shares"`
	Price           decimal.Decimal `json:"price"`
	Value           decimal.Decimal `json:"value"`
	Date            string          `json:"date"`
}

// InstitutionalHolding is one 13F position snapshot
type InstitutionalHolding struct {
	Symbol       string          `json:"symbol"`
	Institution  string          `json:"institution"`
	Shares       int64           `json:"shares"`
	Value        decimal.Decimal `json:"value"`
	ChangeShares int64           `json:"change_shares"`
	Date         string          `json:"date"`
}

// ForexQuote is a spot quote for a currency pair
type ForexQuote struct {
	Pair      string          `json:"pair"` // e.g. EURUSD
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// EconomicEvent is one economic calendar entry
type EconomicEvent struct {
	Event    string    `json:"event"`
	Country  string    `json:"country"`
	Date     time.Time `json:"date"`
	Impact   string    `json:"impact,omitempty"` // low/medium/high
	Actual   *float64  `json:"actual,omitempty"`
	Estimate *float64  `json:"estimate,omitempty"`
	Previous *float64  `json:"previous,omitempty"`
	Unit     string    `json:"unit,omitempty"`
}
