package models

import "time"

// Recommendation is the agent's trade verdict
type Recommendation string

const (
	RecStrongBuy  Recommendation = "strong_buy"
	RecBuy        Recommendation = "buy"
	RecHold       Recommendation = "hold"
	RecSell       Recommendation = "sell"
	RecStrongSell Recommendation = "strong_sell"
	RecWait       Recommendation = "wait"
)

// Actionable reports whether the verdict implies entering a position.
// Only actionable verdicts are subject to the reward/risk gate.
func (r Recommendation) Actionable() bool {
	return r != RecWait && r != RecHold && r != ""
}

// FactorSentiment classifies a key factor's direction
type FactorSentiment string

const (
	SentimentBullish FactorSentiment = "bullish"
	SentimentBearish FactorSentiment = "bearish"
	SentimentNeutral FactorSentiment = "neutral"
)

// KeyFactor is one weighted input behind a recommendation
type KeyFactor struct {
	Factor    string          `json:"factor"`
	Sentiment FactorSentiment `json:"sentiment"`
	Weight    int             `json:"weight"`
	Source    string          `json:"source,omitempty"`
}

// OptionsGreeks holds per-leg greeks as reported by the model or chain data
type OptionsGreeks struct {
	Delta float64 `json:"delta,omitempty"`
	Gamma float64 `json:"gamma,omitempty"`
	Theta float64 `json:"theta,omitempty"`
	Vega  float64 `json:"vega,omitempty"`
}

// OptionsLeg is one leg of a multi-leg options strategy
type OptionsLeg struct {
	Action     string         `json:"action"` // buy or sell
	Type       string         `json:"type"`   // call or put
	Strike     float64        `json:"strike"`
	Expiration string         `json:"expiration"` // YYYY-MM-DD
	Contracts  int            `json:"contracts,omitempty"`
	Premium    float64        `json:"premium,omitempty"`
	Greeks     *OptionsGreeks `json:"greeks,omitempty"`
}

// OptionsStrategy is an optional multi-leg structure attached to a
// stock recommendation
type OptionsStrategy struct {
	Name                string       `json:"name"`
	Legs                []OptionsLeg `json:"legs"`
	MaxProfit           float64      `json:"max_profit,omitempty"`
	MaxLoss             float64      `json:"max_loss,omitempty"`
	BreakEven           []float64    `json:"break_even,omitempty"`
	NetDebit            float64      `json:"net_debit,omitempty"`
	RiskReward          float64      `json:"risk_reward,omitempty"`
	ProbabilityOfProfit float64      `json:"probability_of_profit,omitempty"`
}

// ForexTarget is one take-profit level in price and pips
type ForexTarget struct {
	Price float64 `json:"price"`
	Pips  float64 `json:"pips"`
}

// IndicatorSnapshot captures indicator readings at setup time
type IndicatorSnapshot struct {
	RSI     float64 `json:"rsi,omitempty"`
	MACD    float64 `json:"macd,omitempty"`
	EMA20   float64 `json:"ema20,omitempty"`
	EMA50   float64 `json:"ema50,omitempty"`
	ATRPips float64 `json:"atr_pips,omitempty"`
	Trend   string  `json:"trend,omitempty"`
}

// ForexSetup is the normalized forex trade plan: entry, stop and three
// take-profits in both price and pips, plus timing context
type ForexSetup struct {
	Direction        string             `json:"direction,omitempty"` // long or short
	CurrentPrice     float64            `json:"current_price,omitempty"`
	Entry            float64            `json:"entry"`
	StopLoss         float64            `json:"stop_loss"`
	StopPips         float64            `json:"stop_pips"`
	TakeProfits      []ForexTarget      `json:"take_profits"`
	RiskReward       float64            `json:"risk_reward"`
	SupportLevels    []float64          `json:"support_levels,omitempty"`
	ResistanceLevels []float64          `json:"resistance_levels,omitempty"`
	Indicators       *IndicatorSnapshot `json:"indicators,omitempty"`
	Session          string             `json:"session,omitempty"`
	NewsTiming       string             `json:"news_timing,omitempty"`
}

// TradeRecommendation is the final structured output of one agent run.
// Immutable after creation; a new run produces a new object.
type TradeRecommendation struct {
	Symbol          string           `json:"symbol"`
	AnalysisType    AnalysisType     `json:"analysis_type"`
	Recommendation  Recommendation   `json:"recommendation"`
	Confidence      int              `json:"confidence"`
	CurrentPrice    *float64         `json:"current_price,omitempty"`
	EntryPrice      *float64         `json:"entry_price,omitempty"`
	PriceTarget     *float64         `json:"price_target,omitempty"`
	StopLoss        *float64         `json:"stop_loss,omitempty"`
	Timeframe       string           `json:"timeframe,omitempty"`
	Reasoning       string           `json:"reasoning"`
	KeyFactors      []KeyFactor      `json:"key_factors,omitempty"`
	Risks           []string         `json:"risks,omitempty"`
	OptionsStrategy *OptionsStrategy `json:"options_strategy,omitempty"`
	ForexSetup      *ForexSetup      `json:"forex_setup,omitempty"`
	DataSources     []string         `json:"data_sources,omitempty"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// RewardRisk returns (target-entry)/(entry-stop) magnitude-wise, or
// false when entry/target/stop are missing or degenerate
func (r *TradeRecommendation) RewardRisk() (float64, bool) {
	if r.EntryPrice == nil || r.PriceTarget == nil || r.StopLoss == nil {
		return 0, false
	}
	entry, target, stop := *r.EntryPrice, *r.PriceTarget, *r.StopLoss
	risk := entry - stop
	if risk < 0 {
		risk = -risk
	}
	if risk == 0 {
		return 0, false
	}
	reward := target - entry
	if reward < 0 {
		reward = -reward
	}
	return reward / risk, true
}

// AnalysisCritique is one reflection pass over a draft analysis
type AnalysisCritique struct {
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	MissingData     []string `json:"missing_data"`
	Confidence      int      `json:"confidence"`
	Recommendations []string `json:"recommendations"`
	ShouldRefine    bool     `json:"should_refine"`
}

// ReflectionResult is the outcome of the critique-then-refine loop
type ReflectionResult struct {
	Original   string            `json:"original"`
	Critique   *AnalysisCritique `json:"critique,omitempty"`
	Refined    string            `json:"refined,omitempty"`
	Iterations int               `json:"iterations"`
}

// FinalText returns the refined analysis when one was produced,
// otherwise the original
func (r *ReflectionResult) FinalText() string {
	if r.Refined != "" {
		return r.Refined
	}
	return r.Original
}
