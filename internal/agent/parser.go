package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alphalens/alphalens/pkg/logger"
	"github.com/alphalens/alphalens/pkg/models"
)

const (
	minActionableConfidence = 60
	minRewardRisk           = 2.0
	degradedConfidence      = 30
	degradedReasoningLimit  = 500
)

// Parser turns raw LLM text into a validated TradeRecommendation.
// It never returns an error: unparseable text degrades to a
// conservative "hold" and quality-gate violations rewrite the verdict
// to "wait".
type Parser struct {
	now func() time.Time
}

// NewParser creates a parser using wall-clock time
func NewParser() *Parser {
	return &Parser{now: func() time.Time { return time.Now().UTC() }}
}

// newParserAt pins "today" for deterministic tests
func newParserAt(now time.Time) *Parser {
	return &Parser{now: func() time.Time { return now }}
}

// Parse extracts, validates and normalizes the recommendation.
// quotePrice is the price gathered from tools, used when the model
// omits current_price.
func (p *Parser) Parse(raw, symbol string, analysisType models.AnalysisType, quotePrice *float64) *models.TradeRecommendation {
	span, ok := extractJSON(raw)
	if !ok {
		return p.degraded(raw, symbol, analysisType)
	}

	var decoded rawRecommendation
	if err := json.Unmarshal([]byte(span), &decoded); err != nil {
		logger.Warn("recommendation JSON failed to decode",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return p.degraded(raw, symbol, analysisType)
	}

	rec := decoded.toModel(symbol, analysisType)
	rec.GeneratedAt = p.now()

	p.normalizeConfidence(rec)
	p.fixOptionsExpirations(rec)
	p.normalizeForexSetup(rec, symbol)
	p.resolveCurrentPrice(rec, quotePrice)
	p.enforceRewardRisk(rec)

	return rec
}

// degraded is the floor result for unparseable model output
func (p *Parser) degraded(raw, symbol string, analysisType models.AnalysisType) *models.TradeRecommendation {
	reasoning := strings.TrimSpace(raw)
	if len(reasoning) > degradedReasoningLimit {
		reasoning = reasoning[:degradedReasoningLimit]
	}

	logger.Warn("recommendation parsing failed, degrading to hold",
		zap.String("symbol", symbol),
		zap.Int("raw_len", len(raw)),
	)

	return &models.TradeRecommendation{
		Symbol:         symbol,
		AnalysisType:   analysisType,
		Recommendation: models.RecHold,
		Confidence:     degradedConfidence,
		Reasoning:      reasoning,
		Risks:          []string{"Analysis parsing failed - review manually"},
		GeneratedAt:    p.now(),
	}
}

func (p *Parser) normalizeConfidence(rec *models.TradeRecommendation) {
	if rec.Confidence < 0 {
		rec.Confidence = 0
	}
	if rec.Confidence > 100 {
		rec.Confidence = 100
	}
}

// fixOptionsExpirations rolls past-dated legs forward to the next
// occurrence of the same month and day, then to the nearest future
// Friday since listed options expire on Fridays
func (p *Parser) fixOptionsExpirations(rec *models.TradeRecommendation) {
	if rec.OptionsStrategy == nil {
		return
	}
	today := p.now().Truncate(24 * time.Hour)

	for i := range rec.OptionsStrategy.Legs {
		leg := &rec.OptionsStrategy.Legs[i]
		parsed, err := time.Parse("2006-01-02", leg.Expiration)
		if err != nil {
			continue
		}
		if !parsed.Before(today) {
			continue
		}

		fixed := nextOccurrence(parsed, today)
		fixed = nearestFutureFriday(fixed, today)
		leg.Expiration = fixed.Format("2006-01-02")

		logger.Debug("rolled past options expiration forward",
			zap.String("symbol", rec.Symbol),
			zap.Time("was", parsed),
			zap.String("now", leg.Expiration),
		)
	}
}

// nextOccurrence shifts date forward a year at a time until it is not
// before today
func nextOccurrence(date, today time.Time) time.Time {
	for date.Before(today) {
		date = date.AddDate(1, 0, 0)
	}
	return date
}

// nearestFutureFriday snaps to the closest Friday that is still in the
// future
func nearestFutureFriday(date, today time.Time) time.Time {
	offset := int(time.Friday - date.Weekday())
	candidate := date.AddDate(0, 0, offset)
	if offset > 3 { // previous Friday is closer
		candidate = candidate.AddDate(0, 0, -7)
	}
	for !candidate.After(today) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

// PipMultiplier returns the price-to-pips factor for a pair: 100 for
// JPY-quoted pairs, 10000 otherwise
func PipMultiplier(pair string) float64 {
	if strings.HasSuffix(strings.ToUpper(strings.TrimSpace(pair)), "JPY") {
		return 100
	}
	return 10000
}

// normalizeForexSetup computes pip distances from raw prices and
// enforces the TP2 pip gate
func (p *Parser) normalizeForexSetup(rec *models.TradeRecommendation, symbol string) {
	setup := rec.ForexSetup
	if setup == nil {
		return
	}

	mult := PipMultiplier(symbol)

	if setup.Entry != 0 && setup.StopLoss != 0 {
		setup.StopPips = abs(setup.Entry-setup.StopLoss) * mult
	}
	for i := range setup.TakeProfits {
		tp := &setup.TakeProfits[i]
		if tp.Price != 0 && setup.Entry != 0 {
			tp.Pips = abs(tp.Price-setup.Entry) * mult
		}
	}

	if setup.StopPips > 0 && len(setup.TakeProfits) >= 2 {
		setup.RiskReward = setup.TakeProfits[1].Pips / setup.StopPips
	}

	if rec.Recommendation.Actionable() && setup.StopPips > 0 && len(setup.TakeProfits) >= 2 {
		ratio := setup.TakeProfits[1].Pips / setup.StopPips
		if ratio < minRewardRisk {
			p.forceWait(rec, fmt.Sprintf(
				"Setup rejected: TP2 (%.1f pips) is only %.2fx the stop distance (%.1f pips); %.1fx required.",
				setup.TakeProfits[1].Pips, ratio, setup.StopPips, minRewardRisk))
		}
	}
}

// resolveCurrentPrice picks the first available of: explicit field,
// forex setup price, gathered quote price
func (p *Parser) resolveCurrentPrice(rec *models.TradeRecommendation, quotePrice *float64) {
	if rec.CurrentPrice != nil {
		return
	}
	if rec.ForexSetup != nil && rec.ForexSetup.CurrentPrice != 0 {
		price := rec.ForexSetup.CurrentPrice
		rec.CurrentPrice = &price
		return
	}
	if quotePrice != nil {
		price := *quotePrice
		rec.CurrentPrice = &price
	}
}

// enforceRewardRisk applies the 2:1 stock gate and the minimum
// confidence floor to actionable verdicts
func (p *Parser) enforceRewardRisk(rec *models.TradeRecommendation) {
	if !rec.Recommendation.Actionable() {
		return
	}

	if rec.Confidence < minActionableConfidence {
		p.forceWait(rec, fmt.Sprintf(
			"Confidence %d is below the %d floor for actionable recommendations.",
			rec.Confidence, minActionableConfidence))
		return
	}

	// Forex setups validate via pip ratios in normalizeForexSetup;
	// options strategies carry their own max_profit/max_loss shape.
	// Only the stock price-triplet path gates here.
	if rec.AnalysisType != models.AnalysisStock {
		return
	}

	ratio, ok := rec.RewardRisk()
	if !ok {
		return
	}
	if ratio < minRewardRisk {
		p.forceWait(rec, fmt.Sprintf(
			"Setup rejected: reward/risk %.2f is below the required %.1f.",
			ratio, minRewardRisk))
	}
}

// forceWait rewrites an actionable verdict to wait, keeping the
// original reasoning as trailing context
func (p *Parser) forceWait(rec *models.TradeRecommendation, explanation string) {
	logger.Info("quality gate rewrote recommendation to wait",
		zap.String("symbol", rec.Symbol),
		zap.String("was", string(rec.Recommendation)),
		zap.String("reason", explanation),
	)

	rec.Recommendation = models.RecWait
	if rec.Reasoning != "" {
		rec.Reasoning = explanation + " Original analysis: " + rec.Reasoning
	} else {
		rec.Reasoning = explanation
	}
}

// extractJSON returns the first balanced {...} span in text,
// ignoring braces inside string literals. Markdown code fences are
// stripped first.
func extractJSON(text string) (string, bool) {
	text = stripFences(text)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return text
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// rawRecommendation is the tolerant decode target for model output.
// Every field is optional; toModel applies defaults.
type rawRecommendation struct {
	Recommendation string                  `json:"recommendation"`
	Confidence     *int                    `json:"confidence"`
	CurrentPrice   *float64                `json:"current_price"`
	EntryPrice     *float64                `json:"entry_price"`
	PriceTarget    *float64                `json:"price_target"`
	StopLoss       *float64                `json:"stop_loss"`
	Timeframe      string                  `json:"timeframe"`
	Reasoning      string                  `json:"reasoning"`
	KeyFactors     []models.KeyFactor      `json:"key_factors"`
	Risks          []string                `json:"risks"`
	Options        *models.OptionsStrategy `json:"options_strategy"`
	Forex          *rawForexSetup          `json:"forex_setup"`
	DataSources    []string                `json:"data_sources"`
}

// rawForexSetup tolerates both numbered take-profit fields and a
// take_profits array of numbers or objects
type rawForexSetup struct {
	Direction        string          `json:"direction"`
	CurrentPrice     float64         `json:"current_price"`
	Entry            float64         `json:"entry"`
	StopLoss         float64         `json:"stop_loss"`
	TakeProfit1      float64         `json:"take_profit_1"`
	TakeProfit2      float64         `json:"take_profit_2"`
	TakeProfit3      float64         `json:"take_profit_3"`
	TakeProfits      json.RawMessage `json:"take_profits"`
	SupportLevels    []float64       `json:"support_levels"`
	ResistanceLevels []float64       `json:"resistance_levels"`
	Session          string          `json:"session"`
	NewsTiming       string          `json:"news_timing"`
}

func (r *rawRecommendation) toModel(symbol string, analysisType models.AnalysisType) *models.TradeRecommendation {
	rec := &models.TradeRecommendation{
		Symbol:          symbol,
		AnalysisType:    analysisType,
		Recommendation:  models.Recommendation(strings.ToLower(strings.TrimSpace(r.Recommendation))),
		Confidence:      50,
		CurrentPrice:    r.CurrentPrice,
		EntryPrice:      r.EntryPrice,
		PriceTarget:     r.PriceTarget,
		StopLoss:        r.StopLoss,
		Timeframe:       r.Timeframe,
		Reasoning:       r.Reasoning,
		KeyFactors:      r.KeyFactors,
		Risks:           r.Risks,
		OptionsStrategy: r.Options,
		DataSources:     r.DataSources,
	}
	if r.Confidence != nil {
		rec.Confidence = *r.Confidence
	}
	if rec.Recommendation == "" {
		rec.Recommendation = models.RecHold
	}
	if r.Forex != nil {
		rec.ForexSetup = r.Forex.toModel()
	}
	return rec
}

func (r *rawForexSetup) toModel() *models.ForexSetup {
	setup := &models.ForexSetup{
		Direction:        r.Direction,
		CurrentPrice:     r.CurrentPrice,
		Entry:            r.Entry,
		StopLoss:         r.StopLoss,
		SupportLevels:    r.SupportLevels,
		ResistanceLevels: r.ResistanceLevels,
		Session:          r.Session,
		NewsTiming:       r.NewsTiming,
	}

	setup.TakeProfits = r.parseTakeProfits()
	return setup
}

// parseTakeProfits merges the numbered fields and the array form,
// preferring the array when both appear
func (r *rawForexSetup) parseTakeProfits() []models.ForexTarget {
	if len(r.TakeProfits) > 0 {
		// Array of numbers
		var prices []float64
		if err := json.Unmarshal(r.TakeProfits, &prices); err == nil {
			targets := make([]models.ForexTarget, 0, len(prices))
			for _, price := range prices {
				targets = append(targets, models.ForexTarget{Price: price})
			}
			if len(targets) > 0 {
				return targets
			}
		}
		// Array of {price, pips} objects
		var objects []models.ForexTarget
		if err := json.Unmarshal(r.TakeProfits, &objects); err == nil && len(objects) > 0 {
			return objects
		}
	}

	var targets []models.ForexTarget
	for _, price := range []float64{r.TakeProfit1, r.TakeProfit2, r.TakeProfit3} {
		if price != 0 {
			targets = append(targets, models.ForexTarget{Price: price})
		}
	}
	return targets
}
