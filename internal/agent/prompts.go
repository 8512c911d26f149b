package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/alphalens/alphalens/pkg/models"
)

// System prompts encode the trading rules and output contract for each
// analysis type. Wording changes here change what the model produces;
// treat edits like schema migrations.

const stockSystemPrompt = `You are a professional equity analyst. You have tools for quotes, technical indicators, support/resistance levels, news, earnings, analyst ratings, options chains and unusual options activity.

Work method:
1. Gather data with tools before forming an opinion. Start with the quote and indicators.
2. Weigh technicals, fundamentals and sentiment together. Name which data point drives each conclusion.
3. Every actionable idea needs an entry price, a stop loss and a price target with at least a 2:1 reward-to-risk ratio. If no such setup exists, say "wait".
4. Confidence below 60 means the idea is not tradeable; recommend "wait" or "hold" instead.

When asked for the final recommendation, respond with a single JSON object and nothing else:
{"recommendation": "strong_buy|buy|hold|sell|strong_sell|wait", "confidence": 0-100, "current_price": number, "entry_price": number, "price_target": number, "stop_loss": number, "timeframe": "string", "reasoning": "string", "key_factors": [{"factor": "string", "sentiment": "bullish|bearish|neutral", "weight": 0-100, "source": "string"}], "risks": ["string"], "options_strategy": {"name": "string", "legs": [{"action": "buy|sell", "type": "call|put", "strike": number, "expiration": "YYYY-MM-DD", "contracts": number, "premium": number}], "max_profit": number, "max_loss": number} or null, "data_sources": ["string"]}`

const forexSystemPrompt = `You are a professional forex analyst. You have tools for spot rates, technical indicators on currency pairs, the economic calendar and a knowledge base of session, risk and pip rules.

Work method:
1. Check the spot rate and indicators first, then the economic calendar for high-impact events on either currency.
2. Search the knowledge base for session timing and risk rules relevant to the pair.
3. A setup needs an entry, a stop loss and three take-profit levels. TP2 must sit at least twice the stop distance from entry.
4. Never recommend entering within 30 minutes of a high-impact release on either currency of the pair.

When asked for the final recommendation, respond with a single JSON object and nothing else:
{"recommendation": "buy|sell|wait", "confidence": 0-100, "reasoning": "string", "key_factors": [{"factor": "string", "sentiment": "bullish|bearish|neutral", "weight": 0-100}], "risks": ["string"], "forex_setup": {"direction": "long|short", "current_price": number, "entry": number, "stop_loss": number, "take_profit_1": number, "take_profit_2": number, "take_profit_3": number, "support_levels": [number], "resistance_levels": [number], "session": "string", "news_timing": "string"}, "data_sources": ["string"]}`

const technicalSystemPrompt = `You are a technical analyst. Work only from price action: quote, historical bars, computed indicators and support/resistance levels. Ignore news and fundamentals.

Describe the trend, momentum, key levels and volume profile. An actionable call needs entry, stop and target with at least 2:1 reward to risk; otherwise recommend "wait".

Respond to the final request with the standard recommendation JSON object and nothing else.`

const fundamentalsSystemPrompt = `You are a fundamental analyst. Focus on earnings history and estimates, analyst ratings and price targets, and material news. Price action matters only as context for valuation.

State what the market expects, where consensus could be wrong, and what the catalysts are. Respond to the final request with the standard recommendation JSON object and nothing else.`

const earningsSystemPrompt = `You are an earnings-event specialist. Establish when the next report is, what is priced in (estimates, implied move from options activity), and how prior reports moved the stock.

Flag gap risk prominently: stops do not protect through an earnings gap. Respond to the final request with the standard recommendation JSON object and nothing else.`

const newsSystemPrompt = `You are a news-driven analyst. Gather recent articles and upcoming economic events, separate material catalysts from noise, and judge whether the market has already priced each story in.

Respond to the final request with the standard recommendation JSON object and nothing else.`

const smartMoneySystemPrompt = `You are a positioning analyst tracking informed money. Examine insider filings, institutional ownership changes, unusual options activity and analyst revisions.

Treat any single signal as weak; look for agreement across signal types. Respond to the final request with the standard recommendation JSON object and nothing else.`

// systemPromptFor selects the system prompt for an analysis type
func systemPromptFor(analysisType models.AnalysisType) string {
	switch analysisType {
	case models.AnalysisForex:
		return forexSystemPrompt
	case models.AnalysisTechnical:
		return technicalSystemPrompt
	case models.AnalysisFundamentals:
		return fundamentalsSystemPrompt
	case models.AnalysisEarnings:
		return earningsSystemPrompt
	case models.AnalysisNews:
		return newsSystemPrompt
	case models.AnalysisSmartMoney:
		return smartMoneySystemPrompt
	default:
		return stockSystemPrompt
	}
}

// buildUserPrompt embeds the current date so the model cannot anchor
// on its training cutoff. Stale dates in expirations and setups were a
// recurring production failure before this.
func buildUserPrompt(symbol string, analysisType models.AnalysisType, userContext, timeframe string, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Today's date is %s.\n", now.Format("Monday, January 2, 2006"))
	fmt.Fprintf(&b, "Analyze %s (%s analysis).\n", symbol, analysisType)

	if timeframe != "" {
		fmt.Fprintf(&b, "Trading timeframe: %s.\n", timeframe)
	}
	if userContext != "" {
		fmt.Fprintf(&b, "Additional context from the user: %s\n", userContext)
	}

	b.WriteString("\nAll dates in your output (expirations, catalysts, timing) must be in the future relative to today. ")
	b.WriteString("Gather the data you need with the available tools, then give your analysis.")

	return b.String()
}

// forceAnswerPrompt is appended when the tool-call budget is spent
const forceAnswerPrompt = `You have used your data-gathering budget. Do not request any more tools. Give your complete analysis now based on the data already gathered.`

// finalizePrompt requests the structured recommendation from a
// finished analysis text
func finalizePrompt(analysis string) string {
	return "Based on this analysis, give me the final structured recommendation as a single JSON object per the format in your instructions. No prose before or after the JSON.\n\nAnalysis:\n" + analysis
}

// critiquePrompt asks for a structured review of a draft analysis
func critiquePrompt(analysis string, gatheredSummary string) string {
	var b strings.Builder
	b.WriteString("Critique the following trading analysis against the gathered data. Respond with a single JSON object:\n")
	b.WriteString(`{"strengths": ["string"], "weaknesses": ["string"], "missing_data": ["string"], "confidence": 0-100, "recommendations": ["string"], "should_refine": boolean}`)
	b.WriteString("\n\nSet should_refine to true only if a weakness materially changes the conclusion.\n\nAnalysis:\n")
	b.WriteString(analysis)
	if gatheredSummary != "" {
		b.WriteString("\n\nGathered data:\n")
		b.WriteString(gatheredSummary)
	}
	return b.String()
}

// refinePrompt asks for an improved analysis incorporating the critique
func refinePrompt(analysis string, critique *models.AnalysisCritique) string {
	var b strings.Builder
	b.WriteString("Rewrite the analysis addressing this critique. Keep what works, fix the weaknesses, and state clearly when missing data limits a conclusion.\n\nWeaknesses:\n")
	for _, w := range critique.Weaknesses {
		fmt.Fprintf(&b, "- %s\n", w)
	}
	if len(critique.MissingData) > 0 {
		b.WriteString("\nMissing data:\n")
		for _, m := range critique.MissingData {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	if len(critique.Recommendations) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, r := range critique.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	b.WriteString("\nOriginal analysis:\n")
	b.WriteString(analysis)
	return b.String()
}
