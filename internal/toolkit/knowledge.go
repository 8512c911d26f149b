package toolkit

import (
	"sort"
	"strings"
)

// KnowledgeEntry is one curated trading note
type KnowledgeEntry struct {
	Topic   string   `json:"topic"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// KnowledgeBase is an in-memory keyword index over curated strategy
// notes. It exists so the agent can ground forex setups in named
// session and risk rules instead of inventing them per run.
type KnowledgeBase struct {
	entries []KnowledgeEntry
}

// NewKnowledgeBase loads the built-in note set
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{entries: builtinNotes}
}

// Search returns up to limit entries ranked by keyword overlap with
// the query. An empty result means no note shares a keyword with the
// query, not an error.
func (kb *KnowledgeBase) Search(query string, limit int) []KnowledgeEntry {
	if limit <= 0 {
		limit = 3
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		entry KnowledgeEntry
		score int
	}

	var matches []scored
	for _, entry := range kb.entries {
		haystack := strings.ToLower(entry.Topic + " " + entry.Content + " " + strings.Join(entry.Tags, " "))
		score := 0
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{entry: entry, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	result := make([]KnowledgeEntry, len(matches))
	for i, m := range matches {
		result[i] = m.entry
	}
	return result
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?\"'()")
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

var builtinNotes = []KnowledgeEntry{
	{
		Topic: "Forex session timing",
		Content: "London session (08:00-16:00 UTC) carries the highest EUR and GBP volume. " +
			"The London/New York overlap (13:00-16:00 UTC) is the most liquid window for majors. " +
			"Asian session favors JPY and AUD pairs but with tighter ranges. Avoid entering major " +
			"pairs in the hour before a session open when spreads widen.",
		Tags: []string{"forex", "session", "london", "overlap", "liquidity"},
	},
	{
		Topic: "Risk-reward discipline",
		Content: "A setup needs at least 2:1 reward to risk measured from entry to the second " +
			"take-profit against the stop. Setups below that ratio lose money even at a 60% win " +
			"rate. Scale out: close a third at TP1, move the stop to breakeven, let the rest run.",
		Tags: []string{"risk", "reward", "stop", "take-profit", "position"},
	},
	{
		Topic: "News timing for forex entries",
		Content: "Do not hold a fresh position through a high-impact release (NFP, CPI, central " +
			"bank rate decisions) on either currency of the pair. Spreads can widen 5-10x and stops " +
			"fill far beyond their level. Wait 15-30 minutes after the release for the spike to settle.",
		Tags: []string{"forex", "news", "nfp", "cpi", "central bank", "timing"},
	},
	{
		Topic: "Pip math for JPY pairs",
		Content: "A pip is 0.0001 for most pairs but 0.01 for JPY quotes because the yen trades " +
			"near 150 per dollar rather than near parity. Stop and target distances quoted in pips " +
			"must use the right multiplier or the risk math is off by two orders of magnitude.",
		Tags: []string{"forex", "pip", "jpy", "yen"},
	},
	{
		Topic: "Trend alignment before entry",
		Content: "Only take longs when price sits above both the 20 and 50 EMA and the 20 is above " +
			"the 50; mirror for shorts. Counter-trend entries need a confirmed reversal structure, " +
			"not just an oversold oscillator. RSI divergence alone is a warning, not a signal.",
		Tags: []string{"trend", "ema", "rsi", "entry", "alignment"},
	},
	{
		Topic: "Support and resistance quality",
		Content: "A level gains weight with each clean rejection and loses it with each retest. " +
			"Round numbers and prior daily closes attract stops. Place stops beyond the level plus " +
			"one ATR fraction, never exactly at the level.",
		Tags: []string{"support", "resistance", "levels", "stop", "atr"},
	},
	{
		Topic: "Earnings gap risk for stocks",
		Content: "Options and stock positions held through earnings carry gap risk that stops do " +
			"not protect against. Implied volatility crush after the report can lose money on long " +
			"options even when the direction call is right.",
		Tags: []string{"earnings", "gap", "options", "volatility", "crush"},
	},
	{
		Topic: "Unusual options activity interpretation",
		Content: "Volume far above open interest signals fresh positioning, but sweeps at the ask " +
			"are the bullish tell, not volume alone. Large prints can be hedges against an equity " +
			"book. Treat flow as a confirmation layer, never a standalone signal.",
		Tags: []string{"options", "flow", "volume", "open interest", "smart money"},
	},
}
