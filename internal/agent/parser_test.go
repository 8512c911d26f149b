package agent

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alphalens/alphalens/pkg/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) // a Tuesday

func TestParseQualityGates(t *testing.T) {
	p := newParserAt(testNow)

	t.Run("poor reward risk forces wait", func(t *testing.T) {
		raw := `{"recommendation":"buy","confidence":90,"entry_price":100,"stop_loss":95,"price_target":102,"reasoning":"momentum looks strong"}`
		rec := p.Parse(raw, "AAPL", models.AnalysisStock, nil)

		if rec.Recommendation != models.RecWait {
			t.Fatalf("recommendation = %s, want wait", rec.Recommendation)
		}
		if !strings.Contains(rec.Reasoning, "0.40") {
			t.Errorf("reasoning should cite the ratio: %s", rec.Reasoning)
		}
		if !strings.Contains(rec.Reasoning, "momentum looks strong") {
			t.Errorf("original reasoning should be preserved as trailing context: %s", rec.Reasoning)
		}
	})

	t.Run("good reward risk passes", func(t *testing.T) {
		raw := `{"recommendation":"buy","confidence":75,"entry_price":100,"stop_loss":95,"price_target":112}`
		rec := p.Parse(raw, "AAPL", models.AnalysisStock, nil)

		if rec.Recommendation != models.RecBuy {
			t.Fatalf("recommendation = %s, want buy", rec.Recommendation)
		}
	})

	t.Run("low confidence forces wait", func(t *testing.T) {
		raw := `{"recommendation":"sell","confidence":40,"entry_price":100,"stop_loss":105,"price_target":88}`
		rec := p.Parse(raw, "AAPL", models.AnalysisStock, nil)

		if rec.Recommendation != models.RecWait {
			t.Fatalf("recommendation = %s, want wait", rec.Recommendation)
		}
	})

	t.Run("hold is never gated", func(t *testing.T) {
		raw := `{"recommendation":"hold","confidence":35}`
		rec := p.Parse(raw, "AAPL", models.AnalysisStock, nil)

		if rec.Recommendation != models.RecHold {
			t.Fatalf("recommendation = %s, want hold", rec.Recommendation)
		}
	})

	t.Run("gate only applies to stock analysis type", func(t *testing.T) {
		raw := `{"recommendation":"buy","confidence":80,"entry_price":100,"stop_loss":95,"price_target":102}`
		rec := p.Parse(raw, "AAPL", models.AnalysisSmartMoney, nil)

		if rec.Recommendation != models.RecBuy {
			t.Fatalf("recommendation = %s, want buy for non-stock type", rec.Recommendation)
		}
	})
}

func TestParseDegraded(t *testing.T) {
	p := newParserAt(testNow)

	t.Run("not json at all", func(t *testing.T) {
		rec := p.Parse("not json at all", "AAPL", models.AnalysisStock, nil)

		if rec.Recommendation != models.RecHold {
			t.Errorf("recommendation = %s, want hold", rec.Recommendation)
		}
		if rec.Confidence != 30 {
			t.Errorf("confidence = %d, want 30", rec.Confidence)
		}
		if len(rec.Risks) != 1 || rec.Risks[0] != "Analysis parsing failed - review manually" {
			t.Errorf("risks = %v", rec.Risks)
		}
		if rec.Reasoning != "not json at all" {
			t.Errorf("reasoning = %q", rec.Reasoning)
		}
	})

	t.Run("reasoning truncated to 500 chars", func(t *testing.T) {
		rec := p.Parse(strings.Repeat("x", 900), "AAPL", models.AnalysisStock, nil)
		if len(rec.Reasoning) != 500 {
			t.Errorf("reasoning length = %d, want 500", len(rec.Reasoning))
		}
	})

	t.Run("unbalanced braces", func(t *testing.T) {
		rec := p.Parse(`{"recommendation":"buy"`, "AAPL", models.AnalysisStock, nil)
		if rec.Recommendation != models.RecHold || rec.Confidence != 30 {
			t.Errorf("unbalanced JSON should degrade: %s/%d", rec.Recommendation, rec.Confidence)
		}
	})
}

func TestParseExtraction(t *testing.T) {
	p := newParserAt(testNow)

	t.Run("json inside markdown fences", func(t *testing.T) {
		raw := "Here you go:\n```json\n{\"recommendation\":\"hold\",\"confidence\":55}\n```\nDone."
		rec := p.Parse(raw, "AAPL", models.AnalysisStock, nil)
		if rec.Recommendation != models.RecHold || rec.Confidence != 55 {
			t.Errorf("got %s/%d", rec.Recommendation, rec.Confidence)
		}
	})

	t.Run("braces inside string literals", func(t *testing.T) {
		raw := `{"recommendation":"hold","confidence":50,"reasoning":"watch the {range} pattern"}`
		rec := p.Parse(raw, "AAPL", models.AnalysisStock, nil)
		if rec.Reasoning != "watch the {range} pattern" {
			t.Errorf("reasoning = %q", rec.Reasoning)
		}
	})

	t.Run("confidence clamped", func(t *testing.T) {
		rec := p.Parse(`{"recommendation":"hold","confidence":150}`, "AAPL", models.AnalysisStock, nil)
		if rec.Confidence != 100 {
			t.Errorf("confidence = %d, want 100", rec.Confidence)
		}
	})

	t.Run("missing confidence defaults to 50", func(t *testing.T) {
		rec := p.Parse(`{"recommendation":"hold"}`, "AAPL", models.AnalysisStock, nil)
		if rec.Confidence != 50 {
			t.Errorf("confidence = %d, want 50", rec.Confidence)
		}
	})

	t.Run("idempotent except generated_at", func(t *testing.T) {
		raw := `{"recommendation":"buy","confidence":75,"entry_price":100,"stop_loss":95,"price_target":112,"risks":["gap risk"]}`
		a := p.Parse(raw, "AAPL", models.AnalysisStock, nil)
		b := p.Parse(raw, "AAPL", models.AnalysisStock, nil)

		a.GeneratedAt, b.GeneratedAt = time.Time{}, time.Time{}
		aj, _ := json.Marshal(a)
		bj, _ := json.Marshal(b)
		if string(aj) != string(bj) {
			t.Errorf("re-parse not idempotent:\n%s\n%s", aj, bj)
		}
	})
}

func TestForexNormalization(t *testing.T) {
	p := newParserAt(testNow)

	t.Run("pip multiplier", func(t *testing.T) {
		if got := PipMultiplier("EURUSD"); got != 10000 {
			t.Errorf("EURUSD multiplier = %v", got)
		}
		if got := PipMultiplier("USDJPY"); got != 100 {
			t.Errorf("USDJPY multiplier = %v", got)
		}
		if got := PipMultiplier("eurjpy"); got != 100 {
			t.Errorf("eurjpy multiplier = %v", got)
		}
	})

	t.Run("pips computed from prices", func(t *testing.T) {
		raw := `{"recommendation":"buy","confidence":80,"forex_setup":{"direction":"long","entry":1.1000,"stop_loss":1.0950,"take_profit_1":1.1050,"take_profit_2":1.1120,"take_profit_3":1.1200}}`
		rec := p.Parse(raw, "EURUSD", models.AnalysisForex, nil)

		setup := rec.ForexSetup
		if setup == nil {
			t.Fatal("forex setup missing")
		}
		if got := setup.StopPips; got < 49.9 || got > 50.1 {
			t.Errorf("stop pips = %v, want 50", got)
		}
		if len(setup.TakeProfits) != 3 {
			t.Fatalf("take profits = %d, want 3", len(setup.TakeProfits))
		}
		if got := setup.TakeProfits[1].Pips; got < 119.9 || got > 120.1 {
			t.Errorf("TP2 pips = %v, want 120", got)
		}
		// 120/50 = 2.4, passes the gate
		if rec.Recommendation != models.RecBuy {
			t.Errorf("recommendation = %s, want buy", rec.Recommendation)
		}
	})

	t.Run("thin TP2 forces wait", func(t *testing.T) {
		raw := `{"recommendation":"buy","confidence":80,"forex_setup":{"entry":1.1000,"stop_loss":1.0950,"take_profit_1":1.1020,"take_profit_2":1.1040,"take_profit_3":1.1100}}`
		rec := p.Parse(raw, "EURUSD", models.AnalysisForex, nil)

		if rec.Recommendation != models.RecWait {
			t.Fatalf("recommendation = %s, want wait", rec.Recommendation)
		}
		if !strings.Contains(rec.Reasoning, "pips") {
			t.Errorf("reasoning should explain the pip gate: %s", rec.Reasoning)
		}
	})

	t.Run("take_profits array form", func(t *testing.T) {
		raw := `{"recommendation":"buy","confidence":80,"forex_setup":{"entry":1.1000,"stop_loss":1.0950,"take_profits":[1.1060,1.1120,1.1200]}}`
		rec := p.Parse(raw, "EURUSD", models.AnalysisForex, nil)

		if len(rec.ForexSetup.TakeProfits) != 3 {
			t.Fatalf("take profits = %d, want 3", len(rec.ForexSetup.TakeProfits))
		}
		if rec.ForexSetup.TakeProfits[0].Price != 1.1060 {
			t.Errorf("TP1 price = %v", rec.ForexSetup.TakeProfits[0].Price)
		}
	})
}

func TestCurrentPricePriority(t *testing.T) {
	p := newParserAt(testNow)
	quotePrice := 187.5

	t.Run("explicit field wins", func(t *testing.T) {
		raw := `{"recommendation":"hold","current_price":190.0}`
		rec := p.Parse(raw, "AAPL", models.AnalysisStock, &quotePrice)
		if rec.CurrentPrice == nil || *rec.CurrentPrice != 190.0 {
			t.Errorf("current price = %v", rec.CurrentPrice)
		}
	})

	t.Run("forex setup price beats quote", func(t *testing.T) {
		raw := `{"recommendation":"hold","forex_setup":{"current_price":1.1005,"entry":1.1,"stop_loss":1.09}}`
		rec := p.Parse(raw, "EURUSD", models.AnalysisForex, &quotePrice)
		if rec.CurrentPrice == nil || *rec.CurrentPrice != 1.1005 {
			t.Errorf("current price = %v", rec.CurrentPrice)
		}
	})

	t.Run("quote price is the fallback", func(t *testing.T) {
		raw := `{"recommendation":"hold"}`
		rec := p.Parse(raw, "AAPL", models.AnalysisStock, &quotePrice)
		if rec.CurrentPrice == nil || *rec.CurrentPrice != 187.5 {
			t.Errorf("current price = %v", rec.CurrentPrice)
		}
	})
}

func TestFixOptionsExpirations(t *testing.T) {
	p := newParserAt(testNow) // 2026-03-10

	raw := `{"recommendation":"hold","options_strategy":{"name":"covered call","legs":[{"action":"sell","type":"call","strike":200,"expiration":"2025-06-20"},{"action":"buy","type":"call","strike":210,"expiration":"2026-09-18"}]}}`
	rec := p.Parse(raw, "AAPL", models.AnalysisStock, nil)

	legs := rec.OptionsStrategy.Legs
	fixed, err := time.Parse("2006-01-02", legs[0].Expiration)
	if err != nil {
		t.Fatalf("fixed expiration unparseable: %v", err)
	}
	if !fixed.After(testNow) {
		t.Errorf("fixed expiration %s not in the future", legs[0].Expiration)
	}
	if fixed.Weekday() != time.Friday {
		t.Errorf("fixed expiration %s is a %s, want Friday", legs[0].Expiration, fixed.Weekday())
	}
	// Rolled to the same month/day region a year later
	if fixed.Month() != time.June {
		t.Errorf("fixed expiration month = %s, want June", fixed.Month())
	}

	// Future-dated leg untouched
	if legs[1].Expiration != "2026-09-18" {
		t.Errorf("future leg was modified: %s", legs[1].Expiration)
	}
}
