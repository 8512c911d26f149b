package indicators

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alphalens/alphalens/pkg/models"
)

// risingBars builds n bars with a steadily increasing close
func risingBars(n int, start, step float64) []models.Bar {
	bars := make([]models.Bar, n)
	price := start
	for i := range bars {
		bars[i] = models.Bar{
			Open:   decimal.NewFromFloat(price - step/2),
			High:   decimal.NewFromFloat(price + step),
			Low:    decimal.NewFromFloat(price - step),
			Close:  decimal.NewFromFloat(price),
			Volume: 1000,
		}
		price += step
	}
	return bars
}

func TestSummarize(t *testing.T) {
	calc := NewCalculator()

	t.Run("insufficient bars", func(t *testing.T) {
		if _, err := calc.Summarize("AAPL", risingBars(10, 100, 1)); err == nil {
			t.Fatal("expected error for short series")
		}
	})

	t.Run("rising series", func(t *testing.T) {
		bars := risingBars(60, 100, 0.5)
		sum, err := calc.Summarize("AAPL", bars)
		if err != nil {
			t.Fatalf("Summarize: %v", err)
		}
		if sum.RSI14 <= 50 {
			t.Errorf("RSI on rising series = %.2f, want > 50", sum.RSI14)
		}
		if sum.Trend != "uptrend" {
			t.Errorf("trend = %q, want uptrend", sum.Trend)
		}
		if sum.EMA["20"] <= sum.EMA["50"] {
			t.Errorf("EMA20 %.2f should exceed EMA50 %.2f on rising series", sum.EMA["20"], sum.EMA["50"])
		}
		if sum.Volume.Ratio == 0 {
			t.Error("volume ratio should be computed")
		}
	})
}

func TestDetectTrend(t *testing.T) {
	calc := NewCalculator()

	falling := risingBars(60, 200, -0.5)
	trend, err := calc.DetectTrend(falling)
	if err != nil {
		t.Fatalf("DetectTrend: %v", err)
	}
	if trend != "downtrend" {
		t.Errorf("trend = %q, want downtrend", trend)
	}
}

func TestSupportResistance(t *testing.T) {
	calc := NewCalculator()

	// V-shaped series: clear swing low in the middle
	bars := make([]models.Bar, 0, 40)
	bars = append(bars, risingBars(20, 120, -1)...)
	bars = append(bars, risingBars(20, 101, 1)...)

	support, _ := calc.SupportResistance(bars, 40)
	if len(support) == 0 {
		t.Fatal("expected at least one support level at the swing low")
	}

	found := false
	for _, lvl := range support {
		if lvl > 98 && lvl < 104 {
			found = true
		}
	}
	if !found {
		t.Errorf("support levels %v do not include the swing low near 100-102", support)
	}
}
