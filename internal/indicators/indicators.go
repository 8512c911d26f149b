// Package indicators computes technical indicators locally from
// historical bars so the agent does not burn a provider call (or a
// provider subscription tier) for arithmetic it can do itself.
package indicators

import (
	"fmt"

	"github.com/cinar/indicator"

	"github.com/alphalens/alphalens/pkg/models"
)

// Summary is the full indicator readout for one symbol and period set
type Summary struct {
	Symbol    string             `json:"symbol"`
	RSI14     float64            `json:"rsi_14"`
	MACD      MACDValue          `json:"macd"`
	Bollinger BollingerValue     `json:"bollinger"`
	EMA       map[string]float64 `json:"ema"` // period -> value
	SMA       map[string]float64 `json:"sma"`
	ATR14     float64            `json:"atr_14"`
	Trend     string             `json:"trend"` // uptrend, downtrend, sideways
	Volume    VolumeValue        `json:"volume"`
}

type MACDValue struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type BollingerValue struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

type VolumeValue struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Ratio   float64 `json:"ratio"`
}

// Calculator computes indicators from bar series
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// minBars covers the slowest default period (MACD 26) plus warmup
const minBars = 30

// Summarize computes the standard indicator set from bars ordered
// oldest first
func (c *Calculator) Summarize(symbol string, bars []models.Bar) (*Summary, error) {
	if len(bars) < minBars {
		return nil, fmt.Errorf("insufficient bars for indicators (need at least %d, got %d)", minBars, len(bars))
	}

	closes, highs, lows, volumes := extract(bars)

	_, rsi := indicator.Rsi(closes)
	if len(rsi) == 0 {
		return nil, fmt.Errorf("RSI returned no data")
	}

	macdLine, signalLine := indicator.Macd(closes)
	macd := MACDValue{
		MACD:   macdLine[len(macdLine)-1],
		Signal: signalLine[len(signalLine)-1],
	}
	macd.Histogram = macd.MACD - macd.Signal

	bbMiddle, bbUpper, bbLower := indicator.BollingerBands(closes)

	_, atr := indicator.Atr(14, highs, lows, closes)
	if len(atr) == 0 {
		return nil, fmt.Errorf("ATR returned no data")
	}

	volumeAvg := average(volumes)
	currentVolume := volumes[len(volumes)-1]
	volumeRatio := 0.0
	if volumeAvg > 0 {
		volumeRatio = currentVolume / volumeAvg
	}

	trend, err := c.DetectTrend(bars)
	if err != nil {
		trend = "unknown"
	}

	summary := &Summary{
		Symbol: symbol,
		RSI14:  rsi[len(rsi)-1],
		MACD:   macd,
		Bollinger: BollingerValue{
			Upper:  bbUpper[len(bbUpper)-1],
			Middle: bbMiddle[len(bbMiddle)-1],
			Lower:  bbLower[len(bbLower)-1],
		},
		EMA:   map[string]float64{},
		SMA:   map[string]float64{},
		ATR14: atr[len(atr)-1],
		Trend: trend,
		Volume: VolumeValue{
			Current: currentVolume,
			Average: volumeAvg,
			Ratio:   volumeRatio,
		},
	}

	for _, period := range []int{20, 50} {
		if ema, err := c.EMA(bars, period); err == nil {
			summary.EMA[fmt.Sprintf("%d", period)] = ema
		}
		if sma, err := c.SMA(bars, period); err == nil {
			summary.SMA[fmt.Sprintf("%d", period)] = sma
		}
	}

	return summary, nil
}

// RSI calculates RSI for a specific period
func (c *Calculator) RSI(bars []models.Bar, period int) (float64, error) {
	if len(bars) < period+1 {
		return 0, fmt.Errorf("insufficient bars for RSI calculation")
	}

	closes, _, _, _ := extract(bars)
	_, rsi := indicator.Rsi(closes)
	if len(rsi) == 0 {
		return 0, fmt.Errorf("RSI returned no data")
	}
	return rsi[len(rsi)-1], nil
}

// EMA calculates the latest exponential moving average
func (c *Calculator) EMA(bars []models.Bar, period int) (float64, error) {
	if len(bars) < period {
		return 0, fmt.Errorf("insufficient bars for EMA calculation")
	}

	closes, _, _, _ := extract(bars)
	ema := indicator.Ema(period, closes)
	if len(ema) == 0 {
		return 0, fmt.Errorf("EMA calculation failed")
	}
	return ema[len(ema)-1], nil
}

// SMA calculates the latest simple moving average
func (c *Calculator) SMA(bars []models.Bar, period int) (float64, error) {
	if len(bars) < period {
		return 0, fmt.Errorf("insufficient bars for SMA calculation")
	}

	closes, _, _, _ := extract(bars)
	sma := indicator.Sma(period, closes)
	if len(sma) == 0 {
		return 0, fmt.Errorf("SMA calculation failed")
	}
	return sma[len(sma)-1], nil
}

// ATR calculates Average True Range for a specific period
func (c *Calculator) ATR(bars []models.Bar, period int) (float64, error) {
	if len(bars) < period+1 {
		return 0, fmt.Errorf("insufficient bars for ATR calculation")
	}

	closes, highs, lows, _ := extract(bars)
	_, atr := indicator.Atr(period, highs, lows, closes)
	if len(atr) == 0 {
		return 0, fmt.Errorf("ATR returned no data")
	}
	return atr[len(atr)-1], nil
}

// DetectTrend classifies trend direction from price vs EMA20 vs EMA50
func (c *Calculator) DetectTrend(bars []models.Bar) (string, error) {
	if len(bars) < 50 {
		return "unknown", fmt.Errorf("insufficient data for trend detection")
	}

	ema20, err := c.EMA(bars, 20)
	if err != nil {
		return "unknown", err
	}
	ema50, err := c.EMA(bars, 50)
	if err != nil {
		return "unknown", err
	}

	currentPrice, _ := bars[len(bars)-1].Close.Float64()

	switch {
	case currentPrice > ema20 && ema20 > ema50:
		return "uptrend", nil
	case currentPrice < ema20 && ema20 < ema50:
		return "downtrend", nil
	default:
		return "sideways", nil
	}
}

// SupportResistance finds recent swing lows and highs within lookback
// bars. Levels are local extrema over a 5-bar window, deduplicated
// within 0.5% of each other.
func (c *Calculator) SupportResistance(bars []models.Bar, lookback int) (support, resistance []float64) {
	if lookback > len(bars) {
		lookback = len(bars)
	}
	if lookback < 5 {
		return nil, nil
	}

	window := bars[len(bars)-lookback:]
	for i := 2; i < len(window)-2; i++ {
		low, _ := window[i].Low.Float64()
		high, _ := window[i].High.Float64()

		isLow, isHigh := true, true
		for j := i - 2; j <= i+2; j++ {
			if j == i {
				continue
			}
			l, _ := window[j].Low.Float64()
			h, _ := window[j].High.Float64()
			if l < low {
				isLow = false
			}
			if h > high {
				isHigh = false
			}
		}

		if isLow && !nearAny(support, low) {
			support = append(support, low)
		}
		if isHigh && !nearAny(resistance, high) {
			resistance = append(resistance, high)
		}
	}

	return support, resistance
}

func nearAny(levels []float64, price float64) bool {
	for _, lvl := range levels {
		if lvl == 0 {
			continue
		}
		diff := price - lvl
		if diff < 0 {
			diff = -diff
		}
		if diff/lvl < 0.005 {
			return true
		}
	}
	return false
}

func extract(bars []models.Bar) (closes, highs, lows, volumes []float64) {
	closes = make([]float64, len(bars))
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	volumes = make([]float64, len(bars))

	for i, bar := range bars {
		closes[i], _ = bar.Close.Float64()
		highs[i], _ = bar.High.Float64()
		lows[i], _ = bar.Low.Float64()
		volumes[i] = float64(bar.Volume)
	}
	return closes, highs, lows, volumes
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
