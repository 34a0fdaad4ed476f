package detect

import (
	"math"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

// EMA computes the exponential moving average of the last len(prices)
// closes at the given period, seeding with a simple average of the
// first `period` values (grounded on the teacher's calculateEMA, lifted
// out of its Binance-client wrapper into a pure function).
func EMA(prices []float64, period int) float64 {
	if len(prices) < period || period <= 0 {
		return 0
	}
	k := 2.0 / float64(period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	for i := period; i < len(prices); i++ {
		ema = (prices[i] * k) + (ema * (1 - k))
	}
	return ema
}

// RSI computes the Wilder RSI of the last period+1 closes in the frame.
// Returns 50 (neutral) if there isn't enough data, matching the
// teacher's fallback behavior.
func RSI(f candle.Frame, period int) float64 {
	if len(f) < period+1 {
		return 50.0
	}
	start := len(f) - period - 1
	var gains, losses float64
	for i := start + 1; i < len(f); i++ {
		change := f[i].Close - f[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDResult carries the MACD line, signal line and histogram.
type MACDResult struct {
	MACD, Signal, Histogram float64
}

// MACD computes the standard (fast, slow, signal) MACD off closing
// prices.
func MACD(f candle.Frame, fast, slow, signal int) MACDResult {
	if len(f) < slow+signal {
		return MACDResult{}
	}
	closes := closesOf(f)
	var macdSeries []float64
	for i := slow; i <= len(closes); i++ {
		window := closes[:i]
		macdSeries = append(macdSeries, EMA(window, fast)-EMA(window, slow))
	}
	if len(macdSeries) == 0 {
		return MACDResult{}
	}
	macd := macdSeries[len(macdSeries)-1]
	sig := EMA(macdSeries, signal)
	return MACDResult{MACD: macd, Signal: sig, Histogram: macd - sig}
}

func closesOf(f candle.Frame) []float64 {
	out := make([]float64, len(f))
	for i, c := range f {
		out[i] = c.Close
	}
	return out
}

// ATR computes the Average True Range over the last `period` bars.
func ATR(f candle.Frame, period int) float64 {
	if len(f) < period+1 {
		return 0
	}
	start := len(f) - period
	trSum := 0.0
	for i := start; i < len(f); i++ {
		tr1 := f[i].High - f[i].Low
		tr2 := math.Abs(f[i].High - f[i-1].Close)
		tr3 := math.Abs(f[i].Low - f[i-1].Close)
		trSum += math.Max(tr1, math.Max(tr2, tr3))
	}
	return trSum / float64(period)
}

// TrendStrength classifies ADX magnitude per spec §3 bands.
type TrendStrength string

const (
	NoTrend     TrendStrength = "NO_TREND"
	WeakTrend   TrendStrength = "WEAK"
	StrongTrend TrendStrength = "STRONG"
	VeryStrong  TrendStrength = "VERY_STRONG"
)

// ClassifyADX buckets an ADX reading into the spec's trend-strength bands
// (NO_TREND<20, WEAK 20-25, STRONG 25-50, VERY_STRONG>=50).
func ClassifyADX(adx float64) TrendStrength {
	switch {
	case adx < 20:
		return NoTrend
	case adx < 25:
		return WeakTrend
	case adx < 50:
		return StrongTrend
	default:
		return VeryStrong
	}
}

// ADX computes a directional-movement index from plain sums of +DM, -DM
// and true range over the last `period` bars. No Wilder smoothing is
// applied and DX is not averaged across bars.
func ADX(f candle.Frame, period int) float64 {
	if len(f) < period*2+1 {
		return 0
	}
	n := len(f)
	var plusDM, minusDM, tr []float64
	for i := n - period*2; i < n; i++ {
		if i == 0 {
			continue
		}
		upMove := f[i].High - f[i-1].High
		downMove := f[i-1].Low - f[i].Low
		pd, md := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			pd = upMove
		}
		if downMove > upMove && downMove > 0 {
			md = downMove
		}
		plusDM = append(plusDM, pd)
		minusDM = append(minusDM, md)
		tr1 := f[i].High - f[i].Low
		tr2 := math.Abs(f[i].High - f[i-1].Close)
		tr3 := math.Abs(f[i].Low - f[i-1].Close)
		tr = append(tr, math.Max(tr1, math.Max(tr2, tr3)))
	}
	if len(tr) < period {
		return 0
	}
	smooth := func(vals []float64) float64 {
		sum := 0.0
		for _, v := range vals[len(vals)-period:] {
			sum += v
		}
		return sum
	}
	trSum := smooth(tr)
	if trSum == 0 {
		return 0
	}
	plusDI := 100 * smooth(plusDM) / trSum
	minusDI := 100 * smooth(minusDM) / trSum
	diSum := plusDI + minusDI
	if diSum == 0 {
		return 0
	}
	dx := 100 * math.Abs(plusDI-minusDI) / diSum
	return dx
}

// CMF computes the Chaikin Money Flow over `period` bars, a volume-
// weighted measure of buying vs. selling pressure.
func CMF(f candle.Frame, period int) float64 {
	if len(f) < period {
		return 0
	}
	start := len(f) - period
	var mfvSum, volSum float64
	for i := start; i < len(f); i++ {
		c := f[i]
		rng := c.High - c.Low
		if rng == 0 {
			continue
		}
		mfm := ((c.Close - c.Low) - (c.High - c.Close)) / rng
		mfvSum += mfm * c.Volume
		volSum += c.Volume
	}
	if volSum == 0 {
		return 0
	}
	return mfvSum / volSum
}

// RelativeVolume is the current bar's volume divided by the average
// volume over the prior `lookback` bars (excluding the current bar).
func RelativeVolume(f candle.Frame, lookback int) float64 {
	if len(f) < lookback+1 {
		return 1.0
	}
	n := len(f)
	start := n - 1 - lookback
	sum := 0.0
	for i := start; i < n-1; i++ {
		sum += f[i].Volume
	}
	avg := sum / float64(lookback)
	if avg == 0 {
		return 1.0
	}
	return f[n-1].Volume / avg
}
