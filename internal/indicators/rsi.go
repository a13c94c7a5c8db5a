package indicators

import "math"

// RSISeries computes RSI with Wilder smoothing. The first value lands on index period.
func RSISeries(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}
	gains := nanSlice(len(closes))
	losses := nanSlice(len(closes))
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gains[i] = math.Max(change, 0)
		losses[i] = math.Max(-change, 0)
	}
	avgGain := wilder(gains, period)
	avgLoss := wilder(losses, period)
	for i := period; i < len(closes); i++ {
		out[i] = rsiValue(avgGain[i], avgLoss[i])
	}
	return out
}

// RSI is the latest RSISeries value.
func RSI(closes []float64, period int) float64 {
	s := RSISeries(closes, period)
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

func rsiValue(gain, loss float64) float64 {
	switch {
	case loss == 0 && gain == 0:
		return 50
	case loss == 0:
		return 100
	}
	v := 100 - 100/(1+gain/loss)
	return math.Min(100, math.Max(0, v))
}
