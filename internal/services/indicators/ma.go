package indicators

// SMA returns the mean of the last period closes. ok is false when fewer than
// period closes are available.
func SMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period), true
}

// ema returns the exponential moving average series seeded with the first value.
func ema(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	k := 2 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// MACD returns the last MACD line and signal line values. The line only uses
// points from index MACDSlow-1 onward, where the slow EMA has converged.
func MACD(closes []float64) (line, signal float64, ok bool) {
	if len(closes) < MACDMinBars {
		return 0, 0, false
	}
	fast := ema(closes, MACDFast)
	slow := ema(closes, MACDSlow)

	macd := make([]float64, 0, len(closes)-(MACDSlow-1))
	for i := MACDSlow - 1; i < len(closes); i++ {
		macd = append(macd, fast[i]-slow[i])
	}
	sig := ema(macd, MACDSignal)
	return macd[len(macd)-1], sig[len(sig)-1], true
}
