package indicators

// RSI computes the Wilder-smoothed relative strength index.
// Requires period+1 closes; returns NeutralRSI otherwise.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return NeutralRSI
	}

	// Seed with the simple mean of the first `period` changes
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	p := float64(period)
	avgGain /= p
	avgLoss /= p

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
