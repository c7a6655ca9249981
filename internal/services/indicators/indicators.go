// Package indicators computes RSI, SMA and MACD from daily close series.
// Every function is pure and total: insufficient data resolves to a neutral
// value or an absent result, never to an error.
package indicators

import "Pivot/internal/domain/models"

const (
	RSIPeriod    = 14
	SMAPeriod    = 50
	MACDFast     = 12
	MACDSlow     = 26
	MACDSignal   = 9
	MACDMinBars  = 35
	NeutralRSI   = 50.0
	MaxSeriesLen = 100
)

// Compute derives the full indicator set from chronological closes and the
// current price.
func Compute(closes []float64, currentPrice float64) models.Indicators {
	ind := models.Indicators{RSI: RSI(closes, RSIPeriod)}

	if sma, ok := SMA(closes, SMAPeriod); ok {
		ind.SMA50 = &sma
		ind.SMAAbove = currentPrice > sma
	}
	if line, signal, ok := MACD(closes); ok {
		ind.MACDCross = line > signal
	}
	return ind
}
