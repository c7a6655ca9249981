// Package signals decides whether a symbol's indicators satisfy the buy rule set.
package signals

import (
	"fmt"
	"strconv"

	"Pivot/internal/domain/models"
)

const (
	ReasonSMA  = "Price above 50-day MA"
	ReasonMACD = "MACD bullish crossover"
)

// Evaluate applies settings to indicators. A disabled condition never blocks
// the signal and never contributes a reason. With no condition enabled the
// signal is always inactive.
func Evaluate(ind models.Indicators, s models.Settings) (bool, []string) {
	rsiOK := !s.RSIEnabled || ind.RSI < s.RSIThreshold
	smaOK := !s.SMAEnabled || ind.SMAAbove
	macdOK := !s.MACDEnabled || ind.MACDCross

	anyEnabled := s.RSIEnabled || s.SMAEnabled || s.MACDEnabled
	active := anyEnabled && rsiOK && smaOK && macdOK

	return active, Conditions(ind, s)
}

// Conditions lists the enabled conditions that currently hold, in the fixed
// order RSI, SMA, MACD.
func Conditions(ind models.Indicators, s models.Settings) []string {
	out := make([]string, 0, 3)
	if s.RSIEnabled && ind.RSI < s.RSIThreshold {
		out = append(out, fmt.Sprintf("RSI %.1f below %s", ind.RSI, formatThreshold(s.RSIThreshold)))
	}
	if s.SMAEnabled && ind.SMAAbove {
		out = append(out, ReasonSMA)
	}
	if s.MACDEnabled && ind.MACDCross {
		out = append(out, ReasonMACD)
	}
	return out
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
