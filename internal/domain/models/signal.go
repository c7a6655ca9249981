package models

import "time"

// SignalLogEntry records one false->true transition of a symbol's buy signal.
type SignalLogEntry struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	TriggeredAt time.Time `json:"triggeredAt"`
	Conditions  []string  `json:"conditions"`
}

// Indicators are derived from a close series and the current price.
// SMA50 is nil when the series is shorter than 50 closes.
type Indicators struct {
	RSI       float64  `json:"rsi"`
	SMA50     *float64 `json:"sma50,omitempty"`
	SMAAbove  bool     `json:"smaAbove"`
	MACDCross bool     `json:"macdCross"`
}

// Settings controls which conditions take part in signal evaluation.
type Settings struct {
	RSIEnabled   bool    `json:"rsiEnabled"`
	RSIThreshold float64 `json:"rsiThreshold"`
	SMAEnabled   bool    `json:"smaEnabled"`
	MACDEnabled  bool    `json:"macdEnabled"`
}

// DefaultSettings returns the settings used before the user changes anything.
func DefaultSettings() Settings {
	return Settings{
		RSIEnabled:   true,
		RSIThreshold: 30,
		SMAEnabled:   true,
		MACDEnabled:  true,
	}
}

// WatchlistSnapshot is a consistent copy of the engine state for readers.
type WatchlistSnapshot struct {
	Symbols     []string              `json:"symbols"`
	Stocks      map[string]StockState `json:"stocks"`
	SignalLog   []SignalLogEntry      `json:"signalLog"`
	Loading     bool                  `json:"loading"`
	Error       string                `json:"error,omitempty"`
	LastUpdated *time.Time            `json:"lastUpdated,omitempty"`
	Polling     bool                  `json:"polling"`
}

// PersistedWatchlist is the durable part of the watchlist. Live stock state is
// never stored and is rebuilt by a full refresh.
type PersistedWatchlist struct {
	Symbols   []string         `json:"symbols"`
	SignalLog []SignalLogEntry `json:"signalLog"`
}
