package models

import "time"

// StockState is the live view of one tracked symbol. It is replaced as a whole
// on every refresh, never mutated in place.
type StockState struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	ChangePercent float64   `json:"changePercent"`
	PrevClose     float64   `json:"prevClose"`
	RSI           float64   `json:"rsi"`
	SMAAbove      bool      `json:"smaAbove"`
	MACDCross     bool      `json:"macdCross"`
	SignalActive  bool      `json:"signalActive"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Quote is the current trading snapshot for a symbol.
type Quote struct {
	Current       float64
	Change        float64
	ChangePercent float64
	High          float64
	Low           float64
	Open          float64
	PrevClose     float64
}

// CompanyProfile holds the display data of a listed company.
type CompanyProfile struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// SymbolMatch is a single autocomplete hit.
type SymbolMatch struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// NewsItem is a general market headline.
type NewsItem struct {
	ID       int64  `json:"id"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Datetime int64  `json:"datetime"` // unix seconds
	URL      string `json:"url"`
	Image    string `json:"image"`
	Summary  string `json:"summary"`
}

// Recommendation is one period of analyst recommendation counts.
type Recommendation struct {
	Period     string `json:"period"` // YYYY-MM-DD
	StrongBuy  int    `json:"strongBuy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strongSell"`
}

// Trade is a single print received from the live stream.
type Trade struct {
	Symbol    string
	Timestamp int64 // unix seconds
	Price     float64
	Volume    float64
}
