package models

// Requests for watchlist HTTP endpoints. Defined in domain for consistency and reuse.

type AddSymbolRequest struct {
	Symbol string `json:"symbol" validate:"required,max=16"`
}

type ThresholdRequest struct {
	Value float64 `json:"value" validate:"gte=1,lte=100"`
}

type SignalLogRequest struct {
	Limit int `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=100"`
}

type SearchRequest struct {
	Query string `query:"q" json:"q" validate:"required,max=64"`
}
