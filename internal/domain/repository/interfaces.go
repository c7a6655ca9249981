package repository

import (
	"context"

	"Pivot/internal/domain/models"
)

// QuoteProvider serves quotes and company metadata.
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
	GetCompanyProfile(ctx context.Context, symbol string) (models.CompanyProfile, error)
	SearchSymbols(ctx context.Context, query string) ([]models.SymbolMatch, error)
}

// SeriesProvider serves daily close prices, oldest first.
// A nil slice with a nil error means the provider has no data for the symbol.
type SeriesProvider interface {
	GetTimeSeries(ctx context.Context, symbol string) ([]float64, error)
}

// NewsProvider serves the read-only market research endpoints.
type NewsProvider interface {
	GetMarketNews(ctx context.Context) ([]models.NewsItem, error)
	GetRecommendations(ctx context.Context, symbol string) ([]models.Recommendation, error)
}

// MarketStream delivers live trades for subscribed symbols.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Unsubscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context, symbols []string) error
	Close() error
	IsConnected() bool
}

// SeriesCache is a best-effort store of close series. Implementations never
// return errors; faults behave as misses.
type SeriesCache interface {
	Get(ctx context.Context, symbol string) ([]float64, bool)
	Put(ctx context.Context, symbol string, closes []float64)
	Delete(ctx context.Context, symbol string)
}

// SettingsStore persists user settings.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (models.Settings, bool, error)
	SaveSettings(ctx context.Context, s models.Settings) error
}

// WatchlistStore persists tracked symbols and the signal log.
type WatchlistStore interface {
	LoadWatchlist(ctx context.Context) (models.PersistedWatchlist, bool, error)
	SaveWatchlist(ctx context.Context, w models.PersistedWatchlist) error
}

// SignalPublisher receives every newly logged signal.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, e models.SignalLogEntry) error
	Close() error
}

// Metrics records engine observations.
type Metrics interface {
	RecordRefresh(kind string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordSignal(symbol string)
	RecordCacheLookup(result string)
}
