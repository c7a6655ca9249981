//go:build wireinject
// +build wireinject

package di

import (
	"Pivot/pkg/config"
	"Pivot/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function. The cleanup
// releases stores, caches and producers in reverse order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Logging and metrics
		ProvideLogger,
		ProvideRegisterer,
		ProvideMetrics,

		// Storage and caches
		ProvideStore,
		ProvideSettingsStore,
		ProvideWatchlistStore,
		ProvideBytesCache,
		ProvideSeriesCache,

		// Market data providers
		ProvideFinnhubClient,
		ProvideQuoteProvider,
		ProvideNewsProvider,
		ProvideSeriesProvider,

		// Signal sinks
		ProvideSignalPublishers,

		// Use cases
		ProvideSettingsService,
		ProvideEngine,
		ProvideTradeCollector,

		// HTTP
		ProvideHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil, nil
}
