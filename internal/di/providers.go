package di

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"Pivot/internal/domain/models"
	"Pivot/internal/domain/repository"
	"Pivot/internal/handler/api"
	mid "Pivot/internal/middleware"
	internalrepo "Pivot/internal/repository"
	icache "Pivot/internal/service/cache"
	"Pivot/internal/service/finnhub"
	"Pivot/internal/service/ratelimit"
	"Pivot/internal/service/twelvedata"
	"Pivot/internal/usecase"
	"Pivot/pkg/config"
	xhttp "Pivot/pkg/http"
	httpmw "Pivot/pkg/http/middleware"
	pkgkafka "Pivot/pkg/kafka"
	applogger "Pivot/pkg/logger"
	"Pivot/pkg/metrics"
	"Pivot/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store persists both settings and the watchlist.
type Store interface {
	repository.SettingsStore
	repository.WatchlistStore
}

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegisterer returns the registry served on the metrics endpoint.
func ProvideRegisterer() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg prometheus.Registerer) repository.Metrics {
	return metrics.New(reg)
}

// ProvideStore opens the SQLite store, or an in-memory store when no path is set.
func ProvideStore(cfg *config.Config, l *applogger.Logger) (Store, func(), error) {
	path := cfg.Storage.SQLitePath
	if path == "" {
		l.Warn("storage.sqlite_path not set; settings and watchlist will not survive restarts")
		return internalrepo.NewMemoryStore(), func() {}, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := internalrepo.NewSQLiteStore(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite store: %w", err)
	}
	cleanup := func() {
		if err := s.Close(); err != nil {
			l.Warn("sqlite close error", applogger.Error(err))
		}
	}
	return s, cleanup, nil
}

func ProvideSettingsStore(s Store) repository.SettingsStore { return s }

func ProvideWatchlistStore(s Store) repository.WatchlistStore { return s }

// ProvideBytesCache selects the cache backend. An unreachable Redis falls back
// to the in-process cache.
func ProvideBytesCache(cfg *config.Config, l *applogger.Logger) (icache.BytesCache, func(), error) {
	if cfg.Cache.Backend != "redis" {
		return icache.NewTTLCache(), func() {}, nil
	}
	rc := icache.NewRedisCache(icache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		l.Warn("redis unreachable, using in-memory cache",
			applogger.String("addr", cfg.Cache.Redis.Addr), applogger.Error(err))
		_ = rc.Close()
		return icache.NewTTLCache(), func() {}, nil
	}
	l.Info("redis cache connected", applogger.String("addr", cfg.Cache.Redis.Addr))
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideSeriesCache wraps the byte cache with the daily-close TTL policy.
func ProvideSeriesCache(cfg *config.Config, bc icache.BytesCache, m repository.Metrics, l *applogger.Logger) *icache.SeriesCache {
	return icache.NewSeriesCache(bc,
		icache.WithTTL(cfg.Engine.SeriesTTL),
		icache.WithMetrics(m),
		icache.WithLogger(l),
	)
}

// ProvideFinnhubClient creates the Finnhub REST client.
func ProvideFinnhubClient(cfg *config.Config) *finnhub.Client {
	return finnhub.New(cfg.Finnhub.APIKey,
		finnhub.WithBaseURL(cfg.Finnhub.BaseURL),
		finnhub.WithRateLimit(ratelimit.New(), cfg.Finnhub.RateLimit.Burst, cfg.Finnhub.RateLimit.PerSecond),
	)
}

func ProvideQuoteProvider(c *finnhub.Client) repository.QuoteProvider { return c }

func ProvideNewsProvider(c *finnhub.Client) repository.NewsProvider { return c }

// ProvideSeriesProvider serves Twelve Data closes through the series cache.
func ProvideSeriesProvider(cfg *config.Config, sc *icache.SeriesCache) repository.SeriesProvider {
	td := twelvedata.New(cfg.TwelveData.APIKey,
		twelvedata.WithBaseURL(cfg.TwelveData.BaseURL),
		twelvedata.WithRateLimit(ratelimit.New(), cfg.TwelveData.RateLimit.Burst, cfg.TwelveData.RateLimit.PerSecond),
	)
	return icache.NewCachedSeriesProvider(td, sc)
}

// ProvideSettingsService creates the settings use case.
func ProvideSettingsService(store repository.SettingsStore, l *applogger.Logger) *usecase.SettingsService {
	return usecase.NewSettingsService(store, l.With(applogger.String("component", "settings")))
}

// ProvideSignalPublishers creates the Kafka signal publisher when enabled.
func ProvideSignalPublishers(cfg *config.Config, l *applogger.Logger) ([]repository.SignalPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithClientID("pivot"),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithBatchTimeout(cfg.Kafka.BatchTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Async),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.Topic)
	l.Info("kafka signal publisher ready",
		applogger.Strings("brokers", cfg.Kafka.Brokers), applogger.String("topic", cfg.Kafka.Topic))
	cleanup := func() {
		if err := pub.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return []repository.SignalPublisher{pub}, cleanup, nil
}

// ProvideEngine creates the watchlist engine.
func ProvideEngine(
	cfg *config.Config,
	quotes repository.QuoteProvider,
	series repository.SeriesProvider,
	settings *usecase.SettingsService,
	sc *icache.SeriesCache,
	store repository.WatchlistStore,
	pubs []repository.SignalPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Engine {
	return usecase.NewEngine(quotes, series, settings,
		usecase.WithSeriesCache(sc),
		usecase.WithWatchlistStore(store),
		usecase.WithSignalPublishers(pubs...),
		usecase.WithMetrics(m),
		usecase.WithLogger(l.With(applogger.String("component", "engine"))),
		usecase.WithPollInterval(cfg.Engine.PollInterval),
		usecase.WithFullRefreshCron(cfg.Engine.FullRefreshCron),
		usecase.WithDefaultSymbols(cfg.Engine.Symbols),
	)
}

// ProvideTradeCollector creates the live trade collector. It returns nil when
// the stream is disabled or no Finnhub key is set.
func ProvideTradeCollector(cfg *config.Config, engine *usecase.Engine, m repository.Metrics, l *applogger.Logger) *usecase.TradeCollector {
	if !cfg.Finnhub.StreamEnabled || cfg.Finnhub.APIKey == "" {
		return nil
	}
	sl := l.With(applogger.String("component", "stream"))
	stream := finnhub.NewStream(
		cfg.Finnhub.APIKey,
		cfg.Finnhub.WebSocketURL,
		cfg.Finnhub.ReconnectDelay,
		cfg.Finnhub.PingInterval,
		sl,
	)
	// Build middleware pipeline between WebSocket and engine
	var collector *usecase.TradeCollector
	pipe := mid.NewRealtimePipeline(
		mid.ProcFunc(func(ctx context.Context, t *models.Trade) error { return collector.ProcessTrade(ctx, t) }),
		m,
		mid.WithMaxRPS(cfg.Finnhub.MaxTradesPerSecond),
	)
	collector = usecase.NewTradeCollector(stream, engine, pipe, m, sl, cfg.Finnhub.ReconcileInterval)
	return collector
}

// ProvideHandler creates the HTTP API handler.
func ProvideHandler(
	l *applogger.Logger,
	engine *usecase.Engine,
	settings *usecase.SettingsService,
	quotes repository.QuoteProvider,
	news repository.NewsProvider,
	bc icache.BytesCache,
) *api.WatchlistEchoHandler {
	return api.NewWatchlistEchoHandler(l.With(applogger.String("component", "api")), engine, settings, quotes, news,
		api.WithResponseCache(bc),
	)
}

// ProvideHTTPServer creates the Echo server with metrics and health endpoints.
func ProvideHTTPServer(cfg *config.Config, h *api.WatchlistEchoHandler, reg prometheus.Registerer, store Store, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l.With(applogger.String("component", "http"))),
	}
	if checker, ok := store.(interface{ Health(context.Context) error }); ok {
		opts = append(opts, xhttp.WithHealth(checker.Health))
	}
	if cfg.Metrics.Enabled {
		var mh http.Handler = promhttp.Handler()
		if g, ok := reg.(prometheus.Gatherer); ok && reg != prometheus.DefaultRegisterer {
			mh = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
		}
		opts = append(opts,
			xhttp.WithMetrics(cfg.Metrics.Path, mh),
			xhttp.WithMiddleware(httpmw.Metrics(reg, l, time.Second)),
		)
	} else {
		opts = append(opts, xhttp.WithMetrics("", nil))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	engine *usecase.Engine,
	settings *usecase.SettingsService,
	collector *usecase.TradeCollector,
	srv *xhttp.Server,
) *server.App {
	return server.New(cfg, l, engine, settings, collector, srv)
}
