package server

import (
	"context"
	"fmt"
	"time"

	"Pivot/internal/usecase"
	"Pivot/pkg/config"
	xhttp "Pivot/pkg/http"
	applogger "Pivot/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	engine     *usecase.Engine
	settings   *usecase.SettingsService
	collector  *usecase.TradeCollector
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies. collector may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	engine *usecase.Engine,
	settings *usecase.SettingsService,
	collector *usecase.TradeCollector,
	httpServer *xhttp.Server,
) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{
		cfg:        cfg,
		l:          l,
		engine:     engine,
		settings:   settings,
		collector:  collector,
		httpServer: httpServer,
	}
}

// Run restores persisted state, starts every service and blocks until ctx
// is cancelled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	for _, w := range a.cfg.Warnings() {
		a.l.Warn("config", applogger.String("warning", w))
	}

	if err := a.settings.Load(ctx); err != nil {
		a.l.Warn("restore settings failed, using defaults", applogger.Error(err))
	}
	if err := a.engine.Load(ctx); err != nil {
		a.l.Warn("restore watchlist failed, using default symbols", applogger.Error(err))
	}
	a.l.Info("watchlist ready", applogger.Strings("symbols", a.engine.Symbols()))

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server start: %w", err)
	}

	// jobs must outlive the shutdown signal long enough to drain
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	if a.cfg.Engine.AutoStartPolling {
		if _, err := a.engine.StartPolling(runCtx); err != nil {
			a.l.Error("start polling failed", applogger.Error(err))
		}
	}

	if a.collector != nil {
		if err := a.collector.Start(runCtx); err != nil {
			a.l.Error("trade stream start failed", applogger.Error(err))
		} else {
			a.l.Info("trade stream started", applogger.Strings("symbols", a.collector.Subscribed()))
		}
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown(runCtx, cancel)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context, cancel context.CancelFunc) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, done := context.WithTimeout(ctx, timeout)
	defer done()

	a.engine.StopPolling()

	if a.collector != nil {
		if err := a.collector.Shutdown(shutdownCtx); err != nil {
			a.l.Warn("trade stream stop error", applogger.Error(err))
		}
	}

	var firstErr error
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		firstErr = err
	}
	cancel()

	a.l.Info("shutdown complete")
	return firstErr
}
