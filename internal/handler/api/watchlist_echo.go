package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"Pivot/internal/domain/models"
	domrepo "Pivot/internal/domain/repository"
	icache "Pivot/internal/service/cache"
	"Pivot/internal/service/metrics"
	"Pivot/internal/service/ratelimit"
	"Pivot/internal/usecase"
	xhttp "Pivot/pkg/http"
	xlogger "Pivot/pkg/logger"

	"github.com/labstack/echo/v4"
)

const newsCacheTTL = 5 * time.Minute

// WatchlistEchoHandler exposes the engine and the research endpoints over HTTP.
type WatchlistEchoHandler struct {
	logger   *xlogger.Logger
	engine   *usecase.Engine
	settings *usecase.SettingsService
	quotes   domrepo.QuoteProvider
	news     domrepo.NewsProvider

	cache icache.BytesCache
	rl    *ratelimit.Limiter
	// refresh: burst and refill per second, per client IP
	refreshBurst, refreshPerSec float64
}

// HandlerOption configures WatchlistEchoHandler.
type HandlerOption func(*WatchlistEchoHandler)

// WithResponseCache caches research responses (news, recommendations).
func WithResponseCache(c icache.BytesCache) HandlerOption {
	return func(h *WatchlistEchoHandler) { h.cache = c }
}

// WithRefreshLimit bounds manual refreshes per client. Zero burst disables the limit.
func WithRefreshLimit(burst, perSec float64) HandlerOption {
	return func(h *WatchlistEchoHandler) {
		h.refreshBurst = burst
		h.refreshPerSec = perSec
	}
}

func NewWatchlistEchoHandler(logger *xlogger.Logger, engine *usecase.Engine, settings *usecase.SettingsService, quotes domrepo.QuoteProvider, news domrepo.NewsProvider, opts ...HandlerOption) *WatchlistEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.NewNop()
	}
	h := &WatchlistEchoHandler{
		logger:        logger,
		engine:        engine,
		settings:      settings,
		quotes:        quotes,
		news:          news,
		rl:            ratelimit.New(),
		refreshBurst:  2,
		refreshPerSec: 0.2,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *WatchlistEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/watchlist", h.observe("watchlist", h.Watchlist))
	g.GET("/stocks", h.observe("stocks", h.Stocks))
	g.GET("/stocks/:symbol", h.observe("stock", h.Stock))
	g.POST("/symbols", h.observe("add_symbol", h.AddSymbol))
	g.DELETE("/symbols/:symbol", h.observe("remove_symbol", h.RemoveSymbol))
	g.POST("/refresh", h.observe("refresh", h.Refresh))

	g.GET("/signals", h.observe("signals", h.Signals))
	g.DELETE("/signals", h.observe("clear_signals", h.ClearSignals))

	g.POST("/polling/start", h.observe("polling_start", h.StartPolling))
	g.POST("/polling/stop", h.observe("polling_stop", h.StopPolling))

	g.GET("/settings", h.observe("settings", h.Settings))
	g.PUT("/settings/rsi/toggle", h.observe("toggle_rsi", h.ToggleRSI))
	g.PUT("/settings/sma/toggle", h.observe("toggle_sma", h.ToggleSMA))
	g.PUT("/settings/macd/toggle", h.observe("toggle_macd", h.ToggleMACD))
	g.PUT("/settings/rsi/threshold", h.observe("rsi_threshold", h.SetRSIThreshold))

	g.GET("/search", h.observe("search", h.Search))
	g.GET("/news", h.observe("news", h.News))
	g.GET("/recommendations/:symbol", h.observe("recommendations", h.Recommendations))
}

// observe records latency for every call and counts responses of 500 and above.
func (h *WatchlistEchoHandler) observe(endpoint string, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil || c.Response().Status >= http.StatusInternalServerError {
			metrics.APIErrors.WithLabelValues(endpoint).Inc()
		}
		return err
	}
}

func (h *WatchlistEchoHandler) Watchlist(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Snapshot())
}

func (h *WatchlistEchoHandler) Stocks(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Stocks())
}

func (h *WatchlistEchoHandler) Stock(c echo.Context) error {
	sym := usecase.NormalizeSymbol(c.Param("symbol"))
	st, ok := h.engine.Stock(sym)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("symbol %s is not loaded", sym))
	}
	return xhttp.SuccessResponse(c, st)
}

type addSymbolResponse struct {
	Symbol string             `json:"symbol"`
	Added  bool               `json:"added"`
	Stock  *models.StockState `json:"stock,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// AddSymbol tracks a symbol. A failed first load still tracks it; the
// failure is reported in the body and the next refresh retries.
func (h *WatchlistEchoHandler) AddSymbol(c echo.Context) error {
	req := &models.AddSymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sym := usecase.NormalizeSymbol(req.Symbol)
	if sym == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbol is required"))
	}

	added, err := h.engine.AddSymbol(c.Request().Context(), sym)
	res := addSymbolResponse{Symbol: sym, Added: added}
	if err != nil {
		h.logger.Warn("add symbol initial load failed", xlogger.String("symbol", sym), xlogger.Error(err))
		res.Error = err.Error()
	}
	if st, ok := h.engine.Stock(sym); ok {
		res.Stock = &st
	}
	if !added {
		return xhttp.SuccessResponse(c, res)
	}
	return xhttp.CreatedResponse(c, res)
}

func (h *WatchlistEchoHandler) RemoveSymbol(c echo.Context) error {
	sym := usecase.NormalizeSymbol(c.Param("symbol"))
	if !h.engine.RemoveSymbol(c.Request().Context(), sym) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("symbol %s is not tracked", sym))
	}
	return xhttp.SuccessResponse(c, h.engine.Symbols())
}

// Refresh runs a full refresh and returns the resulting snapshot.
func (h *WatchlistEchoHandler) Refresh(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":refresh", h.refreshBurst, h.refreshPerSec) {
		h.logger.Warn("refresh rate limited", xlogger.String("remote", c.RealIP()))
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "refresh rate limited")
	}
	if err := h.engine.FetchAll(c.Request().Context()); err != nil {
		h.logger.Error("refresh failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("refresh failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, h.engine.Snapshot())
}

func (h *WatchlistEchoHandler) Signals(c echo.Context) error {
	req := &models.SignalLogRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	log := h.engine.SignalLog()
	total := int64(len(log))
	if len(log) > req.Limit {
		log = log[:req.Limit]
	}
	return xhttp.ListResponse(c, log, total)
}

func (h *WatchlistEchoHandler) ClearSignals(c echo.Context) error {
	h.engine.ClearSignalLog(c.Request().Context())
	return xhttp.SuccessResponse(c, []models.SignalLogEntry{})
}

type pollingResponse struct {
	Polling bool `json:"polling"`
	Changed bool `json:"changed"`
}

func (h *WatchlistEchoHandler) StartPolling(c echo.Context) error {
	// polling outlives the request
	changed, err := h.engine.StartPolling(context.WithoutCancel(c.Request().Context()))
	if err != nil {
		h.logger.Error("start polling failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("start polling failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, pollingResponse{Polling: h.engine.IsPolling(), Changed: changed})
}

func (h *WatchlistEchoHandler) StopPolling(c echo.Context) error {
	changed := h.engine.StopPolling()
	return xhttp.SuccessResponse(c, pollingResponse{Polling: h.engine.IsPolling(), Changed: changed})
}

func (h *WatchlistEchoHandler) Settings(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.settings.Current())
}

func (h *WatchlistEchoHandler) ToggleRSI(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.settings.ToggleRSI(c.Request().Context()))
}

func (h *WatchlistEchoHandler) ToggleSMA(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.settings.ToggleSMA(c.Request().Context()))
}

func (h *WatchlistEchoHandler) ToggleMACD(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.settings.ToggleMACD(c.Request().Context()))
}

func (h *WatchlistEchoHandler) SetRSIThreshold(c echo.Context) error {
	req := &models.ThresholdRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.settings.SetRSIThreshold(c.Request().Context(), req.Value)
	if err != nil {
		if errors.Is(err, models.ErrInvalidThreshold) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, s)
}

func (h *WatchlistEchoHandler) Search(c echo.Context) error {
	req := &models.SearchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.quotes.SearchSymbols(c.Request().Context(), req.Query)
	if err != nil {
		return h.upstreamError(c, "search", err)
	}
	if res == nil {
		res = []models.SymbolMatch{}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *WatchlistEchoHandler) News(c echo.Context) error {
	if h.news == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("news provider not configured"))
	}
	ctx := c.Request().Context()
	if h.serveCached(c, "news:general") {
		return nil
	}
	items, err := h.news.GetMarketNews(ctx)
	if err != nil {
		return h.upstreamError(c, "news", err)
	}
	if items == nil {
		items = []models.NewsItem{}
	}
	h.store(ctx, "news:general", items)
	return xhttp.SuccessResponse(c, items)
}

func (h *WatchlistEchoHandler) Recommendations(c echo.Context) error {
	if h.news == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("news provider not configured"))
	}
	sym := usecase.NormalizeSymbol(c.Param("symbol"))
	if sym == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbol is required"))
	}
	key := "recs:" + sym
	if h.serveCached(c, key) {
		return nil
	}
	ctx := c.Request().Context()
	recs, err := h.news.GetRecommendations(ctx, sym)
	if err != nil {
		return h.upstreamError(c, "recommendations", err)
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	h.store(ctx, key, recs)
	return xhttp.SuccessResponse(c, recs)
}

func (h *WatchlistEchoHandler) upstreamError(c echo.Context, op string, err error) error {
	h.logger.Error(op+" upstream error", xlogger.Error(err))
	if models.IsUpstream(err) {
		return xhttp.AppErrorResponse(c, xhttp.BadGatewayError(err.Error()).WithError(err))
	}
	return xhttp.AppErrorResponse(c, xhttp.InternalError(op+" failed").WithError(err))
}

// serveCached writes a cached payload. Cache errors count as misses.
func (h *WatchlistEchoHandler) serveCached(c echo.Context, key string) bool {
	if h.cache == nil {
		return false
	}
	b, ok, err := h.cache.GetBytes(c.Request().Context(), key)
	if err != nil {
		h.logger.Warn("response cache get error", xlogger.String("key", key), xlogger.Error(err))
		return false
	}
	if !ok {
		return false
	}
	var data json.RawMessage = b
	if err := xhttp.SuccessResponse(c, data); err != nil {
		h.logger.Warn("response cache write error", xlogger.Error(err))
	}
	return true
}

func (h *WatchlistEchoHandler) store(ctx context.Context, key string, v interface{}) {
	if h.cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := h.cache.SetBytes(ctx, key, b, newsCacheTTL); err != nil {
		h.logger.Warn("response cache set error", xlogger.String("key", key), xlogger.Error(err))
	}
}
