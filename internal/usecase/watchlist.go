package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"Pivot/internal/domain/models"
	drepo "Pivot/internal/domain/repository"
	"Pivot/internal/services/indicators"
	"Pivot/internal/services/signals"
	applogger "Pivot/pkg/logger"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// MaxSignalLog caps the signal log, newest first.
const MaxSignalLog = 100

// ErrProviderPanic marks a refresh whose provider call panicked.
var ErrProviderPanic = errors.New("provider panicked")

// DefaultSymbols are tracked when nothing has been persisted yet.
var DefaultSymbols = []string{"NVDA", "AAPL", "MSFT", "TSLA", "AMZN", "META"}

// SettingsSource supplies the rule set used for every evaluation.
type SettingsSource interface {
	Current() models.Settings
}

// Engine owns the watchlist: tracked symbols, per-symbol state, the cached
// SMA-50 values and the signal log. Network calls run outside the lock and
// every symbol update is applied in one critical section.
type Engine struct {
	quotes   drepo.QuoteProvider
	series   drepo.SeriesProvider
	cache    drepo.SeriesCache
	settings SettingsSource
	store    drepo.WatchlistStore
	sinks    []drepo.SignalPublisher
	metrics  drepo.Metrics
	l        *applogger.Logger
	now      func() time.Time
	newID    func() string
	defaults []string

	mu          sync.RWMutex
	symbols     []string
	stocks      map[string]models.StockState
	sma50       map[string]float64
	log         []models.SignalLogEntry
	inflight    int
	batchSeq    uint64 // bumped on every batch start and batch failure
	errSeq      uint64
	lastErr     string
	lastUpdated *time.Time

	saveMu sync.Mutex

	pollMu       sync.Mutex
	sched        *cron.Cron
	pollInterval time.Duration
	fullRefresh  string
}

// Option configures Engine.
type Option func(*Engine)

// WithSeriesCache lets RemoveSymbol drop the cached series of a symbol.
func WithSeriesCache(c drepo.SeriesCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithWatchlistStore persists symbols and the signal log after each change.
func WithWatchlistStore(s drepo.WatchlistStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithSignalPublishers adds sinks that receive every new log entry.
func WithSignalPublishers(p ...drepo.SignalPublisher) Option {
	return func(e *Engine) {
		for _, s := range p {
			if s != nil {
				e.sinks = append(e.sinks, s)
			}
		}
	}
}

// WithMetrics records latencies, errors and signals. Nil keeps the no-op.
func WithMetrics(m drepo.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithLogger sets the engine logger. Nil keeps the default.
func WithLogger(l *applogger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.l = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides the uuid source of signal log IDs.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// WithPollInterval sets the quote poll period. Default 30s.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithFullRefreshCron schedules FetchAll on a cron spec while polling runs.
func WithFullRefreshCron(spec string) Option {
	return func(e *Engine) { e.fullRefresh = strings.TrimSpace(spec) }
}

// WithDefaultSymbols overrides DefaultSymbols.
func WithDefaultSymbols(symbols []string) Option {
	return func(e *Engine) {
		if len(symbols) > 0 {
			e.defaults = normalizeAll(symbols)
		}
	}
}

// NewEngine creates an Engine tracking the default symbols. Call Load to
// restore persisted state.
func NewEngine(quotes drepo.QuoteProvider, series drepo.SeriesProvider, settings SettingsSource, opts ...Option) *Engine {
	e := &Engine{
		quotes:       quotes,
		series:       series,
		settings:     settings,
		metrics:      drepo.NoopMetrics{},
		l:            applogger.NewNop(),
		now:          time.Now,
		newID:        uuid.NewString,
		defaults:     DefaultSymbols,
		stocks:       make(map[string]models.StockState),
		sma50:        make(map[string]float64),
		pollInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.symbols = append([]string(nil), e.defaults...)
	return e
}

// NormalizeSymbol upper-cases and trims a user supplied ticker.
func NormalizeSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func normalizeAll(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		sym := NormalizeSymbol(s)
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

// Load restores symbols and the signal log from the watchlist store. On error
// or when nothing is stored the default symbols stay in place.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	w, ok, err := e.store.LoadWatchlist(ctx)
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}
	if !ok {
		return nil
	}
	logEntries := w.SignalLog
	if len(logEntries) > MaxSignalLog {
		logEntries = logEntries[:MaxSignalLog]
	}

	e.mu.Lock()
	e.symbols = normalizeAll(w.Symbols)
	e.log = append([]models.SignalLogEntry(nil), logEntries...)
	e.mu.Unlock()

	e.l.Info("watchlist restored",
		applogger.Strings("symbols", w.Symbols),
		applogger.Int("signals", len(logEntries)))
	return nil
}

// FetchStockData refreshes one symbol from quote and daily closes, fetching
// the company profile when no name is known yet. A missing series keeps the
// previous indicators.
func (e *Engine) FetchStockData(ctx context.Context, symbol string) error {
	start := e.now()
	defer func() { e.metrics.RecordLatency("fetch_stock", e.now().Sub(start).Seconds()) }()

	e.mu.RLock()
	existing, had := e.stocks[symbol]
	prevSMA, hasSMA := e.sma50[symbol]
	e.mu.RUnlock()

	var (
		quote   models.Quote
		closes  []float64
		profile models.CompanyProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer recoverAs(&err, "quote")
		q, err := e.quotes.GetQuote(gctx, symbol)
		if err != nil {
			return fmt.Errorf("quote: %w", err)
		}
		quote = q
		return nil
	})
	g.Go(func() (err error) {
		defer recoverAs(&err, "time series")
		c, err := e.series.GetTimeSeries(gctx, symbol)
		if err != nil {
			return fmt.Errorf("time series: %w", err)
		}
		closes = c
		return nil
	})
	if existing.Name == "" {
		g.Go(func() (err error) {
			defer recoverAs(&err, "company profile")
			p, err := e.quotes.GetCompanyProfile(gctx, symbol)
			if err != nil {
				e.metrics.RecordError("profile")
				e.l.Warn("company profile unavailable", applogger.String("symbol", symbol), applogger.Error(err))
				return nil
			}
			profile = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.metrics.RecordError("fetch_stock")
		e.l.Error("fetch stock data failed", applogger.String("symbol", symbol), applogger.Error(err))
		return fmt.Errorf("fetch %s: %w", symbol, err)
	}

	name := existing.Name
	if profile.Name != "" {
		name = profile.Name
	}
	if name == "" {
		name = symbol
	}

	var ind models.Indicators
	if len(closes) > 0 {
		ind = indicators.Compute(closes, quote.Current)
	} else {
		ind = models.Indicators{RSI: indicators.NeutralRSI}
		if hasSMA {
			v := prevSMA
			ind.SMA50 = &v
		}
		if had {
			ind.RSI = existing.RSI
			ind.SMAAbove = existing.SMAAbove
			ind.MACDCross = existing.MACDCross
		}
	}

	active, conds := signals.Evaluate(ind, e.settings.Current())
	state := models.StockState{
		Symbol:        symbol,
		Name:          name,
		Price:         quote.Current,
		ChangePercent: quote.ChangePercent,
		PrevClose:     quote.PrevClose,
		RSI:           ind.RSI,
		SMAAbove:      ind.SMAAbove,
		MACDCross:     ind.MACDCross,
		SignalActive:  active,
		UpdatedAt:     e.now(),
	}

	e.mu.Lock()
	if !e.trackedLocked(symbol) {
		e.mu.Unlock()
		e.l.Debug("dropping update for removed symbol", applogger.String("symbol", symbol))
		return nil
	}
	wasActive := e.stocks[symbol].SignalActive
	e.stocks[symbol] = state
	if ind.SMA50 != nil {
		e.sma50[symbol] = *ind.SMA50
	}
	entry := e.transitionLocked(state, wasActive, conds)
	e.mu.Unlock()

	e.metrics.RecordRefresh("full")
	e.metrics.RecordLastPrice(symbol, state.Price)
	e.emit(ctx, entry)
	return nil
}

// FetchQuoteOnly refreshes price and change of an already loaded symbol.
// SMAAbove is recomputed from the cached SMA-50. RSI and MACD are kept.
func (e *Engine) FetchQuoteOnly(ctx context.Context, symbol string) error {
	start := e.now()
	defer func() { e.metrics.RecordLatency("fetch_quote", e.now().Sub(start).Seconds()) }()

	q, err := e.quotes.GetQuote(ctx, symbol)
	if err != nil {
		e.metrics.RecordError("fetch_quote")
		e.l.Error("fetch quote failed", applogger.String("symbol", symbol), applogger.Error(err))
		return fmt.Errorf("quote %s: %w", symbol, err)
	}
	e.applyPrice(ctx, symbol, q.Current, "quote", func(models.StockState) (float64, float64) {
		return q.ChangePercent, q.PrevClose
	})
	return nil
}

// ApplyTrade applies a live trade as a price-only update. Change percent is
// derived from the last known previous close.
func (e *Engine) ApplyTrade(ctx context.Context, t *models.Trade) bool {
	if t == nil || t.Price <= 0 {
		return false
	}
	return e.applyPrice(ctx, NormalizeSymbol(t.Symbol), t.Price, "trade", func(s models.StockState) (float64, float64) {
		if s.PrevClose <= 0 {
			return s.ChangePercent, s.PrevClose
		}
		return (t.Price - s.PrevClose) / s.PrevClose * 100, s.PrevClose
	})
}

func (e *Engine) applyPrice(ctx context.Context, symbol string, price float64, kind string, change func(models.StockState) (pct, prevClose float64)) bool {
	settings := e.settings.Current()

	e.mu.Lock()
	existing, ok := e.stocks[symbol]
	if !ok || !e.trackedLocked(symbol) {
		e.mu.Unlock()
		return false
	}
	ind := models.Indicators{
		RSI:       existing.RSI,
		SMAAbove:  existing.SMAAbove,
		MACDCross: existing.MACDCross,
	}
	if sma, ok := e.sma50[symbol]; ok {
		ind.SMAAbove = price > sma
	}
	active, conds := signals.Evaluate(ind, settings)

	state := existing
	state.Price = price
	state.ChangePercent, state.PrevClose = change(existing)
	state.SMAAbove = ind.SMAAbove
	state.SignalActive = active
	state.UpdatedAt = e.now()
	e.stocks[symbol] = state
	entry := e.transitionLocked(state, existing.SignalActive, conds)
	e.mu.Unlock()

	e.metrics.RecordRefresh(kind)
	e.metrics.RecordLastPrice(symbol, price)
	e.emit(ctx, entry)
	return true
}

// transitionLocked prepends a log entry on a false->true edge.
func (e *Engine) transitionLocked(s models.StockState, wasActive bool, conds []string) *models.SignalLogEntry {
	if !s.SignalActive || wasActive {
		return nil
	}
	entry := models.SignalLogEntry{
		ID:          e.newID(),
		Symbol:      s.Symbol,
		Name:        s.Name,
		Price:       s.Price,
		TriggeredAt: e.now(),
		Conditions:  conds,
	}
	next := make([]models.SignalLogEntry, 0, min(len(e.log)+1, MaxSignalLog))
	next = append(next, entry)
	next = append(next, e.log...)
	if len(next) > MaxSignalLog {
		next = next[:MaxSignalLog]
	}
	e.log = next
	return &entry
}

func (e *Engine) emit(ctx context.Context, entry *models.SignalLogEntry) {
	if entry == nil {
		return
	}
	e.metrics.RecordSignal(entry.Symbol)
	e.l.Info("buy signal",
		applogger.String("symbol", entry.Symbol),
		applogger.Float64("price", entry.Price),
		applogger.Strings("conditions", entry.Conditions))
	e.persist(ctx)
	for _, s := range e.sinks {
		if err := s.PublishSignal(ctx, *entry); err != nil {
			e.metrics.RecordError("publish")
			e.l.Warn("publish signal failed", applogger.String("symbol", entry.Symbol), applogger.Error(err))
		}
	}
}

// FetchAll refreshes every tracked symbol concurrently. Per-symbol failures
// are logged and skipped. The batch fails only when ctx ends or a refresh
// panics. Batches may overlap: Loading holds while any batch runs, and a
// successful batch clears only errors recorded before it started.
func (e *Engine) FetchAll(ctx context.Context) error {
	start := e.now()
	syms := e.Symbols()

	e.mu.Lock()
	if e.inflight == 0 {
		e.lastErr = ""
	}
	e.inflight++
	e.batchSeq++
	seq := e.batchSeq
	e.mu.Unlock()

	var g errgroup.Group
	for _, sym := range syms {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("refresh %s: %w: %v", sym, ErrProviderPanic, r)
				}
			}()
			if err := e.FetchStockData(ctx, sym); errors.Is(err, ErrProviderPanic) {
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	e.mu.Lock()
	e.inflight--
	if err != nil {
		e.batchSeq++
		e.errSeq = e.batchSeq
		e.lastErr = err.Error()
	} else {
		if e.errSeq < seq {
			e.lastErr = ""
		}
		t := e.now()
		if e.lastUpdated == nil || t.After(*e.lastUpdated) {
			e.lastUpdated = &t
		}
	}
	e.mu.Unlock()

	e.metrics.RecordLatency("fetch_all", e.now().Sub(start).Seconds())
	if err != nil {
		e.metrics.RecordError("fetch_all")
		e.l.Error("fetch all failed", applogger.Error(err))
		return fmt.Errorf("fetch all: %w", err)
	}
	e.l.Debug("fetch all done", applogger.Int("symbols", len(syms)), applogger.Duration("took", e.now().Sub(start)))
	return nil
}

// recoverAs turns a panic in a provider call into an error wrapping
// ErrProviderPanic. It must be deferred directly.
func recoverAs(err *error, what string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s: %w: %v", what, ErrProviderPanic, r)
	}
}

// AddSymbol tracks a new symbol and loads it once. It reports false when the
// input is empty or already tracked.
func (e *Engine) AddSymbol(ctx context.Context, raw string) (bool, error) {
	sym := NormalizeSymbol(raw)
	if sym == "" {
		return false, nil
	}
	e.mu.Lock()
	if e.trackedLocked(sym) {
		e.mu.Unlock()
		return false, nil
	}
	e.symbols = append(e.symbols, sym)
	e.mu.Unlock()

	e.l.Info("symbol added", applogger.String("symbol", sym))
	e.persist(ctx)
	return true, e.FetchStockData(ctx, sym)
}

// RemoveSymbol stops tracking a symbol and forgets its state, cached SMA-50
// and cached series.
func (e *Engine) RemoveSymbol(ctx context.Context, raw string) bool {
	sym := NormalizeSymbol(raw)
	e.mu.Lock()
	idx := -1
	for i, s := range e.symbols {
		if s == sym {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return false
	}
	e.symbols = append(e.symbols[:idx:idx], e.symbols[idx+1:]...)
	delete(e.stocks, sym)
	delete(e.sma50, sym)
	e.mu.Unlock()

	if e.cache != nil {
		e.cache.Delete(ctx, sym)
	}
	e.l.Info("symbol removed", applogger.String("symbol", sym))
	e.persist(ctx)
	return true
}

// ClearSignalLog empties the signal log.
func (e *Engine) ClearSignalLog(ctx context.Context) {
	e.mu.Lock()
	e.log = nil
	e.mu.Unlock()
	e.persist(ctx)
}

func (e *Engine) trackedLocked(sym string) bool {
	for _, s := range e.symbols {
		if s == sym {
			return true
		}
	}
	return false
}

// persist saves symbols and the log. Saves are serialized so the last write
// always carries the latest state.
func (e *Engine) persist(ctx context.Context) {
	if e.store == nil {
		return
	}
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.RLock()
	w := models.PersistedWatchlist{
		Symbols:   append([]string{}, e.symbols...),
		SignalLog: append([]models.SignalLogEntry{}, e.log...),
	}
	e.mu.RUnlock()

	if err := e.store.SaveWatchlist(ctx, w); err != nil {
		e.metrics.RecordError("persist")
		e.l.Warn("save watchlist failed", applogger.Error(err))
	}
}

// Symbols returns the tracked symbols in insertion order.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.symbols...)
}

// Stocks returns a copy of every loaded stock state.
func (e *Engine) Stocks() map[string]models.StockState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]models.StockState, len(e.stocks))
	for k, v := range e.stocks {
		out[k] = v
	}
	return out
}

func (e *Engine) Stock(symbol string) (models.StockState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.stocks[NormalizeSymbol(symbol)]
	return s, ok
}

// SignalLog returns the log, newest first.
func (e *Engine) SignalLog() []models.SignalLogEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.SignalLogEntry(nil), e.log...)
}

// Snapshot returns a consistent copy of the whole watchlist.
func (e *Engine) Snapshot() models.WatchlistSnapshot {
	polling := e.IsPolling()

	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := models.WatchlistSnapshot{
		Symbols:   append([]string{}, e.symbols...),
		Stocks:    make(map[string]models.StockState, len(e.stocks)),
		SignalLog: append([]models.SignalLogEntry{}, e.log...),
		Loading:   e.inflight > 0,
		Error:     e.lastErr,
		Polling:   polling,
	}
	for k, v := range e.stocks {
		snap.Stocks[k] = v
	}
	if e.lastUpdated != nil {
		t := *e.lastUpdated
		snap.LastUpdated = &t
	}
	return snap
}
