package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"Pivot/internal/domain/models"
)

func newTestEngine(q *fakeQuotes, s *fakeSeries, settings SettingsSource, symbols []string, opts ...Option) *Engine {
	n := 0
	var mu sync.Mutex
	base := []Option{
		WithDefaultSymbols(symbols),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	}
	return NewEngine(q, s, settings, append(base, opts...)...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewEngineUsesDefaultSymbols(t *testing.T) {
	e := NewEngine(newFakeQuotes(), newFakeSeries(), rsiOnly(30))
	want := []string{"NVDA", "AAPL", "MSFT", "TSLA", "AMZN", "META"}
	if got := e.Symbols(); !reflect.DeepEqual(got, want) {
		t.Fatalf("symbols = %v, want %v", got, want)
	}
}

func TestAddSymbolNormalizes(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(newFakeQuotes(), newFakeSeries(), rsiOnly(30), []string{"MSFT"})

	added, err := e.AddSymbol(ctx, "aapl ")
	if err != nil || !added {
		t.Fatalf("add = %v, %v", added, err)
	}
	if got := e.Symbols(); !reflect.DeepEqual(got, []string{"MSFT", "AAPL"}) {
		t.Fatalf("symbols = %v", got)
	}
	if _, ok := e.Stock("AAPL"); !ok {
		t.Fatalf("expected AAPL to be loaded after add")
	}

	for _, raw := range []string{"AAPL", " aapl", "   ", ""} {
		added, err := e.AddSymbol(ctx, raw)
		if err != nil || added {
			t.Fatalf("add(%q) = %v, %v; want no-op", raw, added, err)
		}
	}
	if n := len(e.Symbols()); n != 2 {
		t.Fatalf("symbols = %d, want 2", n)
	}
}

func TestSignalLoggedOncePerTransition(t *testing.T) {
	ctx := context.Background()
	q, s := newFakeQuotes(), newFakeSeries()
	q.set("AAPL", 50)
	s.set("AAPL", falling(60))
	e := newTestEngine(q, s, rsiOnly(30), []string{"AAPL"})

	if err := e.FetchStockData(ctx, "AAPL"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	st, _ := e.Stock("AAPL")
	if !st.SignalActive || st.RSI != 0 {
		t.Fatalf("unexpected state %+v", st)
	}
	log := e.SignalLog()
	if len(log) != 1 {
		t.Fatalf("log = %d entries, want 1", len(log))
	}
	if !reflect.DeepEqual(log[0].Conditions, []string{"RSI 0.0 below 30"}) {
		t.Fatalf("conditions = %v", log[0].Conditions)
	}
	if log[0].Symbol != "AAPL" || log[0].Price != 50 || log[0].ID != "id-1" {
		t.Fatalf("unexpected entry %+v", log[0])
	}

	// still active: no new entry
	if err := e.FetchStockData(ctx, "AAPL"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if n := len(e.SignalLog()); n != 1 {
		t.Fatalf("log = %d entries after repeat, want 1", n)
	}

	// drop out and re-enter
	s.set("AAPL", rising(60))
	_ = e.FetchStockData(ctx, "AAPL")
	if st, _ := e.Stock("AAPL"); st.SignalActive {
		t.Fatalf("expected inactive on rising series")
	}
	s.set("AAPL", falling(60))
	q.set("AAPL", 45)
	_ = e.FetchStockData(ctx, "AAPL")

	log = e.SignalLog()
	if len(log) != 2 {
		t.Fatalf("log = %d entries, want 2", len(log))
	}
	if log[0].Price != 45 || log[1].Price != 50 {
		t.Fatalf("log must be newest first: %+v", log)
	}
}

func TestSignalLogCappedAt100(t *testing.T) {
	ctx := context.Background()
	q, s := newFakeQuotes(), newFakeSeries()
	s.set("AAPL", rising(60)) // SMA-50 = 35.5
	q.set("AAPL", 10)
	e := newTestEngine(q, s, smaOnly(), []string{"AAPL"})

	if err := e.FetchStockData(ctx, "AAPL"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for i := 0; i < 105; i++ {
		q.set("AAPL", float64(100+i))
		if err := e.FetchQuoteOnly(ctx, "AAPL"); err != nil {
			t.Fatalf("quote: %v", err)
		}
		q.set("AAPL", 10)
		_ = e.FetchQuoteOnly(ctx, "AAPL")
	}

	log := e.SignalLog()
	if len(log) != MaxSignalLog {
		t.Fatalf("log = %d, want %d", len(log), MaxSignalLog)
	}
	if log[0].Price != 204 || log[99].Price != 105 {
		t.Fatalf("unexpected bounds %v .. %v", log[0].Price, log[99].Price)
	}
}

func TestFetchQuoteOnlyKeepsIndicators(t *testing.T) {
	ctx := context.Background()
	q, s := newFakeQuotes(), newFakeSeries()
	s.set("AAPL", rising(60))
	q.set("AAPL", 70)
	e := newTestEngine(q, s, smaOnly(), []string{"AAPL", "MSFT"})

	// never loaded: no-op
	if err := e.FetchQuoteOnly(ctx, "MSFT"); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if _, ok := e.Stock("MSFT"); ok {
		t.Fatalf("quote-only must not create state")
	}

	_ = e.FetchStockData(ctx, "AAPL")
	before, _ := e.Stock("AAPL")
	if !before.SMAAbove || !before.MACDCross || before.RSI != 100 {
		t.Fatalf("unexpected initial state %+v", before)
	}

	q.set("AAPL", 20)
	_ = e.FetchQuoteOnly(ctx, "AAPL")
	after, _ := e.Stock("AAPL")
	if after.Price != 20 || after.SMAAbove {
		t.Fatalf("price below cached SMA-50 must clear SMAAbove: %+v", after)
	}
	if after.RSI != before.RSI || after.MACDCross != before.MACDCross || after.Name != before.Name {
		t.Fatalf("quote-only must not touch RSI, MACD or name: %+v", after)
	}
}

func TestFetchStockDataWithoutSeriesHoldsIndicators(t *testing.T) {
	ctx := context.Background()
	q, s := newFakeQuotes(), newFakeSeries()
	q.set("AAPL", 70)
	e := newTestEngine(q, s, smaOnly(), []string{"AAPL"})

	_ = e.FetchStockData(ctx, "AAPL")
	st, _ := e.Stock("AAPL")
	if st.RSI != 50 || st.SMAAbove || st.MACDCross {
		t.Fatalf("first load without series must be neutral: %+v", st)
	}

	s.set("AAPL", rising(60))
	_ = e.FetchStockData(ctx, "AAPL")
	s.set("AAPL", nil)
	_ = e.FetchStockData(ctx, "AAPL")
	st, _ = e.Stock("AAPL")
	if st.RSI != 100 || !st.SMAAbove || !st.MACDCross {
		t.Fatalf("absent series must keep previous indicators: %+v", st)
	}
}

func TestCompanyProfile(t *testing.T) {
	ctx := context.Background()
	q := newFakeQuotes()
	q.names["AAPL"] = "Apple Inc"
	e := newTestEngine(q, newFakeSeries(), rsiOnly(30), []string{"AAPL", "MSFT"})

	_ = e.FetchStockData(ctx, "AAPL")
	_ = e.FetchStockData(ctx, "AAPL")
	if st, _ := e.Stock("AAPL"); st.Name != "Apple Inc" {
		t.Fatalf("name = %q", st.Name)
	}
	if n := q.profileCalls.Load(); n != 1 {
		t.Fatalf("profile fetched %d times, want 1", n)
	}

	q.profileErr = errUpstream
	if err := e.FetchStockData(ctx, "MSFT"); err != nil {
		t.Fatalf("profile failure must be tolerated: %v", err)
	}
	if st, _ := e.Stock("MSFT"); st.Name != "MSFT" {
		t.Fatalf("name = %q, want symbol fallback", st.Name)
	}
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	q := newFakeQuotes()
	q.errs["TSLA"] = &models.UpstreamError{Provider: "finnhub", Status: 500, Body: "boom"}
	fixed := time.Date(2024, 10, 1, 15, 0, 0, 0, time.UTC)
	e := newTestEngine(q, newFakeSeries(), rsiOnly(30), []string{"AAPL", "TSLA", "MSFT"},
		WithClock(func() time.Time { return fixed }))

	err := e.FetchStockData(ctx, "TSLA")
	var ue *models.UpstreamError
	if !errors.As(err, &ue) || ue.Status != 500 {
		t.Fatalf("expected upstream error, got %v", err)
	}

	if err := e.FetchAll(ctx); err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	snap := e.Snapshot()
	if len(snap.Stocks) != 2 {
		t.Fatalf("stocks = %d, want 2", len(snap.Stocks))
	}
	if _, ok := snap.Stocks["TSLA"]; ok {
		t.Fatalf("failed symbol must have no state")
	}
	if snap.Loading || snap.Error != "" || snap.LastUpdated == nil || !snap.LastUpdated.Equal(fixed) {
		t.Fatalf("unexpected snapshot flags %+v", snap)
	}
}

func TestFetchAllRecordsBatchError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestEngine(newFakeQuotes(), newFakeSeries(), rsiOnly(30), []string{"AAPL"})

	if err := e.FetchAll(ctx); err == nil {
		t.Fatalf("expected batch error")
	}
	snap := e.Snapshot()
	if snap.Error == "" || snap.Loading || snap.LastUpdated != nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestProviderPanicBecomesError(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(newFakeQuotes(), panicSeries{}, rsiOnly(30), WithDefaultSymbols([]string{"AAPL", "MSFT"}))

	err := e.FetchStockData(ctx, "AAPL")
	if !errors.Is(err, ErrProviderPanic) {
		t.Fatalf("expected provider panic error, got %v", err)
	}
	if _, ok := e.Stock("AAPL"); ok {
		t.Fatalf("panicked refresh must not store state")
	}

	if err := e.FetchAll(ctx); !errors.Is(err, ErrProviderPanic) {
		t.Fatalf("fetch all = %v, want provider panic", err)
	}
	snap := e.Snapshot()
	if snap.Loading || snap.Error == "" || snap.LastUpdated != nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestQuotePollSurvivesPanic(t *testing.T) {
	ctx := context.Background()
	q := newFakeQuotes()
	e := newTestEngine(q, newFakeSeries(), rsiOnly(30), []string{"AAPL"})
	_ = e.FetchStockData(ctx, "AAPL")

	e.quotes = panicQuotes{q}
	e.pollQuotes(ctx)
	if st, ok := e.Stock("AAPL"); !ok || st.Price != 100 {
		t.Fatalf("state must survive a panicking poll: %+v", st)
	}
}

func TestOverlappingFetchAllKeepsLoading(t *testing.T) {
	q := newFakeQuotes()
	q.gate = make(chan struct{})
	e := newTestEngine(q, newFakeSeries(), rsiOnly(30), []string{"AAPL"})

	first := make(chan error, 1)
	go func() { first <- e.FetchAll(context.Background()) }()
	waitFor(t, "first batch in flight", func() bool { return q.quoteCalls.Load() > 0 })

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.FetchAll(cancelled); !errors.Is(err, context.Canceled) {
		t.Fatalf("second batch = %v, want context canceled", err)
	}
	snap := e.Snapshot()
	if !snap.Loading {
		t.Fatalf("loading must hold while the first batch runs")
	}
	if snap.Error != context.Canceled.Error() {
		t.Fatalf("error = %q, want %q", snap.Error, context.Canceled.Error())
	}

	close(q.gate)
	if err := <-first; err != nil {
		t.Fatalf("first batch: %v", err)
	}
	snap = e.Snapshot()
	if snap.Loading {
		t.Fatalf("loading must clear once every batch is done")
	}
	if snap.Error != context.Canceled.Error() {
		t.Fatalf("an older batch must not clear a newer failure, error = %q", snap.Error)
	}
	if snap.LastUpdated == nil {
		t.Fatalf("successful batch must set last updated")
	}

	if err := e.FetchAll(context.Background()); err != nil {
		t.Fatalf("third batch: %v", err)
	}
	if snap := e.Snapshot(); snap.Error != "" {
		t.Fatalf("a batch started after the failure must clear it, error = %q", snap.Error)
	}
}

func TestRemoveSymbol(t *testing.T) {
	ctx := context.Background()
	c := &fakeCache{}
	s := newFakeSeries()
	s.set("AAPL", rising(60))
	e := newTestEngine(newFakeQuotes(), s, smaOnly(), []string{"AAPL", "MSFT"}, WithSeriesCache(c))
	_ = e.FetchStockData(ctx, "AAPL")

	if !e.RemoveSymbol(ctx, "aapl") {
		t.Fatalf("expected removal")
	}
	if e.RemoveSymbol(ctx, "AAPL") {
		t.Fatalf("second removal must report false")
	}
	if _, ok := e.Stock("AAPL"); ok {
		t.Fatalf("state must be gone")
	}
	if got := e.Symbols(); !reflect.DeepEqual(got, []string{"MSFT"}) {
		t.Fatalf("symbols = %v", got)
	}
	if !reflect.DeepEqual(c.deleted, []string{"AAPL"}) {
		t.Fatalf("cache deletes = %v", c.deleted)
	}

	// re-adding starts clean: no stale SMA-50
	s.set("AAPL", nil)
	_, _ = e.AddSymbol(ctx, "AAPL")
	if st, _ := e.Stock("AAPL"); st.RSI != 50 || st.SMAAbove {
		t.Fatalf("re-added symbol must start neutral: %+v", st)
	}
}

func TestUpdateForRemovedSymbolIsDropped(t *testing.T) {
	ctx := context.Background()
	q := newFakeQuotes()
	q.gate = make(chan struct{})
	e := newTestEngine(q, newFakeSeries(), rsiOnly(30), []string{"AAPL"})

	done := make(chan error, 1)
	go func() { done <- e.FetchStockData(ctx, "AAPL") }()
	waitFor(t, "quote call", func() bool { return q.quoteCalls.Load() > 0 })

	e.RemoveSymbol(ctx, "AAPL")
	close(q.gate)
	if err := <-done; err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, ok := e.Stock("AAPL"); ok {
		t.Fatalf("in-flight update must be dropped after removal")
	}
}

func TestApplyTrade(t *testing.T) {
	ctx := context.Background()
	q := newFakeQuotes()
	q.quotes["AAPL"] = models.Quote{Current: 100, ChangePercent: 0, PrevClose: 100}
	e := newTestEngine(q, newFakeSeries(), rsiOnly(30), []string{"AAPL"})

	if e.ApplyTrade(ctx, &models.Trade{Symbol: "AAPL", Price: 110}) {
		t.Fatalf("trade before first load must be ignored")
	}
	_ = e.FetchStockData(ctx, "AAPL")
	if !e.ApplyTrade(ctx, &models.Trade{Symbol: "aapl", Price: 110, Timestamp: 1}) {
		t.Fatalf("expected trade to apply")
	}
	st, _ := e.Stock("AAPL")
	if st.Price != 110 || math.Abs(st.ChangePercent-10) > 1e-9 {
		t.Fatalf("unexpected state %+v", st)
	}
	if e.ApplyTrade(ctx, &models.Trade{Symbol: "ZZZZ", Price: 1}) {
		t.Fatalf("untracked symbol must be ignored")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := &fakeWatchlistStore{}
	s := newFakeSeries()
	s.set("NFLX", falling(60))
	e := newTestEngine(newFakeQuotes(), s, rsiOnly(30), []string{"AAPL"}, WithWatchlistStore(store))

	if _, err := e.AddSymbol(ctx, "nflx"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if store.saved == nil || !reflect.DeepEqual(store.saved.Symbols, []string{"AAPL", "NFLX"}) {
		t.Fatalf("saved = %+v", store.saved)
	}
	if len(store.saved.SignalLog) != 1 {
		t.Fatalf("signal log not persisted")
	}

	restored := newTestEngine(newFakeQuotes(), newFakeSeries(), rsiOnly(30), nil, WithWatchlistStore(store))
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := restored.Symbols(); !reflect.DeepEqual(got, []string{"AAPL", "NFLX"}) {
		t.Fatalf("restored symbols = %v", got)
	}
	if len(restored.SignalLog()) != 1 || len(restored.Stocks()) != 0 {
		t.Fatalf("only symbols and log are restored")
	}

	restored.ClearSignalLog(ctx)
	if len(store.saved.SignalLog) != 0 {
		t.Fatalf("clear must persist")
	}
}

func TestLoadFailureKeepsDefaults(t *testing.T) {
	store := &fakeWatchlistStore{err: errUpstream}
	e := newTestEngine(newFakeQuotes(), newFakeSeries(), rsiOnly(30), []string{"AAPL"}, WithWatchlistStore(store))
	if err := e.Load(context.Background()); !errors.Is(err, errUpstream) {
		t.Fatalf("expected load error, got %v", err)
	}
	if got := e.Symbols(); !reflect.DeepEqual(got, []string{"AAPL"}) {
		t.Fatalf("symbols = %v", got)
	}
}

func TestSignalPublishersReceiveEntries(t *testing.T) {
	ctx := context.Background()
	ok := &fakePublisher{}
	failing := &fakePublisher{err: errUpstream}
	s := newFakeSeries()
	s.set("AAPL", falling(60))
	e := newTestEngine(newFakeQuotes(), s, rsiOnly(30), []string{"AAPL"}, WithSignalPublishers(failing, ok, nil))

	if err := e.FetchStockData(ctx, "AAPL"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(ok.got) != 1 || len(failing.got) != 1 {
		t.Fatalf("publishers got %d and %d entries", len(ok.got), len(failing.got))
	}
	if len(e.SignalLog()) != 1 {
		t.Fatalf("publish failure must not roll back the log")
	}
}

func TestPollingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := newFakeQuotes()
	e := newTestEngine(q, newFakeSeries(), rsiOnly(30), []string{"AAPL", "MSFT"}, WithPollInterval(time.Hour))

	started, err := e.StartPolling(ctx)
	if err != nil || !started {
		t.Fatalf("start = %v, %v", started, err)
	}
	if again, _ := e.StartPolling(ctx); again {
		t.Fatalf("second start must be a no-op")
	}
	if !e.IsPolling() || !e.Snapshot().Polling {
		t.Fatalf("expected polling")
	}
	waitFor(t, "initial refresh", func() bool { return e.Snapshot().LastUpdated != nil })
	if n := len(e.Stocks()); n != 2 {
		t.Fatalf("initial refresh loaded %d stocks", n)
	}

	if !e.StopPolling() {
		t.Fatalf("expected stop")
	}
	if e.StopPolling() {
		t.Fatalf("second stop must be a no-op")
	}
	if e.IsPolling() {
		t.Fatalf("expected stopped")
	}
}

func TestStartPollingRejectsBadCron(t *testing.T) {
	e := newTestEngine(newFakeQuotes(), newFakeSeries(), rsiOnly(30), []string{"AAPL"}, WithFullRefreshCron("not a spec"))
	if ok, err := e.StartPolling(context.Background()); ok || err == nil {
		t.Fatalf("start = %v, %v; want error", ok, err)
	}
	if e.IsPolling() {
		t.Fatalf("failed start must leave polling off")
	}
}

func TestPollQuotesUpdatesEverySymbol(t *testing.T) {
	ctx := context.Background()
	q := newFakeQuotes()
	e := newTestEngine(q, newFakeSeries(), rsiOnly(30), []string{"AAPL", "MSFT"})
	_ = e.FetchAll(ctx)

	q.set("AAPL", 1)
	q.set("MSFT", 2)
	e.pollQuotes(ctx)
	stocks := e.Stocks()
	if stocks["AAPL"].Price != 1 || stocks["MSFT"].Price != 2 {
		t.Fatalf("unexpected prices %+v", stocks)
	}
}
