package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"Pivot/internal/domain/models"
)

type fakeQuotes struct {
	mu           sync.Mutex
	quotes       map[string]models.Quote
	errs         map[string]error
	names        map[string]string
	profileErr   error
	gate         chan struct{} // when set, GetQuote blocks until closed
	quoteCalls   atomic.Int64
	profileCalls atomic.Int64
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{
		quotes: make(map[string]models.Quote),
		errs:   make(map[string]error),
		names:  make(map[string]string),
	}
}

func (f *fakeQuotes) set(sym string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[sym] = models.Quote{Current: price, ChangePercent: 1.5, PrevClose: price / 1.015}
}

func (f *fakeQuotes) GetQuote(ctx context.Context, sym string) (models.Quote, error) {
	f.quoteCalls.Add(1)
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.Quote{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[sym]; err != nil {
		return models.Quote{}, err
	}
	q, ok := f.quotes[sym]
	if !ok {
		return models.Quote{Current: 100}, nil
	}
	return q, nil
}

func (f *fakeQuotes) GetCompanyProfile(_ context.Context, sym string) (models.CompanyProfile, error) {
	f.profileCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return models.CompanyProfile{}, f.profileErr
	}
	return models.CompanyProfile{Name: f.names[sym], Ticker: sym}, nil
}

func (f *fakeQuotes) SearchSymbols(context.Context, string) ([]models.SymbolMatch, error) {
	return nil, nil
}

type fakeSeries struct {
	mu     sync.Mutex
	closes map[string][]float64
	err    error
}

func newFakeSeries() *fakeSeries { return &fakeSeries{closes: make(map[string][]float64)} }

func (f *fakeSeries) set(sym string, closes []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes[sym] = closes
}

func (f *fakeSeries) GetTimeSeries(_ context.Context, sym string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.closes[sym], nil
}

type staticSettings struct{ s models.Settings }

func (s staticSettings) Current() models.Settings { return s.s }

func rsiOnly(threshold float64) staticSettings {
	return staticSettings{models.Settings{RSIEnabled: true, RSIThreshold: threshold}}
}

func smaOnly() staticSettings {
	return staticSettings{models.Settings{SMAEnabled: true, RSIThreshold: 30}}
}

type fakeWatchlistStore struct {
	mu    sync.Mutex
	saved *models.PersistedWatchlist
	saves int
	err   error
}

func (f *fakeWatchlistStore) LoadWatchlist(context.Context) (models.PersistedWatchlist, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.PersistedWatchlist{}, false, f.err
	}
	if f.saved == nil {
		return models.PersistedWatchlist{}, false, nil
	}
	return *f.saved, true, nil
}

func (f *fakeWatchlistStore) SaveWatchlist(_ context.Context, w models.PersistedWatchlist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.err != nil {
		return f.err
	}
	f.saved = &w
	return nil
}

type fakeSettingsStore struct {
	mu    sync.Mutex
	saved *models.Settings
	saves int
}

func (f *fakeSettingsStore) LoadSettings(context.Context) (models.Settings, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		return models.Settings{}, false, nil
	}
	return *f.saved, true, nil
}

func (f *fakeSettingsStore) SaveSettings(_ context.Context, s models.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.saved = &s
	return nil
}

type fakePublisher struct {
	mu  sync.Mutex
	got []models.SignalLogEntry
	err error
}

func (f *fakePublisher) PublishSignal(_ context.Context, e models.SignalLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, e)
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

type fakeCache struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeCache) Get(context.Context, string) ([]float64, bool) { return nil, false }
func (f *fakeCache) Put(context.Context, string, []float64)        {}
func (f *fakeCache) Delete(_ context.Context, sym string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, sym)
}

var errUpstream = errors.New("upstream down")

func rising(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func falling(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(n - i)
	}
	return out
}

type panicSeries struct{}

func (panicSeries) GetTimeSeries(context.Context, string) ([]float64, error) {
	panic("series decoder bug")
}

type panicQuotes struct{ *fakeQuotes }

func (panicQuotes) GetQuote(context.Context, string) (models.Quote, error) {
	panic("quote decoder bug")
}
