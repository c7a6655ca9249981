package cache

import (
	"context"

	domrepo "Pivot/internal/domain/repository"
)

// CachedSeriesProvider serves close series from cache first and writes fresh
// upstream results back.
type CachedSeriesProvider struct {
	next  domrepo.SeriesProvider
	cache domrepo.SeriesCache
}

func NewCachedSeriesProvider(next domrepo.SeriesProvider, c domrepo.SeriesCache) *CachedSeriesProvider {
	return &CachedSeriesProvider{next: next, cache: c}
}

var _ domrepo.SeriesProvider = (*CachedSeriesProvider)(nil)

func (p *CachedSeriesProvider) GetTimeSeries(ctx context.Context, symbol string) ([]float64, error) {
	if closes, ok := p.cache.Get(ctx, symbol); ok {
		return closes, nil
	}
	closes, err := p.next.GetTimeSeries(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(closes) > 0 {
		p.cache.Put(ctx, symbol, closes)
	}
	return closes, nil
}
