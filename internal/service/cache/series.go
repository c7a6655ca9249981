package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	domrepo "Pivot/internal/domain/repository"
	applogger "Pivot/pkg/logger"
)

// DefaultSeriesTTL bounds how long daily closes are reused. Daily candles do
// not change within a trading session.
const DefaultSeriesTTL = 4 * time.Hour

const seriesKeyPrefix = "td-ts-"

// LookupResult tells a plain miss apart from a miss caused by a storage fault.
type LookupResult int

const (
	LookupHit LookupResult = iota
	LookupMiss
	LookupFault
)

func (r LookupResult) String() string {
	switch r {
	case LookupHit:
		return "hit"
	case LookupMiss:
		return "miss"
	case LookupFault:
		return "fault"
	default:
		return "unknown"
	}
}

type seriesEntry struct {
	Closes    []float64 `json:"closes"`
	Timestamp int64     `json:"timestamp"` // unix ms of the write
}

// SeriesCache stores close series per symbol. It is best effort: every fault
// is logged and reported as a miss, never returned to the caller.
type SeriesCache struct {
	store   BytesCache
	ttl     time.Duration
	now     func() time.Time
	l       *applogger.Logger
	metrics domrepo.Metrics
}

// SeriesOption configures SeriesCache.
type SeriesOption func(*SeriesCache)

// WithTTL overrides DefaultSeriesTTL.
func WithTTL(ttl time.Duration) SeriesOption {
	return func(c *SeriesCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source used for entry age.
func WithClock(now func() time.Time) SeriesOption {
	return func(c *SeriesCache) { c.now = now }
}

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) SeriesOption {
	return func(c *SeriesCache) { c.l = l }
}

// WithMetrics records lookup outcomes.
func WithMetrics(m domrepo.Metrics) SeriesOption {
	return func(c *SeriesCache) { c.metrics = m }
}

func NewSeriesCache(store BytesCache, opts ...SeriesOption) *SeriesCache {
	c := &SeriesCache{
		store:   store,
		ttl:     DefaultSeriesTTL,
		now:     time.Now,
		l:       applogger.NewNop(),
		metrics: domrepo.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ domrepo.SeriesCache = (*SeriesCache)(nil)

// Lookup returns the cached closes together with the lookup outcome.
func (c *SeriesCache) Lookup(ctx context.Context, symbol string) ([]float64, LookupResult) {
	closes, res := c.lookup(ctx, symbol)
	c.metrics.RecordCacheLookup(res.String())
	return closes, res
}

func (c *SeriesCache) lookup(ctx context.Context, symbol string) ([]float64, LookupResult) {
	key := seriesKey(symbol)
	b, ok, err := c.store.GetBytes(ctx, key)
	if err != nil {
		c.l.Warn("series cache get_error", applogger.String("key", key), applogger.Error(err))
		return nil, LookupFault
	}
	if !ok {
		return nil, LookupMiss
	}

	var e seriesEntry
	if err := json.Unmarshal(b, &e); err != nil {
		c.l.Warn("series cache decode_error", applogger.String("key", key), applogger.Error(err))
		c.evict(ctx, key)
		return nil, LookupFault
	}

	age := c.now().Sub(time.UnixMilli(e.Timestamp))
	if age > c.ttl {
		c.l.Debug("series cache expired", applogger.String("key", key), applogger.Duration("age_ms", age))
		c.evict(ctx, key)
		return nil, LookupMiss
	}
	if len(e.Closes) == 0 {
		return nil, LookupMiss
	}
	return e.Closes, LookupHit
}

// Get returns cached closes younger than the TTL.
func (c *SeriesCache) Get(ctx context.Context, symbol string) ([]float64, bool) {
	closes, res := c.Lookup(ctx, symbol)
	return closes, res == LookupHit
}

// Put stores closes stamped with the current time.
func (c *SeriesCache) Put(ctx context.Context, symbol string, closes []float64) {
	key := seriesKey(symbol)
	b, err := json.Marshal(seriesEntry{Closes: closes, Timestamp: c.now().UnixMilli()})
	if err != nil {
		c.l.Warn("series cache encode_error", applogger.String("key", key), applogger.Error(err))
		return
	}
	if err := c.store.SetBytes(ctx, key, b, c.ttl); err != nil {
		c.l.Warn("series cache set_error", applogger.String("key", key), applogger.Error(err))
	}
}

// Delete drops the entry for symbol.
func (c *SeriesCache) Delete(ctx context.Context, symbol string) {
	c.evict(ctx, seriesKey(symbol))
}

func (c *SeriesCache) evict(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.l.Warn("series cache delete_error", applogger.String("key", key), applogger.Error(err))
	}
}

func seriesKey(symbol string) string {
	return seriesKeyPrefix + strings.ToUpper(symbol)
}
