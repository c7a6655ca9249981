package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"Pivot/internal/domain/models"
	drepo "Pivot/internal/domain/repository"
	mid "Pivot/internal/middleware"
	applogger "Pivot/pkg/logger"
)

var errStreamClosed = errors.New("trade stream closed")

// TradeCollector streams live trades for the tracked symbols into the engine.
// A reconcile loop keeps the stream subscriptions in line with the watchlist.
type TradeCollector struct {
	stream    drepo.MarketStream
	engine    *Engine
	pipe      *mid.RealtimePipeline
	metrics   drepo.Metrics
	l         *applogger.Logger
	reconcile time.Duration

	mu         sync.Mutex
	subscribed map[string]struct{}
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewTradeCollector creates a new TradeCollector instance. Trades pass through
// pipe, which calls the engine, when pipe is non-nil.
func NewTradeCollector(stream drepo.MarketStream, engine *Engine, pipe *mid.RealtimePipeline, metrics drepo.Metrics, l *applogger.Logger, reconcile time.Duration) *TradeCollector {
	if metrics == nil {
		metrics = drepo.NoopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	if reconcile <= 0 {
		reconcile = 5 * time.Second
	}
	return &TradeCollector{
		stream:     stream,
		engine:     engine,
		pipe:       pipe,
		metrics:    metrics,
		l:          l,
		reconcile:  reconcile,
		subscribed: make(map[string]struct{}),
	}
}

// ProcessTrade is the pipeline sink: it applies a trade to the engine.
func (c *TradeCollector) ProcessTrade(ctx context.Context, t *models.Trade) error {
	c.engine.ApplyTrade(ctx, t)
	return nil
}

// IsConnected returns true if the market stream is connected.
func (c *TradeCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes the current symbols and begins consuming.
func (c *TradeCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.sync(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); c.consume(runCtx) }()
		go func() { defer wg.Done(); c.reconcileLoop(runCtx) }()
		wg.Wait()
	}()
	return nil
}

func (c *TradeCollector) consume(ctx context.Context) {
	trCh, errCh := c.stream.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if ctx.Err() != nil {
				return
			}
			if !ok {
				err = errStreamClosed
			}
			c.l.Warn("trade stream interrupted", applogger.Error(err))
			c.metrics.RecordError("stream")
			if !c.reconnect(ctx) {
				return
			}
			trCh, errCh = c.stream.Read(ctx)
		case t, ok := <-trCh:
			if !ok {
				trCh = nil
				continue
			}
			if t == nil {
				continue
			}
			c.handle(ctx, t)
		}
	}
}

func (c *TradeCollector) handle(ctx context.Context, t *models.Trade) {
	if c.pipe != nil {
		if err := c.pipe.Process(ctx, t); err != nil {
			c.l.Debug("trade rejected", applogger.String("symbol", t.Symbol), applogger.Error(err))
		}
		return
	}
	_ = c.ProcessTrade(ctx, t)
}

// reconnect retries until it succeeds or ctx ends.
func (c *TradeCollector) reconnect(ctx context.Context) bool {
	for {
		syms := c.engine.Symbols()
		err := c.stream.Reconnect(ctx, syms)
		if err == nil {
			c.mu.Lock()
			c.subscribed = toSet(syms)
			c.mu.Unlock()
			c.l.Info("trade stream reconnected", applogger.Int("symbols", len(syms)))
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.metrics.RecordError("stream_reconnect")
		c.l.Warn("trade stream reconnect failed", applogger.Error(err))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
}

func (c *TradeCollector) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(c.reconcile)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.stream.IsConnected() {
				continue
			}
			if err := c.sync(ctx); err != nil {
				c.l.Warn("subscription sync failed", applogger.Error(err))
			}
		}
	}
}

// sync subscribes newly tracked symbols and unsubscribes removed ones.
func (c *TradeCollector) sync(ctx context.Context) error {
	want := toSet(c.engine.Symbols())

	c.mu.Lock()
	defer c.mu.Unlock()
	var add, drop []string
	for s := range want {
		if _, ok := c.subscribed[s]; !ok {
			add = append(add, s)
		}
	}
	for s := range c.subscribed {
		if _, ok := want[s]; !ok {
			drop = append(drop, s)
		}
	}
	sort.Strings(add)
	sort.Strings(drop)

	if len(add) > 0 {
		if err := c.stream.Subscribe(ctx, add); err != nil {
			return err
		}
		for _, s := range add {
			c.subscribed[s] = struct{}{}
		}
	}
	if len(drop) > 0 {
		if err := c.stream.Unsubscribe(ctx, drop); err != nil {
			return err
		}
		for _, s := range drop {
			delete(c.subscribed, s)
			if c.pipe != nil {
				c.pipe.Forget(s)
			}
		}
	}
	return nil
}

// Subscribed returns the symbols currently subscribed on the stream.
func (c *TradeCollector) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscribed))
	for s := range c.subscribed {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Shutdown stops consuming and closes the stream.
func (c *TradeCollector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	err := c.stream.Close()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return err
}

func toSet(xs []string) map[string]struct{} {
	m := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		m[x] = struct{}{}
	}
	return m
}
