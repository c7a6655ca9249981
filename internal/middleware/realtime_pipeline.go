package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Pivot/internal/domain/models"
	domrepo "Pivot/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t *models.Trade) error
}

// ProcFunc adapts a function to Proc.
type ProcFunc func(ctx context.Context, t *models.Trade) error

func (f ProcFunc) Process(ctx context.Context, t *models.Trade) error { return f(ctx, t) }

// RealtimePipeline sits between the trade stream and the engine.
// It validates and throttles trades per symbol before forwarding them.
type RealtimePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   float64
	now      func() time.Time
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted time
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max trades per second per symbol. Zero disables throttling.
func WithMaxRPS(n float64) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *RealtimePipeline) { p.now = now }
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	if metrics == nil {
		metrics = domrepo.NoopMetrics{}
	}
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   1, // a trade a second per symbol is plenty for a watchlist
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates, throttles, and forwards a trade downstream.
// Throttled trades are dropped without error.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.Trade) error {
	start := p.now()
	if err := validateTrade(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(t.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return nil
}

// Forget clears the throttle state of a symbol.
func (p *RealtimePipeline) Forget(symbol string) {
	p.mu.Lock()
	delete(p.lastSeen, symbol)
	p.mu.Unlock()
}

func validateTrade(t *models.Trade) error {
	if t == nil {
		return fmt.Errorf("trade nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Timestamp <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Price <= 0 || t.Volume < 0 {
		return fmt.Errorf("non-positive price or negative volume")
	}
	return nil
}

func (p *RealtimePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[symbol]
	if !last.IsZero() && now.Sub(last) < time.Duration(float64(time.Second)/p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
