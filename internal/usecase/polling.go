package usecase

import (
	"context"
	"fmt"
	"sync"

	applogger "Pivot/pkg/logger"

	"github.com/robfig/cron/v3"
)

// StartPolling runs one FetchAll right away and then polls quotes for every
// tracked symbol on the poll interval. It reports false if polling was
// already running. Jobs run with ctx, which should outlive the poller.
func (e *Engine) StartPolling(ctx context.Context) (bool, error) {
	e.pollMu.Lock()
	defer e.pollMu.Unlock()
	if e.sched != nil {
		return false, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", e.pollInterval), func() { e.pollQuotes(ctx) }); err != nil {
		return false, fmt.Errorf("register quote poll: %w", err)
	}
	if e.fullRefresh != "" {
		if _, err := c.AddFunc(e.fullRefresh, func() { _ = e.FetchAll(ctx) }); err != nil {
			return false, fmt.Errorf("register full refresh %q: %w", e.fullRefresh, err)
		}
	}
	c.Start()
	e.sched = c

	go func() { _ = e.FetchAll(ctx) }()
	e.l.Info("polling started", applogger.Duration("interval", e.pollInterval))
	return true, nil
}

// StopPolling halts the scheduler. Ticks already running finish on their
// own. It reports false if polling was not running.
func (e *Engine) StopPolling() bool {
	e.pollMu.Lock()
	c := e.sched
	e.sched = nil
	e.pollMu.Unlock()
	if c == nil {
		return false
	}
	c.Stop()
	e.l.Info("polling stopped")
	return true
}

// IsPolling reports whether the scheduler is running.
func (e *Engine) IsPolling() bool {
	e.pollMu.Lock()
	defer e.pollMu.Unlock()
	return e.sched != nil
}

func (e *Engine) pollQuotes(ctx context.Context) {
	var wg sync.WaitGroup
	for _, sym := range e.Symbols() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.metrics.RecordError("fetch_quote")
					e.l.Error("quote poll panicked", applogger.String("symbol", sym), applogger.Any("panic", r))
				}
			}()
			_ = e.FetchQuoteOnly(ctx, sym)
		}()
	}
	wg.Wait()
}
