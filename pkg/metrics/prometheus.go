package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	drepo "Pivot/internal/domain/repository"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	refreshes    *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	signals      *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

var _ drepo.Metrics = (*Recorder)(nil)

// New creates a recorder registered on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		refreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivot_refreshes_total",
				Help: "Total number of applied symbol refreshes by kind (full, quote, trade)",
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivot_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pivot_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pivot_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivot_signals_total",
				Help: "Buy signals logged per symbol",
			},
			[]string{"symbol"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivot_cache_lookups_total",
				Help: "Series cache lookups by result (hit, miss, fault)",
			},
			[]string{"result"},
		),
	}
}

// RecordRefresh records an applied refresh.
func (r *Recorder) RecordRefresh(kind string) {
	r.refreshes.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordSignal(symbol string) {
	r.signals.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordCacheLookup(result string) {
	r.cacheLookups.WithLabelValues(result).Inc()
}
