package repository

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) RecordRefresh(string)            {}
func (NoopMetrics) RecordError(string)              {}
func (NoopMetrics) RecordLastPrice(string, float64) {}
func (NoopMetrics) RecordLatency(string, float64)   {}
func (NoopMetrics) RecordSignal(string)             {}
func (NoopMetrics) RecordCacheLookup(string)        {}
