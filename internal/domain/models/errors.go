package models

import (
	"errors"
	"fmt"
)

// ErrInvalidThreshold is returned for an RSI threshold outside [1,100].
var ErrInvalidThreshold = errors.New("rsi threshold must be between 1 and 100")

// UpstreamError is a non-success response from a market-data provider.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %d: %s", e.Provider, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %d", e.Provider, e.Status)
}

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
