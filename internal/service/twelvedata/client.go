// Package twelvedata fetches daily close history from the Twelve Data REST API.
package twelvedata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Pivot/internal/domain/models"
	drepo "Pivot/internal/domain/repository"
	"Pivot/internal/service/ratelimit"
	"Pivot/internal/services/indicators"
	xhttp "Pivot/pkg/http"
)

const (
	Provider       = "twelvedata"
	DefaultBaseURL = "https://api.twelvedata.com"
)

// Client implements SeriesProvider.
type Client struct {
	baseURL string
	apiKey  string
	http    *xhttp.Client
	rl      *ratelimit.Limiter
	burst   float64
	perSec  float64
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTP(h *xhttp.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit sets the local bucket. The free tier allows 8 credits a minute.
func WithRateLimit(l *ratelimit.Limiter, burst, perSec float64) Option {
	return func(c *Client) {
		c.rl = l
		c.burst = burst
		c.perSec = perSec
	}
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		http:    xhttp.NewClient(xhttp.WithTimeout(15 * time.Second)),
		rl:      ratelimit.New(),
		burst:   8,
		perSec:  8.0 / 60.0,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ drepo.SeriesProvider = (*Client)(nil)

type tsValue struct {
	Datetime string `json:"datetime"`
	Close    string `json:"close"`
}

type tsResponse struct {
	Status  string    `json:"status"`
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Values  []tsValue `json:"values"`
}

// GetTimeSeries returns up to 100 daily closes, oldest first. A symbol the
// provider has no history for yields (nil, nil).
func (c *Client) GetTimeSeries(ctx context.Context, symbol string) ([]float64, error) {
	if c.rl != nil && !c.rl.Allow(Provider, c.burst, c.perSec) {
		return nil, &models.UpstreamError{Provider: Provider, Status: http.StatusTooManyRequests, Body: "local rate limit reached"}
	}

	var res tsResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/time_series",
		QueryParams: map[string][]string{
			"symbol":     {symbol},
			"interval":   {"1day"},
			"outputsize": {strconv.Itoa(indicators.MaxSeriesLen)},
			"apikey":     {c.apiKey},
		},
	}, &res)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) {
			body := se.Body
			if body == "" {
				body = symbol
			}
			return nil, &models.UpstreamError{Provider: Provider, Status: se.Code, Body: body}
		}
		return nil, fmt.Errorf("twelvedata time_series %s: %w", symbol, err)
	}

	if res.Status == "error" {
		// 400 and 404 mean the symbol has no daily history on this plan.
		if res.Code == http.StatusBadRequest || res.Code == http.StatusNotFound {
			return nil, nil
		}
		msg := res.Message
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &models.UpstreamError{Provider: Provider, Status: res.Code, Body: msg}
	}
	if len(res.Values) == 0 {
		return nil, nil
	}
	return parseCloses(res.Values)
}

// parseCloses converts newest-first values into chronological closes.
func parseCloses(values []tsValue) ([]float64, error) {
	if len(values) > indicators.MaxSeriesLen {
		values = values[:indicators.MaxSeriesLen]
	}
	out := make([]float64, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Close), 64)
		if err != nil {
			return nil, fmt.Errorf("twelvedata close %q at %s: %w", v.Close, v.Datetime, err)
		}
		out[len(values)-1-i] = f
	}
	return out, nil
}
