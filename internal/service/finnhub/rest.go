package finnhub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Pivot/internal/domain/models"
	drepo "Pivot/internal/domain/repository"
	"Pivot/internal/service/ratelimit"
	xhttp "Pivot/pkg/http"
)

const (
	Provider       = "finnhub"
	DefaultBaseURL = "https://finnhub.io/api/v1"

	searchLimit     = 6
	searchStockType = "Common Stock"
)

// Client implements QuoteProvider and NewsProvider on the Finnhub REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *xhttp.Client
	rl      *ratelimit.Limiter
	burst   float64
	perSec  float64
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTP sets the HTTP client.
func WithHTTP(h *xhttp.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit shares a limiter and sets the bucket size and refill rate.
// A zero burst disables local throttling.
func WithRateLimit(l *ratelimit.Limiter, burst, perSec float64) Option {
	return func(c *Client) {
		c.rl = l
		c.burst = burst
		c.perSec = perSec
	}
}

// New creates a Finnhub REST client. The free tier allows 60 calls a minute.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		http:    xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
		rl:      ratelimit.New(),
		burst:   30,
		perSec:  1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ drepo.QuoteProvider = (*Client)(nil)
	_ drepo.NewsProvider  = (*Client)(nil)
)

type fhQuote struct {
	C  float64 `json:"c"`  // current price
	D  float64 `json:"d"`  // change
	DP float64 `json:"dp"` // change percent
	H  float64 `json:"h"`
	L  float64 `json:"l"`
	O  float64 `json:"o"`
	PC float64 `json:"pc"` // previous close
}

// GetQuote returns the current quote for symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	var q fhQuote
	if err := c.get(ctx, "/quote", map[string][]string{"symbol": {symbol}}, &q); err != nil {
		return models.Quote{}, err
	}
	return models.Quote{
		Current:       q.C,
		Change:        q.D,
		ChangePercent: q.DP,
		High:          q.H,
		Low:           q.L,
		Open:          q.O,
		PrevClose:     q.PC,
	}, nil
}

// GetCompanyProfile returns the company name and ticker.
func (c *Client) GetCompanyProfile(ctx context.Context, symbol string) (models.CompanyProfile, error) {
	var p models.CompanyProfile
	if err := c.get(ctx, "/stock/profile2", map[string][]string{"symbol": {symbol}}, &p); err != nil {
		return models.CompanyProfile{}, err
	}
	return p, nil
}

type fhSearch struct {
	Count  int                  `json:"count"`
	Result []models.SymbolMatch `json:"result"`
}

// SearchSymbols returns up to six US common stocks matching query.
func (c *Client) SearchSymbols(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	var res fhSearch
	params := map[string][]string{"q": {query}, "exchange": {"US"}}
	if err := c.get(ctx, "/search", params, &res); err != nil {
		return nil, err
	}
	out := make([]models.SymbolMatch, 0, searchLimit)
	for _, r := range res.Result {
		if r.Type != searchStockType {
			continue
		}
		out = append(out, r)
		if len(out) == searchLimit {
			break
		}
	}
	return out, nil
}

// GetMarketNews returns general market headlines.
func (c *Client) GetMarketNews(ctx context.Context) ([]models.NewsItem, error) {
	var items []models.NewsItem
	if err := c.get(ctx, "/news", map[string][]string{"category": {"general"}}, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetRecommendations returns analyst recommendation trends for symbol.
func (c *Client) GetRecommendations(ctx context.Context, symbol string) ([]models.Recommendation, error) {
	var recs []models.Recommendation
	if err := c.get(ctx, "/stock/recommendation", map[string][]string{"symbol": {symbol}}, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string][]string, dest interface{}) error {
	if c.rl != nil && !c.rl.Allow(Provider, c.burst, c.perSec) {
		return &models.UpstreamError{Provider: Provider, Status: 429, Body: "local rate limit reached"}
	}
	params["token"] = []string{c.apiKey}

	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: params,
	}, dest)
	if err == nil {
		return nil
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		body := se.Body
		if body == "" {
			body = path
		}
		return &models.UpstreamError{Provider: Provider, Status: se.Code, Body: body}
	}
	return fmt.Errorf("finnhub %s: %w", path, err)
}
