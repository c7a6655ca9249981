package twelvedata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Pivot/internal/domain/models"
)

func serve(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/time_series" || q.Get("interval") != "1day" || q.Get("outputsize") != "100" || q.Get("apikey") != "td-key" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New("td-key", WithBaseURL(srv.URL), WithRateLimit(nil, 0, 0))
}

func TestGetTimeSeriesChronological(t *testing.T) {
	c := serve(t, 200, `{"status":"ok","values":[
		{"datetime":"2024-10-03","close":"103.5"},
		{"datetime":"2024-10-02","close":"102.0"},
		{"datetime":"2024-10-01","close":"101.25"}]}`)

	closes, err := c.GetTimeSeries(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	want := []float64{101.25, 102.0, 103.5}
	if len(closes) != len(want) {
		t.Fatalf("len = %d", len(closes))
	}
	for i := range want {
		if closes[i] != want[i] {
			t.Fatalf("closes[%d] = %v, want %v", i, closes[i], want[i])
		}
	}
}

func TestGetTimeSeriesCapsLength(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"values":[`)
	for i := 0; i < 120; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"datetime":"d%d","close":"%d"}`, i, 500-i)
	}
	b.WriteString(`]}`)
	c := serve(t, 200, b.String())

	closes, err := c.GetTimeSeries(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if len(closes) != 100 {
		t.Fatalf("len = %d, want 100", len(closes))
	}
	if closes[99] != 500 || closes[0] != 401 {
		t.Fatalf("unexpected bounds %v %v", closes[0], closes[99])
	}
}

func TestGetTimeSeriesAbsent(t *testing.T) {
	for _, body := range []string{
		`{"status":"ok","values":[]}`,
		`{"status":"error","code":404,"message":"symbol not found"}`,
		`{"status":"error","code":400,"message":"**symbol** not found"}`,
	} {
		c := serve(t, 200, body)
		closes, err := c.GetTimeSeries(context.Background(), "ZZZZ")
		if err != nil || closes != nil {
			t.Fatalf("%s: closes=%v err=%v", body, closes, err)
		}
	}
}

func TestGetTimeSeriesErrors(t *testing.T) {
	c := serve(t, 200, `{"status":"error","code":429,"message":"run out of API credits"}`)
	_, err := c.GetTimeSeries(context.Background(), "AAPL")
	var ue *models.UpstreamError
	if !errors.As(err, &ue) || ue.Status != 429 || !strings.Contains(ue.Body, "credits") {
		t.Fatalf("expected credit error, got %v", err)
	}

	c = serve(t, 503, "")
	_, err = c.GetTimeSeries(context.Background(), "AAPL")
	if !errors.As(err, &ue) || ue.Status != 503 || ue.Body != "AAPL" {
		t.Fatalf("expected 503 upstream error, got %v", err)
	}

	c = serve(t, 200, `{"values":[{"datetime":"x","close":"n/a"}]}`)
	if _, err = c.GetTimeSeries(context.Background(), "AAPL"); err == nil {
		t.Fatalf("expected parse error")
	}
}
