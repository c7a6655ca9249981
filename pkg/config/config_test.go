package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 8080 || c.Engine.PollInterval != 30*time.Second || c.Engine.SeriesTTL != 4*time.Hour {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.Cache.Backend != "memory" || c.Kafka.RequiredAcks != -1 || c.Kafka.BatchTimeout != 50*time.Millisecond || !c.Engine.AutoStartPolling {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.Finnhub.RateLimit.Burst != 30 || c.TwelveData.RateLimit.Burst != 8 {
		t.Fatalf("unexpected rate limits %+v %+v", c.Finnhub.RateLimit, c.TwelveData.RateLimit)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := writeConfig(t, `
environment: production
server:
  port: 9090
engine:
  symbols: [aapl, msft]
  poll_interval: 1m
cache:
  backend: redis
  redis:
    addr: redis:6379
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Environment != "production" || c.Server.Port != 9090 || c.Engine.PollInterval != time.Minute {
		t.Fatalf("unexpected config %+v", c)
	}
	if c.Server.ReadTimeout != 10*time.Second {
		t.Fatalf("unset fields keep defaults, got %v", c.Server.ReadTimeout)
	}
	if c.Cache.Redis.Addr != "redis:6379" || len(c.Engine.Symbols) != 2 {
		t.Fatalf("unexpected config %+v", c)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", "fh")
	t.Setenv("TWELVE_DATA_API_KEY", "td")
	t.Setenv("SYMBOLS", "NVDA,AMD")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Finnhub.APIKey != "fh" || c.TwelveData.APIKey != "td" {
		t.Fatalf("keys not overridden")
	}
	if len(c.Engine.Symbols) != 2 || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("lists not overridden %+v %+v", c.Engine.Symbols, c.Kafka.Brokers)
	}
	if w := c.Warnings(); len(w) != 0 {
		t.Fatalf("unexpected warnings %v", w)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"port":    "server:\n  port: 70000\n",
		"backend": "cache:\n  backend: memcached\n",
		"kafka":   "kafka:\n  enabled: true\n  brokers: []\n",
		"cron":    "engine:\n  full_refresh_cron: \"every day\"\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestWarningsForMissingKeys(t *testing.T) {
	c, _ := Load("")
	w := c.Warnings()
	if len(w) != 2 {
		t.Fatalf("warnings = %v", w)
	}
	if !strings.Contains(w[0], "FINNHUB_API_KEY") || !strings.Contains(w[1], "TWELVE_DATA_API_KEY") {
		t.Fatalf("warnings = %v", w)
	}
}

func TestSampleConfigLoads(t *testing.T) {
	if _, err := Load(filepath.Join("..", "..", "config", "config.yaml")); err != nil {
		t.Fatalf("sample config: %v", err)
	}
}
