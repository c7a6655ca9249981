package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type RateLimit struct {
	Burst     float64 `yaml:"burst"`
	PerSecond float64 `yaml:"per_second"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Logger struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logger"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Finnhub struct {
		APIKey             string        `yaml:"api_key"`
		BaseURL            string        `yaml:"base_url" default:"https://finnhub.io/api/v1"`
		WebSocketURL       string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		StreamEnabled      bool          `yaml:"stream_enabled"`
		ReconnectDelay     time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval       time.Duration `yaml:"ping_interval" default:"30s"`
		ReconcileInterval  time.Duration `yaml:"reconcile_interval" default:"5s"`
		MaxTradesPerSecond float64       `yaml:"max_trades_per_second" default:"1"`
		RateLimit          RateLimit     `yaml:"rate_limit"`
	} `yaml:"finnhub"`
	TwelveData struct {
		APIKey    string    `yaml:"api_key"`
		BaseURL   string    `yaml:"base_url" default:"https://api.twelvedata.com"`
		RateLimit RateLimit `yaml:"rate_limit"`
	} `yaml:"twelve_data"`
	Engine struct {
		Symbols          []string      `yaml:"symbols"`
		PollInterval     time.Duration `yaml:"poll_interval" default:"30s"`
		FullRefreshCron  string        `yaml:"full_refresh_cron"`
		SeriesTTL        time.Duration `yaml:"series_ttl" default:"4h"`
		AutoStartPolling bool          `yaml:"auto_start_polling" default:"true"`
	} `yaml:"engine"`
	Cache struct {
		Backend string `yaml:"backend" default:"memory"`
		Redis   struct {
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"pivot"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Storage struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"pivot.signals"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"snappy"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
		Async        bool          `yaml:"async"`
	} `yaml:"kafka"`
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	c.Finnhub.RateLimit = RateLimit{Burst: 30, PerSecond: 1}
	c.TwelveData.RateLimit = RateLimit{Burst: 8, PerSecond: 8.0 / 60.0}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := os.Getenv("TWELVE_DATA_API_KEY"); v != "" {
		c.TwelveData.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Engine.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid. Missing provider tokens are
// not errors; see Warnings.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be positive")
	}
	if c.Engine.SeriesTTL <= 0 {
		return fmt.Errorf("engine.series_ttl must be positive")
	}
	if c.Engine.FullRefreshCron != "" {
		if _, err := cron.ParseStandard(c.Engine.FullRefreshCron); err != nil {
			return fmt.Errorf("engine.full_refresh_cron: %w", err)
		}
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be 'memory' or 'redis', got '%s'", c.Cache.Backend)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}
	return nil
}

// Warnings lists settings that degrade the service without stopping it.
func (c *Config) Warnings() []string {
	var w []string
	if c.Finnhub.APIKey == "" {
		w = append(w, "finnhub api key is not set (FINNHUB_API_KEY); quotes, search and news will fail")
	}
	if c.TwelveData.APIKey == "" {
		w = append(w, "twelve data api key is not set (TWELVE_DATA_API_KEY); indicators fall back to defaults")
	}
	if c.Finnhub.StreamEnabled && c.Finnhub.APIKey == "" {
		w = append(w, "finnhub stream is enabled without an api key; it will not connect")
	}
	return w
}
