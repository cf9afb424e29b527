package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"MacroPull/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	Server struct {
		Port         int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"90s"`
		// How long a request waits for the first snapshot before fallbacks are served.
		SnapshotWait    time.Duration `yaml:"snapshot_wait" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	RateLimit struct {
		Enabled           bool    `yaml:"enabled" default:"true"`
		RequestsPerSecond float64 `yaml:"requests_per_second" default:"5" validate:"gt=0"`
		Burst             int     `yaml:"burst" default:"20" validate:"min=1"`
	} `yaml:"rate_limit"`

	Cache struct {
		// none | memory | redis | layered
		Backend       string        `yaml:"backend" default:"redis" validate:"oneof=none memory redis layered"`
		StaleTTL      time.Duration `yaml:"stale_ttl" default:"0s"`
		MemoryMaxSize int           `yaml:"memory_max_size" default:"256" validate:"min=1"`
		Redis         struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"macropull"`
			PoolSize int    `yaml:"pool_size" default:"10"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Upstream struct {
		Timeout        time.Duration `yaml:"timeout" default:"8s" validate:"gt=0"`
		UserAgent      string        `yaml:"user_agent" default:"MacroPull/1.0"`
		RateLimitDelay time.Duration `yaml:"rate_limit_delay" default:"15s"`
		SCBBaseURL     string        `yaml:"scb_base_url" default:"https://api.scb.se/OV0104/v1/doris/sv/ssd" validate:"url"`
		RiksbankURL    string        `yaml:"riksbank_base_url" default:"https://api.riksbank.se/swea/v1" validate:"url"`
		ECBBaseURL     string        `yaml:"ecb_base_url" default:"https://data-api.ecb.europa.eu/service/data" validate:"url"`
	} `yaml:"upstream"`

	Refresh struct {
		// 0 disables background refresh; every snapshot request then runs a pass
		// served mostly from the per-indicator cache.
		Interval time.Duration `yaml:"interval" default:"10m"`
	} `yaml:"refresh"`

	Breaker struct {
		Enabled          bool          `yaml:"enabled" default:"true"`
		FailureThreshold uint32        `yaml:"failure_threshold" default:"3" validate:"min=1"`
		OpenTimeout      time.Duration `yaml:"open_timeout" default:"2m"`
		HalfOpenRequests uint32        `yaml:"half_open_requests" default:"1" validate:"min=1"`
	} `yaml:"breaker"`

	ClickHouse struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"macro"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		UseHTTP     bool          `yaml:"use_http"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	} `yaml:"clickhouse"`

	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"macro.snapshots"`
		RequiredAcks int           `yaml:"required_acks" default:"1"`
		Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`

	// Indicators overrides the built-in registry per indicator name.
	Indicators map[string]IndicatorOverride `yaml:"indicators"`
}

// IndicatorOverride patches a built-in indicator definition. Nil fields keep the built-in value.
type IndicatorOverride struct {
	Fallback *float64       `yaml:"fallback"`
	Min      *float64       `yaml:"min"`
	Max      *float64       `yaml:"max"`
	TTL      *time.Duration `yaml:"ttl"`
	Disabled bool           `yaml:"disabled"`
}

var validate = validator.New()

// Default returns a configuration populated only from struct defaults.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load reads and parses a YAML configuration file. An empty path or a missing file yields defaults.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, c); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
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
	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	c.Server.Port = util.ParseIntDefault(getenv("PORT"), c.Server.Port)
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	c.Metrics.Enabled = util.ParseBoolDefault(getenv("METRICS_ENABLED"), c.Metrics.Enabled)
	c.RateLimit.Enabled = util.ParseBoolDefault(getenv("RATE_LIMIT_ENABLED"), c.RateLimit.Enabled)

	if v := getenv("CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}
	c.Cache.Redis.Port = util.ParseIntDefault(getenv("REDIS_PORT"), c.Cache.Redis.Port)
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	c.Cache.Redis.DB = util.ParseIntDefault(getenv("REDIS_DB"), c.Cache.Redis.DB)

	c.Upstream.RateLimitDelay = util.ParseDurationDefault(getenv("UPSTREAM_RATE_LIMIT_DELAY"), c.Upstream.RateLimitDelay)
	c.Upstream.Timeout = util.ParseDurationDefault(getenv("UPSTREAM_TIMEOUT"), c.Upstream.Timeout)
	c.Refresh.Interval = util.ParseDurationDefault(getenv("REFRESH_INTERVAL"), c.Refresh.Interval)

	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for name, o := range c.Indicators {
		if o.Min != nil && o.Max != nil && *o.Min > *o.Max {
			return fmt.Errorf("indicators.%s: min %.4f is greater than max %.4f", name, *o.Min, *o.Max)
		}
		if o.TTL != nil && *o.TTL < 0 {
			return fmt.Errorf("indicators.%s: ttl cannot be negative", name)
		}
	}
	return nil
}

// RedisConfigured reports whether enough Redis settings are present to attempt a connection.
func (c *Config) RedisConfigured() bool {
	return c.Cache.Redis.Host != ""
}
