package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults reproduce the values the storefront snippet shipped with.
const (
	DefaultEndpoint      = "/api/metrics/cart-events"
	DefaultCartPath      = "/cart/add.js"
	DefaultCollectorPath = "/api/metrics/cart-events"
)

// DefaultSelectors are the add-to-cart controls tracked on a page.
var DefaultSelectors = []string{`button[name="add"]`, "button.additional-btn"}

type Config struct {
	Tracker    TrackerConfig    `yaml:"tracker"`
	Collector  CollectorConfig  `yaml:"collector"`
	Proxy      ProxyConfig      `yaml:"proxy"`
	Sink       SinkConfig       `yaml:"sink"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	GeoIP      GeoIPConfig      `yaml:"geoip"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

type TrackerConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	CartPath  string        `yaml:"cart_path"`
	Selectors []string      `yaml:"selectors"`
	CORS      bool          `yaml:"cors"`
	Origin    string        `yaml:"origin"`
	// Timeout bounds each report. Zero means the 10s default; a negative
	// value disables the timeout.
	Timeout time.Duration `yaml:"timeout"`
}

type CollectorConfig struct {
	HTTPPort      int    `yaml:"http_port"`
	Path          string `yaml:"path"`
	AllowedOrigin string `yaml:"allowed_origin"`
}

type ProxyConfig struct {
	Listen   string `yaml:"listen"`
	Upstream string `yaml:"upstream"`
}

// SinkConfig selects where the collector writes received events.
// Driver is one of: sqlite, postgres, clickhouse, kafka, memory.
type SinkConfig struct {
	Driver string `yaml:"driver"`
}

type KafkaConfig struct {
	Brokers []string          `yaml:"brokers"`
	Topics  map[string]string `yaml:"topics"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type ClickHouseConfig struct {
	Addr         string `yaml:"addr"`
	Database     string `yaml:"database"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type GeoIPConfig struct {
	DatabasePath string `yaml:"database_path"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes a YAML document, expanding ${VAR} references first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Tracker.Endpoint == "" {
		c.Tracker.Endpoint = DefaultEndpoint
	}
	if c.Tracker.CartPath == "" {
		c.Tracker.CartPath = DefaultCartPath
	}
	if len(c.Tracker.Selectors) == 0 {
		c.Tracker.Selectors = append([]string(nil), DefaultSelectors...)
	}
	if c.Tracker.Timeout == 0 {
		c.Tracker.Timeout = 10 * time.Second
	}

	if c.Collector.HTTPPort == 0 {
		c.Collector.HTTPPort = 8080
	}
	if c.Collector.Path == "" {
		c.Collector.Path = DefaultCollectorPath
	}
	if c.Collector.AllowedOrigin == "" {
		c.Collector.AllowedOrigin = "*"
	}

	if c.Proxy.Listen == "" {
		c.Proxy.Listen = ":8081"
	}

	if c.Sink.Driver == "" {
		c.Sink.Driver = "sqlite"
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "data/cart-events.db"
	}
	if c.Kafka.Topics == nil {
		c.Kafka.Topics = map[string]string{}
	}
	if c.Kafka.Topics["cart_events"] == "" {
		c.Kafka.Topics["cart_events"] = "gosight.cart.events"
	}
	if c.ClickHouse.MaxOpenConns == 0 {
		c.ClickHouse.MaxOpenConns = 10
	}
	if c.ClickHouse.MaxIdleConns == 0 {
		c.ClickHouse.MaxIdleConns = 5
	}

	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 50
	}
}
