// Package config holds application configuration: scan behavior, retry
// budgets, and exporter endpoints. Values come from struct defaults
// overlaid with an optional YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	Scan    ScanConfig    `yaml:"scan"`
	Device  DeviceConfig  `yaml:"device"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Influx  InfluxConfig  `yaml:"influx"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// ScanConfig configures discovery windows.
type ScanConfig struct {
	Window          time.Duration `yaml:"window" default:"10s"`
	Attempts        int           `yaml:"attempts" default:"1"`
	DuplicateFilter bool          `yaml:"duplicate_filter" default:"true"`
}

// DeviceConfig configures per-device session behavior.
type DeviceConfig struct {
	ConnectAttempts   int           `yaml:"connect_attempts" default:"3"`
	ReadAttempts      int           `yaml:"read_attempts" default:"3"`
	SubscribeAttempts int           `yaml:"subscribe_attempts" default:"3"`
	BackoffUnit       time.Duration `yaml:"backoff_unit" default:"1s"`
	SettleDelay       time.Duration `yaml:"settle_delay" default:"1s"`
	PacingDelay       time.Duration `yaml:"pacing_delay" default:"500ms"`
	SubscribeDelay    time.Duration `yaml:"subscribe_delay" default:"2s"`
	CollectTimeout    time.Duration `yaml:"collect_timeout" default:"30s"`
}

// MQTTConfig configures the optional MQTT reading exporter.
type MQTTConfig struct {
	Enabled     bool          `yaml:"enabled" default:"false"`
	Broker      string        `yaml:"broker" default:"tcp://localhost:1883"`
	ClientID    string        `yaml:"client_id" default:"blescout"`
	TopicPrefix string        `yaml:"topic_prefix" default:"blescout/climate"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	QoS         byte          `yaml:"qos" default:"1"`
	Timeout     time.Duration `yaml:"timeout" default:"5s"`
}

// InfluxConfig configures the optional InfluxDB reading exporter.
type InfluxConfig struct {
	Enabled     bool   `yaml:"enabled" default:"false"`
	URL         string `yaml:"url" default:"http://localhost:8086"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket" default:"blescout"`
	Measurement string `yaml:"measurement" default:"climate"`
}

// MonitorConfig configures the periodic acquisition loop.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval" default:"60s"`
}

// Default returns the configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load returns defaults overlaid with the YAML file at path. An empty path
// yields pure defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// NewLogger creates a logger configured per LogLevel.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
