// Package config loads relay configuration from a YAML file with environment
// overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full relay configuration.
type Config struct {
	// ListenAddr is the relay HTTP listen address, host:port.
	ListenAddr string `yaml:"listen_addr"`

	// MetricsPort is the Prometheus exporter port. Zero disables the exporter.
	MetricsPort int `yaml:"metrics_port"`

	// RedisAddr selects the frame store backend: empty means in-memory,
	// otherwise a redis host:port.
	RedisAddr string `yaml:"redis_addr"`

	// RedisPrefix namespaces the relay's keys in a shared redis.
	RedisPrefix string `yaml:"redis_prefix"`

	// StorageDir is the root for chunk files and screenshots.
	StorageDir string `yaml:"storage_dir"`

	// MaxViewers caps concurrent push channel connections.
	MaxViewers int `yaml:"max_viewers"`

	// IngestRate caps per-client chunk ingest in frames per second.
	// Zero disables limiting.
	IngestRate  float64 `yaml:"ingest_rate"`
	IngestBurst int     `yaml:"ingest_burst"`

	// SessionTTL is how long a stream session lives without a refresh.
	SessionTTL Duration `yaml:"session_ttl"`

	// LatestTTL bounds the staleness of latest-frame cache entries.
	LatestTTL Duration `yaml:"latest_ttl"`

	// SequenceTTL bounds per-sequence cache entries.
	SequenceTTL Duration `yaml:"sequence_ttl"`

	// PollInterval is the push channel poll cadence.
	PollInterval Duration `yaml:"poll_interval"`

	// Sweep controls the chunk file cleanup loop.
	Sweep SweepConfig `yaml:"sweep"`
}

// SweepConfig controls the periodic chunk file cleanup.
type SweepConfig struct {
	// Interval between sweeps. Zero disables the sweeper.
	Interval Duration `yaml:"interval"`

	// MaxAge is the age past which an undelivered chunk file is removed.
	MaxAge Duration `yaml:"max_age"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr:   ":8080",
		MetricsPort:  9090,
		RedisPrefix:  "relay",
		StorageDir:   "./data",
		MaxViewers:   256,
		IngestBurst:  30,
		SessionTTL:   Duration(5 * time.Minute),
		LatestTTL:    Duration(60 * time.Second),
		SequenceTTL:  Duration(30 * time.Second),
		PollInterval: Duration(50 * time.Millisecond),
		Sweep: SweepConfig{
			Interval: Duration(10 * time.Minute),
			MaxAge:   Duration(time.Hour),
		},
	}
}

// Load reads the config at path, layered over defaults and under environment
// overrides. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers deployment overrides on top of file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("RELAY_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("RELAY_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("RELAY_STORAGE_DIR"); v != "" {
		c.StorageDir = v
	}
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir is required")
	}
	if c.SessionTTL <= 0 || c.LatestTTL <= 0 || c.SequenceTTL <= 0 {
		return fmt.Errorf("ttls must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}
