package cli

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML config file. Flags given on the command line
// win over file values.
type Config struct {
	Database       string        `yaml:"database"`
	PostgresURL    string        `yaml:"postgres_url"`
	RedisAddr      string        `yaml:"redis_addr"`
	UploadDelay    time.Duration `yaml:"upload_delay"`
	CompactRetries int           `yaml:"compact_retries"`
}

// LoadConfig reads a config file, rejecting unknown keys.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.UploadDelay < 0 {
		return nil, fmt.Errorf("config %s: upload_delay must not be negative", path)
	}
	if cfg.CompactRetries < 0 {
		return nil, fmt.Errorf("config %s: compact_retries must not be negative", path)
	}
	return &cfg, nil
}

// applyConfig copies file values into o for every flag the user did not set.
func (o *RootOptions) applyConfig(cfg *Config, changed func(name string) bool) {
	if cfg.Database != "" && !changed("db") {
		o.Database = cfg.Database
	}
	if cfg.PostgresURL != "" && !changed("postgres") {
		o.PostgresURL = cfg.PostgresURL
	}
	if cfg.RedisAddr != "" && !changed("redis") {
		o.RedisAddr = cfg.RedisAddr
	}
	o.UploadDelay = cfg.UploadDelay
	o.CompactRetries = cfg.CompactRetries
}
