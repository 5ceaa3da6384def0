package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/steward-app/steward/internal/docstore"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg, []byte(expandedData))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// toggle distinguishes an absent enabled key from an explicit false.
type toggle struct {
	Enabled *bool `yaml:"enabled"`
}

func applyDefaults(cfg *AppConfig, raw []byte) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendMemory
	}

	// Cache and retry are on by default; only an explicit enabled: false
	// in the file turns them off.
	var toggles struct {
		Cache toggle `yaml:"cache"`
		Retry toggle `yaml:"retry"`
	}
	_ = yaml.Unmarshal(raw, &toggles)
	if toggles.Cache.Enabled == nil {
		cfg.Cache.Enabled = true
	}
	if toggles.Retry.Enabled == nil {
		cfg.Retry.Enabled = true
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = docstore.DefaultCacheConfig.TTL
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = docstore.DefaultCacheConfig.MaxSize
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = docstore.DefaultRetryConfig.MaxAttempts
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = docstore.DefaultRetryConfig.BaseDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = docstore.DefaultRetryConfig.MaxDelay
	}
	if cfg.Retry.BackoffFactor == 0 {
		cfg.Retry.BackoffFactor = docstore.DefaultRetryConfig.BackoffFactor
	}
}
