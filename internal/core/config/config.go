package config

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/steward-app/steward/internal/docstore"
	"github.com/steward-app/steward/internal/infra/postgres"
	redisclient "github.com/steward-app/steward/internal/infra/redis"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server  ServerConfig         `yaml:"server"`
	Logging LoggingConfig        `yaml:"logging"`
	Store   StoreConfig          `yaml:"store"`
	Cache   docstore.CacheConfig `yaml:"cache"`
	Retry   docstore.RetryConfig `yaml:"retry"`
	Limits  LimitsConfig         `yaml:"limits"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StoreConfig selects and configures the document-store backend.
type StoreConfig struct {
	Backend  string             `yaml:"backend"` // memory, redis, postgres
	Redis    redisclient.Config `yaml:"redis"`
	Postgres postgres.Config    `yaml:"postgres"`
}

// LimitsConfig bounds recommendation usage per landlord.
type LimitsConfig struct {
	RecommendationsPerHour int `yaml:"recommendations_per_hour"` // 0 = unlimited
}

// Validate checks the combined configuration.
func (c *AppConfig) Validate() error {
	if err := validation.ValidateStruct(&c.Store,
		validation.Field(&c.Store.Backend,
			validation.Required,
			validation.In(BackendMemory, BackendRedis, BackendPostgres)),
	); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	return c.Retry.Validate()
}
