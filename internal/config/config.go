// Package config provides configuration loading for the UtilSign service.
//
// Configuration comes from an optional YAML file with environment variable
// overrides on top; defaults are applied first so a minimal file (or no file
// at all plus a handful of env vars) is enough to run.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	// Addr is the listen address, e.g. ":8084".
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	// URL is the Postgres DSN of the hosted database.
	URL string `yaml:"url"`
}

// StorageConfig points at the hosted object store holding document PDFs.
type StorageConfig struct {
	// BaseURL is the storage API root, e.g. "https://acme.storage.local/storage/v1".
	BaseURL string `yaml:"base_url"`
	// Bucket is the bucket documents live in.
	Bucket string `yaml:"bucket"`
	// APIKey is the service key sent as a bearer token.
	APIKey string `yaml:"api_key"`
}

type AuthConfig struct {
	// JWTSecret is the HS256 secret shared with the external auth service.
	JWTSecret string `yaml:"jwt_secret"`
}

type LogConfig struct {
	// Environment selects the zap profile ("production" or "development").
	Environment string `yaml:"environment"`
	Level       string `yaml:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8084"},
		Storage: StorageConfig{Bucket: "documents"},
		Log:     LogConfig{Environment: "production", Level: "info"},
	}
}

// Load reads the config file at path (skipped when path is empty or the file
// does not exist), then applies env overrides. Callers that need the full
// config call Validate; subcommands that use a slice of it check their own
// fields.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env-only config
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Server.Addr, "UTILSIGN_ADDR")
	setFromEnv(&c.Database.URL, "DATABASE_URL")
	setFromEnv(&c.Storage.BaseURL, "STORAGE_BASE_URL")
	setFromEnv(&c.Storage.Bucket, "STORAGE_BUCKET")
	setFromEnv(&c.Storage.APIKey, "STORAGE_API_KEY")
	setFromEnv(&c.Auth.JWTSecret, "JWT_SECRET")
	setFromEnv(&c.Log.Environment, "LOG_ENVIRONMENT")
	setFromEnv(&c.Log.Level, "LOG_LEVEL")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Storage.BaseURL == "" {
		return fmt.Errorf("storage.base_url is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return nil
}
