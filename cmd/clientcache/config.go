package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Cache backends.
const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
)

// Config is the process configuration, read from the environment.
type Config struct {
	APIBaseURL  string        `env:"API_BASE_URL,required,notEmpty"`
	APIToken    string        `env:"API_TOKEN"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`

	HTTPPort  string `env:"HTTP_PORT" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	CacheBackend string `env:"CACHE_BACKEND" envDefault:"memory"`
	// StaleResponseGuard drops responses that finish after a newer load was applied.
	StaleResponseGuard bool `env:"STALE_RESPONSE_GUARD" envDefault:"false"`

	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RedisEntryTTL time.Duration `env:"REDIS_ENTRY_TTL" envDefault:"24h"`

	ProjectID                 string `env:"GCP_PROJECT_ID"`
	CredentialsFile           string `env:"GCP_CREDENTIALS_FILE"`
	FirestoreCollectionPrefix string `env:"FIRESTORE_COLLECTION_PREFIX" envDefault:"clientcache"`
	InvalidationSubscription  string `env:"INVALIDATION_SUBSCRIPTION"`

	ReceiptsBucket string `env:"RECEIPTS_BUCKET"`
	ReceiptsDir    string `env:"RECEIPTS_DIR" envDefault:"./receipts"`
}

// LoadConfig parses and validates the environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case BackendMemory, BackendRedis:
	case BackendFirestore:
		if c.ProjectID == "" {
			return errors.New("GCP_PROJECT_ID is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	if (c.InvalidationSubscription != "" || c.ReceiptsBucket != "") && c.ProjectID == "" {
		return errors.New("GCP_PROJECT_ID is required for Pub/Sub invalidation and GCS receipts")
	}
	return nil
}
