package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	BusInProcess = "inprocess"
	BusPubSub    = "pubsub"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" env-default:"tallyhub"`
	HTTPPort    string `env:"HTTP_PORT" env-default:"8080"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	// PostgresDSN empty runs the engine on process-local storage.
	PostgresDSN string `env:"POSTGRES_DSN"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" env-default:"true"`
	// LocationsCSV seeds the registry when running without postgres.
	LocationsCSV string `env:"LOCATIONS_CSV"`

	// RedisAddr empty keeps the aggregate cache and relay lease in memory.
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" env-default:"0"`
	CacheTTL      time.Duration `env:"AGGREGATE_CACHE_TTL" env-default:"10m"`

	BusKind           string `env:"BUS_KIND" env-default:"inprocess"`
	PubSubProject     string `env:"PUBSUB_PROJECT_ID"`
	PubSubTopicPrefix string `env:"PUBSUB_TOPIC_PREFIX" env-default:"tallyhub-"`
	GCPCredentials    string `env:"GOOGLE_APPLICATION_CREDENTIALS"`

	// EvidenceBucket empty records photo references without checking them.
	EvidenceBucket string `env:"EVIDENCE_BUCKET"`

	TurnoutCeiling    float64 `env:"ANOMALY_TURNOUT_CEILING" env-default:"1.0"`
	HighTurnout       float64 `env:"ANOMALY_HIGH_TURNOUT" env-default:"0.95"`
	MinSiblings       int     `env:"ANOMALY_MIN_SIBLINGS" env-default:"3"`
	SigmaMultiple     float64 `env:"ANOMALY_SIGMA_MULTIPLE" env-default:"2.0"`
	ValidationPenalty int     `env:"VALIDATION_PENALTY" env-default:"20"`

	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" env-default:"100"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" env-default:"1s"`
	OutboxLeaseTTL     time.Duration `env:"OUTBOX_LEASE_TTL" env-default:"30s"`

	EnableOutboxRelay          bool          `env:"ENABLE_OUTBOX_RELAY" env-default:"true"`
	EnableInvalidationConsumer bool          `env:"ENABLE_INVALIDATION_CONSUMER" env-default:"true"`
	InvalidationDedupTTL       time.Duration `env:"INVALIDATION_DEDUP_TTL" env-default:"168h"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	cfg.BusKind = strings.ToLower(strings.TrimSpace(cfg.BusKind))
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.BusKind {
	case BusInProcess:
	case BusPubSub:
		if strings.TrimSpace(c.PubSubProject) == "" {
			return errors.New("PUBSUB_PROJECT_ID is required when BUS_KIND=pubsub")
		}
	default:
		return fmt.Errorf("unsupported BUS_KIND %q", c.BusKind)
	}
	if c.ValidationPenalty < 0 || c.ValidationPenalty > 100 {
		return fmt.Errorf("VALIDATION_PENALTY must be within 0..100, got %d", c.ValidationPenalty)
	}
	return nil
}
