// Package config resolves the engine's configuration. Each key is
// looked up with a fixed precedence: environment variable, then a
// file-based secret under the secrets dir, then the default. A key
// with no value at any layer is fatal at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// ErrMissing is returned when a required key has neither an
// environment variable nor a secret file.
var ErrMissing = errors.New("required configuration is not defined")

// DefaultFeedURL is the Land Registry monthly price-paid update file.
const DefaultFeedURL = "http://prod.publicdata.landregistry.gov.uk.s3-website-eu-west-1.amazonaws.com/pp-monthly-update.txt"

const defaultSecretsDir = "/run/secrets"

// SinkType selects where reconciled records go.
type SinkType string

const (
	SinkStore SinkType = "store"
	SinkKafka SinkType = "kafka"
)

type Config struct {
	Environment string
	LogLevel    string
	Port        string

	FeedURL      string
	AnalyticsURL string

	StoreType        string
	DBName           string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	DBMaxConns       int

	Sink           SinkType
	KafkaBootstrap string
	KafkaTopic     string

	BatchSize        int
	RunInterval      time.Duration
	LeaseTTL         time.Duration
	PollInterval     time.Duration
	PollErrorBackoff time.Duration
	PollMaxAttempts  uint
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgresql://%s:%s@%s/%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.DBName)
}

// Loader resolves configuration values. The secrets dir is a field so
// tests can point it at a temp directory.
type Loader struct {
	SecretsDir string
	logger     *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{
		SecretsDir: defaultSecretsDir,
		logger:     logger.Named("config"),
	}
}

// Load resolves the full configuration with the default secrets dir.
func Load(logger *zap.Logger) (*Config, error) {
	return NewLoader(logger).Load()
}

func (l *Loader) Load() (*Config, error) {
	// A .env file, when present, just populates the environment layer.
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	cfg.Environment = l.optional("ENVIRONMENT", "production")
	cfg.LogLevel = l.optional("LOG_LEVEL", "info")
	cfg.Port = l.optional("PORT", "8080")
	cfg.FeedURL = l.optional("FEED_URL", DefaultFeedURL)
	cfg.AnalyticsURL = l.optional("ANALYTICS_URL", "http://analytics:8080")

	cfg.StoreType = l.optional("STORE", "postgres")
	if cfg.StoreType == "postgres" {
		cfg.DBName = l.optional("DBNAME", "house_data")
		if cfg.PostgresUser, err = l.required("POSTGRES_USER"); err != nil {
			return nil, err
		}
		if cfg.PostgresPassword, err = l.required("POSTGRES_PASSWORD"); err != nil {
			return nil, err
		}
		if cfg.PostgresHost, err = l.required("POSTGRES_HOST"); err != nil {
			return nil, err
		}
	}

	cfg.Sink = SinkType(l.optional("SINK", string(SinkStore)))
	if cfg.Sink != SinkStore && cfg.Sink != SinkKafka {
		return nil, fmt.Errorf("unsupported sink type: %s", cfg.Sink)
	}
	if cfg.Sink == SinkKafka {
		if cfg.KafkaBootstrap, err = l.required("KAFKA"); err != nil {
			return nil, err
		}
		cfg.KafkaTopic = l.optional("KAFKA_TOPIC", "new_sales")
	}

	if cfg.BatchSize, err = l.optionalInt("BATCH_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.DBMaxConns, err = l.optionalInt("DB_MAX_CONNS", 100); err != nil {
		return nil, err
	}
	if cfg.RunInterval, err = l.optionalDuration("RUN_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LeaseTTL, err = l.optionalDuration("LEASE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = l.optionalDuration("POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollErrorBackoff, err = l.optionalDuration("POLL_ERROR_BACKOFF", 10*time.Second); err != nil {
		return nil, err
	}
	attempts, err := l.optionalInt("POLL_MAX_ATTEMPTS", 720)
	if err != nil {
		return nil, err
	}
	cfg.PollMaxAttempts = uint(attempts)

	l.logger.Info("configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.String("store", cfg.StoreType),
		zap.String("sink", string(cfg.Sink)),
		zap.Int("batch_size", cfg.BatchSize),
	)
	return cfg, nil
}

// lookup walks the precedence layers: env var, then secret file.
func (l *Loader) lookup(name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	b, err := os.ReadFile(filepath.Join(l.SecretsDir, name))
	if err == nil {
		return strings.TrimRight(string(b), "\n"), true
	}
	return "", false
}

func (l *Loader) optional(name, def string) string {
	if v, ok := l.lookup(name); ok {
		return v
	}
	return def
}

func (l *Loader) required(name string) (string, error) {
	if v, ok := l.lookup(name); ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrMissing, name)
}

func (l *Loader) optionalInt(name string, def int) (int, error) {
	v, ok := l.lookup(name)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", name, err)
	}
	return n, nil
}

func (l *Loader) optionalDuration(name string, def time.Duration) (time.Duration, error) {
	v, ok := l.lookup(name)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", name, err)
	}
	return d, nil
}
