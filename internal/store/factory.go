package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/landreg/housesync/internal/store/postgres"
)

// StoreType selects the backing provider.
type StoreType string

const (
	TypePostgres StoreType = "postgres"
	TypeMemory   StoreType = "memory"
)

func (t StoreType) String() string { return string(t) }

func (t StoreType) IsValid() bool {
	return t == TypePostgres || t == TypeMemory
}

// ProviderConfig carries everything a provider needs to come up.
type ProviderConfig struct {
	Type     StoreType
	DSN      string
	MaxConns int
}

// Factory creates store providers.
type Factory struct {
	logger *zap.Logger
}

func NewFactory(logger *zap.Logger) *Factory {
	return &Factory{logger: logger.Named("factory")}
}

func (f *Factory) CreateProvider(cfg ProviderConfig) (Store, error) {
	if !cfg.Type.IsValid() {
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}

	f.logger.Info("creating store provider", zap.String("store_type", cfg.Type.String()))

	switch cfg.Type {
	case TypePostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn is required for the postgres provider")
		}
		return postgres.NewProvider(cfg.DSN, cfg.MaxConns, f.logger)
	case TypeMemory:
		f.logger.Info("using in-memory store")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
