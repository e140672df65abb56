// Package postgres backs the store with a PostgreSQL database through
// GORM. Conflict handling matches the engine's contract: every upsert
// is ON CONFLICT DO NOTHING and each record mutation runs in one
// transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/landreg/housesync/internal/model"
)

type Provider struct {
	gormDB *gorm.DB
	logger *zap.Logger
}

// NewProvider opens the connection, migrates the schema and tunes the
// pool for the batch fan-out (one logical connection per row
// transaction, checked out per unit of work).
func NewProvider(dsn string, maxConns int, logger *zap.Logger) (*Provider, error) {
	pgLogger := logger.Named("postgres")

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open GORM connection: %w", err)
	}
	if err := gormDB.AutoMigrate(
		&model.Setting{}, &model.Area{}, &model.Postcode{}, &model.House{}, &model.Sale{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns / 2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pgLogger.Info("postgres provider initialized", zap.Int("max_conns", maxConns))
	return &Provider{gormDB: gormDB, logger: pgLogger}, nil
}

func (p *Provider) Setting(ctx context.Context, name string) (string, bool, error) {
	var s model.Setting
	err := p.gormDB.WithContext(ctx).Where("name = ?", name).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %q: %w", name, err)
	}
	return s.Data, true, nil
}

func (p *Provider) SetSetting(ctx context.Context, name, data string) error {
	err := p.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"data"}),
	}).Create(&model.Setting{Name: name, Data: data}).Error
	if err != nil {
		return fmt.Errorf("write setting %q: %w", name, err)
	}
	return nil
}

func (p *Provider) Apply(ctx context.Context, mu model.RecordMutation) error {
	return p.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if mu.DeleteSaleTUI != "" {
			if err := tx.Where("tui = ?", mu.DeleteSaleTUI).Delete(&model.Sale{}).Error; err != nil {
				return fmt.Errorf("delete sale %q: %w", mu.DeleteSaleTUI, err)
			}
		}
		ignore := clause.OnConflict{DoNothing: true}
		if len(mu.Areas) > 0 {
			if err := tx.Clauses(ignore).Create(&mu.Areas).Error; err != nil {
				return fmt.Errorf("insert areas: %w", err)
			}
		}
		if mu.Postcode != nil {
			if err := tx.Clauses(ignore).Create(mu.Postcode).Error; err != nil {
				return fmt.Errorf("insert postcode %q: %w", mu.Postcode.Postcode, err)
			}
		}
		if mu.House != nil {
			if err := tx.Clauses(ignore).Create(mu.House).Error; err != nil {
				return fmt.Errorf("insert house %q: %w", mu.House.HouseID, err)
			}
		}
		if mu.Sale != nil {
			if err := tx.Clauses(ignore).Create(mu.Sale).Error; err != nil {
				return fmt.Errorf("insert sale %q: %w", mu.Sale.TUI, err)
			}
		}
		return nil
	})
}

func (p *Provider) AreaValues(ctx context.Context, areaType string) ([]string, error) {
	var values []string
	err := p.gormDB.WithContext(ctx).Model(&model.Area{}).
		Where("area_type = ? AND area <> ''", areaType).
		Order("area").
		Pluck("area", &values).Error
	if err != nil {
		return nil, fmt.Errorf("list areas of type %q: %w", areaType, err)
	}
	return values, nil
}
