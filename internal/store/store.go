// Package store provides the relational persistence layer: connection
// management, migrations with reference-data seeding, chunked bulk reads
// and conflict-updating bulk writes used by the reconciliation engine.
package store

import (
	"fmt"
	"time"

	"order-reconciliation-service/internal/formula"
	"order-reconciliation-service/internal/models"
	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultChunkSize bounds bulk reads and writes when the configuration
// does not override it.
const DefaultChunkSize = 2000

// Config holds database connection options.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectAttempts int
	ChunkSize       int
}

// DefaultConfig returns a default store configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConns:    50,
		MaxIdleConns:    25,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
		ConnectAttempts: 5,
		ChunkSize:       DefaultChunkSize,
	}
}

// Validate validates the store configuration.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return apperrors.ConfigError(apperrors.CodeMissingConfig, "database DSN is required")
	}
	if c.ChunkSize <= 0 {
		return apperrors.ConfigError(apperrors.CodeInvalidConfig,
			fmt.Sprintf("chunk size must be positive, got %d", c.ChunkSize))
	}
	return nil
}

// Store wraps the gorm handle with the chunking and logging conventions the
// engine relies on.
type Store struct {
	db        *gorm.DB
	chunkSize int
	log       logger.Logger
}

// Open connects to MySQL with bounded retries and linear backoff, then
// tunes the connection pool.
func Open(cfg *Config, log logger.Logger) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("store")

	var db *gorm.DB
	var err error
	for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
		db, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			break
		}
		log.WithFields(logger.Fields{"attempt": attempt}).
			WithError(err).Warn("database connection failed")
		if attempt < cfg.ConnectAttempts {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	if err != nil {
		return nil, apperrors.StoreError(apperrors.CodeConnectionFailed, "connect", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperrors.StoreError(apperrors.CodeConnectionFailed, "pool", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return New(db, cfg.ChunkSize, log), nil
}

// New wraps an existing gorm handle. Used by Open and by tests that supply
// their own database.
func New(db *gorm.DB, chunkSize int, log logger.Logger) *Store {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if log == nil {
		log = logger.GetGlobalLogger().WithComponent("store")
	}
	return &Store{db: db, chunkSize: chunkSize, log: log}
}

// DB exposes the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ChunkSize returns the configured bulk chunk size.
func (s *Store) ChunkSize() int {
	return s.chunkSize
}

// Migrate creates or updates every table and seeds the static reference
// data (field mappings and formula definitions) when the tables are empty.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(models.AllModels()...); err != nil {
		return apperrors.StoreError(apperrors.CodeBatchWriteFailed, "migrate", err)
	}
	if err := s.seedFieldMappings(); err != nil {
		return err
	}
	return s.seedFormulaDefinitions()
}

func (s *Store) seedFieldMappings() error {
	var count int64
	if err := s.db.Model(&models.FieldMapping{}).Count(&count).Error; err != nil {
		return apperrors.StoreError(apperrors.CodeReadFailed, "count field mappings", err)
	}
	if count > 0 {
		return nil
	}

	mappings := formula.DefaultFieldMappings()
	if err := s.db.Create(&mappings).Error; err != nil {
		return apperrors.StoreError(apperrors.CodeBatchWriteFailed, "seed field mappings", err)
	}
	s.log.WithFields(logger.Fields{"rows": len(mappings)}).Info("seeded field mappings")
	return nil
}

func (s *Store) seedFormulaDefinitions() error {
	var count int64
	if err := s.db.Model(&models.FormulaDefinition{}).Count(&count).Error; err != nil {
		return apperrors.StoreError(apperrors.CodeReadFailed, "count formula definitions", err)
	}
	if count > 0 {
		return nil
	}

	var rows []models.FormulaDefinition
	for _, source := range []models.DataSource{models.SourcePOS, models.SourceZomato} {
		for i, def := range formula.DefaultDefinitions(source) {
			rows = append(rows, models.FormulaDefinition{
				DataSource: source,
				Name:       def.Name,
				Expression: def.Expression,
				Position:   i,
			})
		}
	}
	if err := s.db.Create(&rows).Error; err != nil {
		return apperrors.StoreError(apperrors.CodeBatchWriteFailed, "seed formula definitions", err)
	}
	s.log.WithFields(logger.Fields{"rows": len(rows)}).Info("seeded formula definitions")
	return nil
}
