// Package postgres implements the storage.Backend interface on PostgreSQL.
// It connects lazily in Init and delegates all recording to the GORM backend.
package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/vectorwar/arena/internal/config"
	"github.com/vectorwar/arena/internal/database"
	gormstorage "github.com/vectorwar/arena/internal/storage/gorm"
	"gorm.io/gorm"
)

// maxOpenConns caps the pool; the writer is a single goroutine plus the
// synchronous session inserts.
const maxOpenConns = 10

// Config holds configuration for the Postgres storage backend.
type Config struct {
	DB            config.DBConfig
	FlushInterval time.Duration
}

// Backend wraps the GORM backend with a Postgres connection.
type Backend struct {
	*gormstorage.Backend
	cfg    Config
	logger *slog.Logger
	open   func(config.DBConfig) (*gorm.DB, error)
}

// New creates a new Postgres storage backend. No connection is made until Init.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{cfg: cfg, logger: logger, open: database.GetPostgresDB}
}

// Init connects, validates the connection and initializes the embedded GORM backend.
func (b *Backend) Init() error {
	db, err := b.open(b.cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		Logger:        b.logger,
		FlushInterval: b.cfg.FlushInterval,
	})
	b.logger.Info("Connected to database", "host", b.cfg.DB.Host, "database", b.cfg.DB.Database)
	return b.Backend.Init()
}

// Close closes the embedded GORM backend, if Init got that far.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
