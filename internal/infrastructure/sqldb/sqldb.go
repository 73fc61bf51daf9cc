// Package sqldb opens the relational database used for conversations and usage.
package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/myworkflows/chat-service/internal/domain/models"
)

// Config holds relational database connection settings.
type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Client wraps a gorm handle with lifecycle helpers.
type Client struct {
	db *gorm.DB
}

// NewClient opens a Postgres connection pool and verifies it.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         NewLogger(log.Logger),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	c := &Client{db: db}
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// NewClientFromDB wraps an already opened gorm handle.
func NewClientFromDB(db *gorm.DB) *Client {
	return &Client{db: db}
}

// DB returns the gorm handle.
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Migrate creates or updates the tables owned or read by this service.
func (c *Client) Migrate(ctx context.Context) error {
	return Migrate(c.db.WithContext(ctx))
}

// Ping verifies the database connection.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}

// Migrate runs gorm auto-migrations for every model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Conversation{},
		&models.Message{},
		&models.Profile{},
		&models.PlanConfig{},
		&models.UsageRecord{},
		&models.N8NConnection{},
		&models.Workflow{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// NewLogger returns a gorm logger that writes through zerolog at warn level.
func NewLogger(logger zerolog.Logger) gormlogger.Interface {
	return gormlogger.New(
		zerologWriter{logger: logger.With().Str("component", "gorm").Logger()},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

type zerologWriter struct {
	logger zerolog.Logger
}

func (w zerologWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn().Msgf(format, args...)
}
