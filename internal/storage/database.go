package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/zzjunior/whatsapp-checker-api/internal/app/config"
	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

// Database wraps the database connection and provides additional
// functionality.
type Database struct {
	*bun.DB
}

// New creates a new database connection for the configured driver.
func New(cfg config.DatabaseConfig) (*Database, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
	)

	switch cfg.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		var err error
		sqldb, err = sql.Open(sqliteshim.ShimName, cfg.SQLitePath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		dsn := fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
		)
		sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("driver", cfg.Driver).
		Msg("Database connected successfully")

	return &Database{DB: db}, nil
}

// Migrate creates all tables that do not exist yet.
func (d *Database) Migrate(ctx context.Context) error {
	log.Info().Msg("Starting database migration")

	models := []any{
		(*domain.User)(nil),
		(*domain.Instance)(nil),
		(*domain.APIToken)(nil),
		(*domain.PhoneCache)(nil),
		(*domain.VerificationLog)(nil),
	}

	for _, model := range models {
		if _, err := d.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	log.Info().Msg("Database migration completed successfully")
	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	log.Info().Msg("Closing database connection")
	return d.DB.Close()
}

// Health checks the database health.
func (d *Database) Health(ctx context.Context) error {
	return d.PingContext(ctx)
}
