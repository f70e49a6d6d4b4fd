// Package postgres opens the database pool, applies embedded migrations, runs
// transactions and classifies driver errors into sentinel facts.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"bayanat/internal/platform/config"
)

// DriverName is the database/sql driver registered by pgx.
const DriverName = "pgx"

// Open connects to PostgreSQL and configures the pool. Statements are described on
// every execution instead of being cached, so dynamic-field DDL never leaves a pooled
// connection holding a plan for the old row shape.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	connConfig, err := pgx.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	connConfig.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec
	db := sqlx.NewDb(stdlib.OpenDB(*connConfig), DriverName)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// Close closes the pool and logs failures.
func Close(db *sqlx.DB, log *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		log.Error("error closing database connection", "error", err)
	}
}
