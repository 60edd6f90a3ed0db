// Package postgres owns the shared pgx connection pool and the schema
// migrations for the instance, audit, document and user tables.
package postgres

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/signoff/internal/config"
)

// DB wraps the pool so it can be registered as a readiness dependency.
type DB struct {
	Pool *pgxpool.Pool
	dsn  string
}

// DSN resolves the connection string from the environment variable named
// in the configuration.
func DSN(cfg config.DatabaseConfig) (string, error) {
	dsn := os.Getenv(cfg.DSNEnv)
	if dsn == "" {
		return "", fmt.Errorf("postgres: environment variable %s is not set", cfg.DSNEnv)
	}
	return dsn, nil
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &DB{Pool: pool, dsn: dsn}, nil
}

// HealthCheck pings the database.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Migrate applies pending migrations to the connected database.
func (db *DB) Migrate() error {
	return Migrate(db.dsn)
}

// Close releases every pooled connection.
func (db *DB) Close() {
	db.Pool.Close()
}
