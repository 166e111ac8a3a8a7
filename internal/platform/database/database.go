// Package database opens pooled PostgreSQL connections.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/coopfund/backoffice/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const driverName = "postgres"

// PingTimeout bounds the connectivity check performed by Open.
var PingTimeout = 5 * time.Second

// Open connects to dsn, applies the pool settings and verifies the
// connection with a ping.
func Open(ctx context.Context, dsn string, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	Configure(db, cfg)

	pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenLazy returns a pooled handle without pinging. The sync engine uses it
// for the cloud side, whose reachability is checked on every run.
func OpenLazy(dsn string, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	Configure(db, cfg)
	return db, nil
}

// Configure applies pool settings. Zero values keep the driver defaults.
func Configure(db *sqlx.DB, cfg config.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
}
