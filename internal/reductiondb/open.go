package reductiondb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config describes how to reach the autoreduction database.
type Config struct {
	Driver       string        `yaml:"driver"`
	URL          string        `yaml:"url"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 5 * time.Second
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 4
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver: %s (must be '%s' or '%s')", c.Driver, DriverPostgres, DriverSQLite)
	}
	if c.URL == "" {
		return errors.New("database url is required")
	}
	if c.PingTimeout <= 0 {
		return errors.New("database ping_timeout must be positive")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("database max_open_conns must be >= 1")
	}
	return nil
}

// Open connects to the database and verifies it answers within PingTimeout.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	driverName := "pgx"
	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == DriverSQLite {
		driverName = "sqlite"
		// SQLite allows a single writer; in-memory databases are per connection.
		maxOpen = 1
	}

	db, err := sql.Open(driverName, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(maxOpen)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	return db, nil
}
