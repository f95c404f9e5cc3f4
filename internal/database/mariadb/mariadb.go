// Package mariadb reads class rosters from the student information system.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	dialTimeout  = 5 * time.Second
	queryTimeout = 30 * time.Second
)

// Pool is a small read-only connection pool to the student information system.
type Pool struct {
	db *sql.DB
}

// NewPool connects to the SIS database and verifies the connection.
func NewPool(dsn string) (*Pool, error) {
	cfg, err := sisConfig(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure SIS connection: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 2*dialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SIS database %s: %w", cfg.Addr, err)
	}
	return &Pool{db: db}, nil
}

// sisConfig parses a DSN and fills in timeouts the DSN leaves unset.
func sisConfig(dsn string) (*mysql.Config, error) {
	if dsn == "" {
		return nil, errors.New("SIS database DSN is required")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid SIS database DSN: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = dialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = queryTimeout
	}
	// Roster queries are single reads; skip the prepare round trip.
	cfg.InterpolateParams = true
	return cfg, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("closing SIS connection: %w", err)
	}
	return nil
}
