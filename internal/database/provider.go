package database

import (
	"context"
	"errors"
)

var (
	postgresSessionReader func() SessionReader
	postgresSessionWriter func() SessionWriter
	postgresInitialized   bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(reader func() SessionReader, writer func() SessionWriter) {
	postgresSessionReader = reader
	postgresSessionWriter = writer
	postgresInitialized = true
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetSessionReader returns a SessionReader from the PostgreSQL backend
func GetSessionReader(ctx context.Context) (SessionReader, error) {
	if !postgresInitialized {
		return nil, errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresSessionReader == nil {
		return nil, errors.New("PostgreSQL session reader not registered")
	}
	return postgresSessionReader(), nil
}

// GetSessionWriter returns a SessionWriter from the PostgreSQL backend
func GetSessionWriter(ctx context.Context) (SessionWriter, error) {
	if !postgresInitialized {
		return nil, errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresSessionWriter == nil {
		return nil, errors.New("PostgreSQL session writer not registered")
	}
	return postgresSessionWriter(), nil
}
