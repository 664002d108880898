// Package database declares named database connections and how they are resolved.
package database

import (
	"context"

	dbconfig "github.com/tigerroll/statreg/pkg/batch/adapter/database/config"
	"gorm.io/gorm"
)

// DBConnection is an open, named database connection.
type DBConnection interface {
	// Name is the key of the connection under statreg.datasources.
	Name() string
	// Type is the database type (e.g., "postgres").
	Type() string
	// DB returns the GORM handle bound to this connection.
	DB() *gorm.DB
	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
	// Config returns the settings the connection was opened with.
	Config() dbconfig.DatabaseConfig
	Close() error
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	// Type returns the database type handled by this provider.
	Type() string
	// GetConnection returns the cached connection or opens a new one.
	GetConnection(name string) (DBConnection, error)
	// ForceReconnect closes and reopens the named connection.
	ForceReconnect(name string) (DBConnection, error)
	// CloseAll closes every connection opened by this provider.
	CloseAll() error
}

// DBConnectionResolver resolves a named connection, reconnecting when it is no longer healthy.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProviderGroup is the Fx value group collecting DBProvider implementations.
const DBProviderGroup = "db_providers"
