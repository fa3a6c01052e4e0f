package store

import (
	"fmt"
	"path/filepath"
)

// Supported drivers.
const (
	DriverJSON     = "json"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and locates a backend.
type Config struct {
	Driver string
	// Path is the data directory for json and the database file for sqlite.
	Path string
	// DSN is the connection URL for postgres.
	DSN string
}

// Open returns the backend named by cfg.Driver.
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverJSON, "":
		return OpenDocumentStore(cfg.Path)
	case DriverSQLite:
		path := cfg.Path
		if path != ":memory:" && filepath.Ext(path) == "" {
			path = filepath.Join(path, "guildbot.db")
		}
		return OpenSQLite(path)
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn")
		}
		return OpenPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
