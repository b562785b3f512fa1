package factory

import (
	"fmt"

	"github.com/loykin/drover/internal/store"
	"github.com/loykin/drover/internal/store/postgres"
	"github.com/loykin/drover/internal/store/sqlite"
)

// New builds a store.Store from configuration.
// Supported types: "sqlite" (default), "postgres"/"postgresql".
func New(cfg store.Config) (store.Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		return sqlite.New(path)
	case "postgres", "postgresql":
		return postgres.New(postgresDSN(cfg))
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

func postgresDSN(cfg store.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	ssl := cfg.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Username, cfg.Password, host, port, cfg.Database, ssl)
}
