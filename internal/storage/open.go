package storage

import (
	"context"
	"fmt"
)

// Supported STORAGE_DRIVER values
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Open returns the MentionStore selected by driver.
func Open(ctx context.Context, driver, sqlitePath, postgresURL string) (MentionStore, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLite(sqlitePath)
	case DriverPostgres:
		if postgresURL == "" {
			return nil, fmt.Errorf("POSTGRES_URL is required for the postgres driver")
		}
		return NewPostgres(ctx, postgresURL)
	case DriverMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}
