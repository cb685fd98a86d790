package core

import (
	"context"
	"eegrecords/internal/config"
	"eegrecords/internal/infra/persistence/memory"
	"eegrecords/internal/infra/persistence/postgres"
	"eegrecords/internal/infra/persistence/sqlite"
	"fmt"
	"io"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend from the storage configuration.
// Defaults to sqlite when the driver is unset. The returned closer releases
// the database handle and is a no-op for the memory driver.
func OpenPersistentStore(ctx context.Context, cfg config.Storage, engine *RulesEngine, opts ...memory.Option) (PersistentStore, io.Closer, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine, opts...), nopCloser{}, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, engine, opts...)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine, opts...)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
