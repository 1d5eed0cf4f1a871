package core

import (
	"context"
	"fmt"
	"os"

	"rentalcore/internal/infra/persistence/memory"
	"rentalcore/internal/infra/persistence/mongodb"
	"rentalcore/internal/infra/persistence/postgres"
	"rentalcore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageMongo    StorageDriver = "mongo"    // MongoDB server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	RENTALCORE_STORAGE_DRIVER: memory|sqlite|postgres|mongo (default sqlite)
//	RENTALCORE_SQLITE_PATH: path to sqlite file (default ./rentalcore.db)
//	RENTALCORE_POSTGRES_DSN: postgres DSN when driver=postgres
//	RENTALCORE_MONGO_URI, RENTALCORE_MONGO_DB: connection when driver=mongo
//
// The returned close function releases the backend's connections.
func OpenPersistentStore(ctx context.Context, engine *RulesEngine) (PersistentStore, func() error, error) {
	driver := os.Getenv("RENTALCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), func() error { return nil }, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(os.Getenv("RENTALCORE_SQLITE_PATH"), engine)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, os.Getenv("RENTALCORE_POSTGRES_DSN"), engine)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case StorageMongo:
		store, err := mongodb.NewStore(ctx, os.Getenv("RENTALCORE_MONGO_URI"), os.Getenv("RENTALCORE_MONGO_DB"), engine)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return store.Close(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
