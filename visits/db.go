// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"
)

const (
	// DriverDuckDB is the default store.
	DriverDuckDB = "duckdb"
	// DriverSQLite uses the pure go sqlite driver.
	DriverSQLite = "sqlite"
)

// sqlitePragmas makes writers wait for the lock instead of failing right away
// and takes the write lock at BEGIN so a transaction never upgrades mid-way.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

// OpenDatabase opens the store at path with the given driver and creates
// the schema. An empty duckdb path is an in-memory database.
func OpenDatabase(ctx context.Context, driver, path string) (*sql.DB, error) {
	dsn := path

	switch driver {
	case DriverDuckDB:
	case DriverSQLite:
		if path == "" {
			return nil, invalid("open database", "sqlite needs a file path")
		}

		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}

		dsn = path + sep + sqlitePragmas
	default:
		return nil, invalid("open database", "unknown driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("pinging %s database: %w", driver, err)
	}

	if err := NewSQLRepository(db).CreateSchema(ctx); err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}
