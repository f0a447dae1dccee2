//go:build !cgo_sqlite

package main

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// initDB opens dataSource with the pure-Go SQLite driver.
func initDB(dataSource string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSource)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection turns lock contention
	// between handlers into queueing instead of SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	return db, nil
}
