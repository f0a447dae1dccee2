// Package store persists named text chains in a SQL database.
//
// The schema keeps one shared vocabulary and prefix table for all models and
// one row per model link in markov_chains. It is written for SQLite and works
// with both github.com/mattn/go-sqlite3 and modernc.org/sqlite; the caller
// opens the database and picks the driver.
package store
