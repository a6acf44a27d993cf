package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

var sqliteDialect = sqlDialect{
	name: "sqlite",
	schema: []string{`
	CREATE TABLE IF NOT EXISTS range_rows (
		tbl TEXT NOT NULL,
		row_pos INTEGER NOT NULL,
		cells TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (tbl, row_pos)
	)`},
}

// NewSQLiteRangeStore opens (or creates) a SQLite-backed range store.
// dbPath is the path to the database file (e.g., "./data/storefront.db").
func NewSQLiteRangeStore(dbPath string) (*SQLRangeStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store, err := newSQLRangeStore(db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
