package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var mysqlDialect = sqlDialect{
	name: "mysql",
	schema: []string{`
	CREATE TABLE IF NOT EXISTS range_rows (
		tbl VARCHAR(64) NOT NULL,
		row_pos INT NOT NULL,
		cells MEDIUMTEXT NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		PRIMARY KEY (tbl, row_pos)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
}

// NewMySQLRangeStore opens a MySQL-backed range store.
// dsn format: "user:password@tcp(host:port)/dbname?parseTime=true"
func NewMySQLRangeStore(dsn string) (*SQLRangeStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	store, err := newSQLRangeStore(db, mysqlDialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
