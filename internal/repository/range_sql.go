package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// sqlDialect captures the statements that differ between SQL engines.
type sqlDialect struct {
	name   string
	schema []string
	// numbered placeholders ($1, $2...) instead of ?
	numbered bool
}

// SQLRangeStore implements RangeStore on a relational database.
// Each logical row is stored as a JSON array of cells keyed by (tbl, row_pos).
type SQLRangeStore struct {
	db      *sql.DB
	dialect sqlDialect
	// appends compute MAX(row_pos)+1, so they are serialized within the process
	mu sync.Mutex
}

func newSQLRangeStore(db *sql.DB, dialect sqlDialect) (*SQLRangeStore, error) {
	s := &SQLRangeStore{db: db, dialect: dialect}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLRangeStore) createTables() error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders for dialects that use numbered parameters.
func (s *SQLRangeStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ReadRange returns every row of table ordered by position.
func (s *SQLRangeStore) ReadRange(ctx context.Context, table string) ([]Row, error) {
	query := s.rebind(`SELECT row_pos, cells FROM range_rows WHERE tbl = ? ORDER BY row_pos`)

	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var pos int
		var raw string
		if err := rows.Scan(&pos, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan range %s: %w", table, err)
		}
		row, err := decodeCells(raw)
		if err != nil {
			return nil, fmt.Errorf("range %s row %d: %w", table, pos, err)
		}
		// keep index == position even if a position is missing
		for len(out) < pos {
			out = append(out, Row{})
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", table, err)
	}
	return out, nil
}

// WriteCell sets one cell of an existing row.
func (s *SQLRangeStore) WriteCell(ctx context.Context, table string, position, column int, value string) error {
	if err := validateCellTarget(position, column); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT cells FROM range_rows WHERE tbl = ? AND row_pos = ?`),
		table, position,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s!%d: %w", table, position, ErrPositionOutOfRange)
	}
	if err != nil {
		return fmt.Errorf("failed to load row %s!%d: %w", table, position, err)
	}

	row, err := decodeCells(raw)
	if err != nil {
		return fmt.Errorf("range %s row %d: %w", table, position, err)
	}
	encoded, err := encodeCells(row.withCell(column, value))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE range_rows SET cells = ?, updated_at = ? WHERE tbl = ? AND row_pos = ?`),
		encoded, time.Now().UTC(), table, position,
	); err != nil {
		return fmt.Errorf("failed to write cell %s!%d:%d: %w", table, position, column, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AppendRow adds a row at the end of table.
func (s *SQLRangeStore) AppendRow(ctx context.Context, table string, row Row) (int, error) {
	encoded, err := encodeCells(row)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		s.rebind(`SELECT COALESCE(MAX(row_pos) + 1, 0) FROM range_rows WHERE tbl = ?`),
		table,
	).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to compute next position for %s: %w", table, err)
	}

	if _, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO range_rows (tbl, row_pos, cells, updated_at) VALUES (?, ?, ?, ?)`),
		table, next, encoded, time.Now().UTC(),
	); err != nil {
		return 0, fmt.Errorf("failed to append row to %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

// Close closes the database connection.
func (s *SQLRangeStore) Close() error {
	return s.db.Close()
}

func encodeCells(row Row) (string, error) {
	if row == nil {
		row = Row{}
	}
	b, err := json.Marshal([]string(row))
	if err != nil {
		return "", fmt.Errorf("failed to encode cells: %w", err)
	}
	return string(b), nil
}

func decodeCells(raw string) (Row, error) {
	var cells []string
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, fmt.Errorf("failed to decode cells: %w", err)
	}
	return Row(cells), nil
}

// Ensure SQLRangeStore implements RangeStore
var _ RangeStore = (*SQLRangeStore)(nil)

// Dialect returns the SQL engine name backing this store.
func (s *SQLRangeStore) Dialect() string {
	return s.dialect.name
}
