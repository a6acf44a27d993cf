package repository

import (
	"context"
	"errors"
)

// Row is one row of a logical table, as an ordered list of string cells.
type Row []string

// Cell returns the cell at column i, or "" if the row is shorter.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

// Clone returns a copy that does not share storage with r.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// withCell returns a copy of r with column set to value, padding with empty cells.
func (r Row) withCell(column int, value string) Row {
	n := len(r)
	if column >= n {
		n = column + 1
	}
	out := make(Row, n)
	copy(out, r)
	out[column] = value
	return out
}

// ErrPositionOutOfRange is returned when a write targets a row that does not exist.
var ErrPositionOutOfRange = errors.New("row position out of range")

// RangeStore is the backing system of record: named tables of positioned rows.
//
// It offers no transactions and no compare-and-swap. Positions are 0-based
// and stable because tables are append-only. Callers that need atomicity
// across rows must serialize writes themselves.
type RangeStore interface {
	// ReadRange returns every row of table ordered by position.
	// The index of a row in the result is its position.
	ReadRange(ctx context.Context, table string) ([]Row, error)

	// WriteCell sets one cell of an existing row.
	WriteCell(ctx context.Context, table string, position, column int, value string) error

	// AppendRow adds a row at the end of table and returns its position.
	AppendRow(ctx context.Context, table string, row Row) (int, error)

	// Close releases the underlying connection.
	Close() error
}

func validateCellTarget(position, column int) error {
	if position < 0 {
		return ErrPositionOutOfRange
	}
	if column < 0 {
		return errors.New("column must not be negative")
	}
	return nil
}
