package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrMalformedRow     = errors.New("malformed row")
)

// ProductNotFoundError names the first requested product missing from the catalog.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %q not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// MalformedRowError reports a cell that could not be parsed.
type MalformedRowError struct {
	Table    string
	Position int
	Err      error
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Table, e.Position, e.Err)
}

func (e *MalformedRowError) Unwrap() error { return e.Err }

func (e *MalformedRowError) Is(target error) bool {
	return target == ErrMalformedRow
}

func unavailable(op, table string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStoreUnavailable, op, table, err)
}
