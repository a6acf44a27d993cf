package repository

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRangeStore implements RangeStore in process memory.
// Use this for development/testing; nothing survives a restart.
type MemoryRangeStore struct {
	mu     sync.RWMutex
	tables map[string][]Row
}

// NewMemoryRangeStore creates an empty in-memory range store.
func NewMemoryRangeStore() *MemoryRangeStore {
	return &MemoryRangeStore{tables: make(map[string][]Row)}
}

// ReadRange returns copies of all rows in table.
func (s *MemoryRangeStore) ReadRange(ctx context.Context, table string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.tables[table]
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out, nil
}

// WriteCell sets one cell of an existing row.
func (s *MemoryRangeStore) WriteCell(ctx context.Context, table string, position, column int, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateCellTarget(position, column); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tables[table]
	if position >= len(rows) {
		return fmt.Errorf("%s!%d: %w", table, position, ErrPositionOutOfRange)
	}
	rows[position] = rows[position].withCell(column, value)
	return nil
}

// AppendRow adds a row at the end of table.
func (s *MemoryRangeStore) AppendRow(ctx context.Context, table string, row Row) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables[table] = append(s.tables[table], row.Clone())
	return len(s.tables[table]) - 1, nil
}

// Close is a no-op for the memory store.
func (s *MemoryRangeStore) Close() error {
	return nil
}

// Ensure MemoryRangeStore implements RangeStore
var _ RangeStore = (*MemoryRangeStore)(nil)
