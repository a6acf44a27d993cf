package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseRangeStore runs the behaviour every RangeStore backend must share.
func exerciseRangeStore(t *testing.T, s RangeStore) {
	t.Helper()
	ctx := context.Background()

	rows, err := s.ReadRange(ctx, "user")
	require.NoError(t, err)
	assert.Empty(t, rows)

	pos, err := s.AppendRow(ctx, "user", Row{"u1", "100"})
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	pos, err = s.AppendRow(ctx, "user", Row{"u2", "5.50"})
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	// tables are independent
	pos, err = s.AppendRow(ctx, "product", Row{"p1", "Tea", "30", "5"})
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	require.NoError(t, s.WriteCell(ctx, "user", 1, 1, "4.50"))

	rows, err = s.ReadRange(ctx, "user")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"u1", "100"}, rows[0])
	assert.Equal(t, Row{"u2", "4.50"}, rows[1])

	// writing past the last column pads the row
	require.NoError(t, s.WriteCell(ctx, "product", 0, 5, "tea.png"))
	rows, err = s.ReadRange(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, Row{"p1", "Tea", "30", "5", "", "tea.png"}, rows[0])

	err = s.WriteCell(ctx, "user", 7, 1, "0")
	assert.ErrorIs(t, err, ErrPositionOutOfRange)

	err = s.WriteCell(ctx, "user", -1, 1, "0")
	assert.ErrorIs(t, err, ErrPositionOutOfRange)
}

func TestMemoryRangeStore_Contract(t *testing.T) {
	exerciseRangeStore(t, NewMemoryRangeStore())
}

func TestSQLiteRangeStore_Contract(t *testing.T) {
	s, err := NewSQLiteRangeStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "sqlite", s.Dialect())
	exerciseRangeStore(t, s)
}

func TestSQLiteRangeStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	s, err := NewSQLiteRangeStore(path)
	require.NoError(t, err)
	_, err = s.AppendRow(ctx, "orders", Row{"o1", "u1"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteRangeStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	rows, err := reopened.ReadRange(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []Row{{"o1", "u1"}}, rows)
}

func TestMemoryRangeStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryRangeStore()
	ctx := context.Background()

	original := Row{"u1", "10"}
	_, err := s.AppendRow(ctx, "user", original)
	require.NoError(t, err)
	original[1] = "999"

	rows, err := s.ReadRange(ctx, "user")
	require.NoError(t, err)
	rows[0][1] = "888"

	again, err := s.ReadRange(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, "10", again[0].Cell(1))
}

func TestMemoryRangeStore_ConcurrentAppends(t *testing.T) {
	s := NewMemoryRangeStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	positions := make([]int, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pos, err := s.AppendRow(ctx, "orders", Row{"o"})
			assert.NoError(t, err)
			positions[i] = pos
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, p := range positions {
		assert.False(t, seen[p], "position %d assigned twice", p)
		seen[p] = true
	}
	rows, err := s.ReadRange(ctx, "orders")
	require.NoError(t, err)
	assert.Len(t, rows, 50)
}

func TestMemoryRangeStore_CanceledContext(t *testing.T) {
	s := NewMemoryRangeStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ReadRange(ctx, "user")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRow_Cell(t *testing.T) {
	r := Row{"a", "b"}
	assert.Equal(t, "b", r.Cell(1))
	assert.Equal(t, "", r.Cell(2))
	assert.Equal(t, "", r.Cell(-1))
}

func TestSQLRangeStore_RebindNumbered(t *testing.T) {
	s := &SQLRangeStore{dialect: postgresDialect}
	assert.Equal(t,
		"UPDATE range_rows SET cells = $1 WHERE tbl = $2 AND row_pos = $3",
		s.rebind("UPDATE range_rows SET cells = ? WHERE tbl = ? AND row_pos = ?"),
	)

	s = &SQLRangeStore{dialect: mysqlDialect}
	assert.Equal(t, "SELECT ? FROM t", s.rebind("SELECT ? FROM t"))
}
