package fulfillment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront-api/internal/ledger"
	"storefront-api/internal/orders"
	"storefront-api/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errInjected = errors.New("injected store failure")

// faultStore wraps the memory store and fails selected calls.
type faultStore struct {
	*repository.MemoryRangeStore

	mu          sync.Mutex
	failReads   int
	failWrites  map[string]int
	applyFirst  bool // failed writes still land, as when only the response is lost
	failAppends map[string]int
	writes      int
}

func newFaultStore() *faultStore {
	return &faultStore{
		MemoryRangeStore: repository.NewMemoryRangeStore(),
		failWrites:       make(map[string]int),
		failAppends:      make(map[string]int),
	}
}

func (f *faultStore) ReadRange(ctx context.Context, table string) ([]repository.Row, error) {
	f.mu.Lock()
	fail := f.failReads > 0
	if fail {
		f.failReads--
	}
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.MemoryRangeStore.ReadRange(ctx, table)
}

func (f *faultStore) WriteCell(ctx context.Context, table string, position, column int, value string) error {
	f.mu.Lock()
	f.writes++
	fail := f.failWrites[table] > 0
	if fail {
		f.failWrites[table]--
	}
	apply := f.applyFirst
	f.mu.Unlock()

	if fail {
		if apply {
			_ = f.MemoryRangeStore.WriteCell(ctx, table, position, column, value)
		}
		return errInjected
	}
	return f.MemoryRangeStore.WriteCell(ctx, table, position, column, value)
}

func (f *faultStore) AppendRow(ctx context.Context, table string, row repository.Row) (int, error) {
	f.mu.Lock()
	fail := f.failAppends[table] > 0
	if fail {
		f.failAppends[table]--
	}
	f.mu.Unlock()
	if fail {
		return 0, errInjected
	}
	return f.MemoryRangeStore.AppendRow(ctx, table, row)
}

func (f *faultStore) set(fn func(f *faultStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *faultStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

const (
	usersTable    = "user"
	productsTable = "product"
	ordersTable   = "orders"
)

type testEnv struct {
	store    *faultStore
	reader   *ledger.Reader
	recorder *orders.Recorder
	engine   *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := newFaultStore()
	reader := ledger.NewReader(store, ledger.Tables{Users: usersTable, Products: productsTable}, logger)
	recorder := orders.NewRecorder(store, nil, orders.Config{Table: ordersTable, Window: 10 * time.Minute}, logger)
	engine := NewEngine(store, reader, recorder, Config{
		IdempotencyWindow: 10 * time.Minute,
		MaxAttempts:       3,
		RetryBackoff:      time.Millisecond,
		CommitTimeout:     5 * time.Second,
		ReconcileAttempts: 2,
	}, nil, logger)

	fixed := time.Now()
	engine.now = func() time.Time { return fixed }

	return &testEnv{store: store, reader: reader, recorder: recorder, engine: engine}
}

func (env *testEnv) addUser(t *testing.T, id, balance string) {
	t.Helper()
	_, err := env.store.MemoryRangeStore.AppendRow(context.Background(), usersTable, repository.Row{id, balance})
	require.NoError(t, err)
}

func (env *testEnv) addProduct(t *testing.T, id, price string, qty int) {
	t.Helper()
	row := repository.Row{id, "Product " + id, price, decimal.NewFromInt(int64(qty)).String()}
	_, err := env.store.MemoryRangeStore.AppendRow(context.Background(), productsTable, row)
	require.NoError(t, err)
}

func (env *testEnv) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	b, err := env.reader.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (env *testEnv) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := env.reader.Product(context.Background(), productID)
	require.NoError(t, err)
	return p.Quantity
}

func (env *testEnv) orderRows(t *testing.T) []repository.Row {
	t.Helper()
	rows, err := env.store.MemoryRangeStore.ReadRange(context.Background(), ordersTable)
	require.NoError(t, err)
	return rows
}
