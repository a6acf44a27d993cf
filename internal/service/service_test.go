package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"storefront-api/internal/fulfillment"
	"storefront-api/internal/ledger"
	"storefront-api/internal/model"
	"storefront-api/internal/orders"
	"storefront-api/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeReconciler struct {
	pending atomic.Int32
	runs    atomic.Int32
}

func (f *fakeReconciler) ReconcilePending(context.Context) (fulfillment.ReconcileSummary, error) {
	f.runs.Add(1)
	n := int(f.pending.Swap(0))
	return fulfillment.ReconcileSummary{Committed: n}, nil
}

func (f *fakeReconciler) PendingCount() int { return int(f.pending.Load()) }

func TestReconcileScheduler_RunsOnlyWhenPending(t *testing.T) {
	r := &fakeReconciler{}
	s := NewReconcileScheduler(r, ReconcileConfig{Interval: 5 * time.Millisecond}, zaptest.NewLogger(t))
	s.Start()
	s.Start()
	defer s.Stop()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), r.runs.Load())

	r.pending.Store(2)
	assert.Eventually(t, func() bool { return r.runs.Load() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, r.PendingCount())
}

func TestReconcileScheduler_StopWithoutStart(t *testing.T) {
	s := NewReconcileScheduler(&fakeReconciler{}, ReconcileConfig{}, nil)
	s.Stop()
	s.Stop()
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("redis down") }

func newStorefront(t *testing.T, cache Pinger) *Storefront {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := repository.NewMemoryRangeStore()
	ctx := context.Background()
	_, err := store.AppendRow(ctx, "user", ledger.UserRow(model.User{ID: "u1", Balance: decimal.NewFromInt(100)}))
	require.NoError(t, err)
	_, err = store.AppendRow(ctx, "product", ledger.ProductRow(model.Product{
		ID: "P1", Name: "Tea", UnitPrice: decimal.NewFromInt(30), Quantity: 5,
	}))
	require.NoError(t, err)

	reader := ledger.NewReader(store, ledger.Tables{Users: "user", Products: "product"}, logger)
	recorder := orders.NewRecorder(store, nil, orders.Config{Table: "orders", Window: 10 * time.Minute}, logger)
	engine := fulfillment.NewEngine(store, reader, recorder, fulfillment.Config{MaxAttempts: 1}, nil, logger)
	return NewStorefront(engine, reader, recorder, store, cache, StorefrontConfig{StoreType: "memory"}, logger)
}

func TestStorefront_OrderFlow(t *testing.T) {
	s := newStorefront(t, nil)
	ctx := context.Background()

	res, err := s.PlaceOrder(ctx, fulfillment.Request{
		UserID:    "u1",
		LineItems: []model.LineItem{{ProductID: "P1", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "40", res.NewBalance.String())

	list, err := s.Orders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.OrderID, list[0].ID)

	p, err := s.Product(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Quantity)

	bal, err := s.Balance(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestStorefront_Ready(t *testing.T) {
	checks := newStorefront(t, nil).Ready(context.Background())
	require.Len(t, checks, 2)
	assert.Equal(t, "ok", checks[1].Status)

	checks = newStorefront(t, failingPinger{}).Ready(context.Background())
	require.Len(t, checks, 3)
	assert.Equal(t, "cache", checks[2].Name)
	assert.Equal(t, "error", checks[2].Status)
	assert.Equal(t, "redis down", checks[2].Error)
}
