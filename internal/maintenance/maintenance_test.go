package maintenance

import (
	"context"
	"strings"
	"testing"
	"time"

	"storefront-api/internal/ledger"
	"storefront-api/internal/model"
	"storefront-api/internal/orders"
	"storefront-api/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var tables = ledger.Tables{Users: "user", Products: "product"}

const seedYAML = `
users:
  - id: alice
    balance: "100.00"
  - id: bob
products:
  - id: P1
    name: Tea
    unitPrice: "12.50"
    quantity: 4
    imageUrl: https://cdn.example.com/tea.png
  - id: P2
    name: Cup
    unitPrice: "8"
    quantity: 0
`

func TestParseSeed(t *testing.T) {
	users, products, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].ID)
	assert.True(t, users[0].Balance.Equal(decimal.NewFromInt(100)))
	assert.True(t, users[1].Balance.IsZero())

	require.Len(t, products, 2)
	assert.Equal(t, "12.5", products[0].UnitPrice.String())
	assert.Equal(t, 4, products[0].Quantity)
	assert.Equal(t, "https://cdn.example.com/tea.png", products[0].ImageURL)
}

func TestParseSeed_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "users:\n  - id: a\n    credit: 5\n", "failed to parse"},
		{"missing id", "users:\n  - balance: \"5\"\n", "id is required"},
		{"duplicate user", "users:\n  - id: a\n  - id: a\n", "duplicate id"},
		{"negative balance", "users:\n  - id: a\n    balance: \"-1\"\n", "must not be negative"},
		{"bad price", "products:\n  - id: P1\n    unitPrice: cheap\n", "invalid unitPrice"},
		{"negative quantity", "products:\n  - id: P1\n    unitPrice: \"1\"\n    quantity: -2\n", "quantity must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseSeed(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseSeed_Empty(t *testing.T) {
	users, products, err := ParseSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Empty(t, products)
}

func TestSeeder_AppendsOnlyMissingRows(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRangeStore()
	_, err := store.AppendRow(ctx, "user", ledger.UserRow(model.User{ID: "alice", Balance: decimal.NewFromInt(7)}))
	require.NoError(t, err)

	users, products, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	s := NewSeeder(store, tables, zaptest.NewLogger(t))
	report, err := s.Seed(ctx, users, products)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{UsersAdded: 1, UsersSkipped: 1, ProductsAdded: 2}, report)

	// existing balance is untouched
	reader := ledger.NewReader(store, tables, nil)
	bal, err := reader.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(7)))

	// a second run is a no-op
	report, err = s.Seed(ctx, users, products)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{UsersSkipped: 2, ProductsSkipped: 2}, report)

	rows, err := store.ReadRange(ctx, "product")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestAuditor_CleanStore(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRangeStore()
	_, err := store.AppendRow(ctx, "user", ledger.UserRow(model.User{ID: "alice", Balance: decimal.NewFromInt(10)}))
	require.NoError(t, err)
	_, err = store.AppendRow(ctx, "product", ledger.ProductRow(model.Product{ID: "P1", Name: "Tea", UnitPrice: decimal.NewFromInt(2), Quantity: 1}))
	require.NoError(t, err)
	appendOrder(t, store, model.Order{
		ID: "o1", UserID: "alice", IdempotencyKey: "k1",
		Lines:     []model.OrderLine{{ProductID: "P1", Quantity: 2, UnitPrice: decimal.NewFromInt(2)}},
		TotalCost: decimal.NewFromInt(4),
	})

	report, err := NewAuditor(store, tables, "orders", zaptest.NewLogger(t)).Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean(), "unexpected findings: %+v", report.Findings)
	assert.Equal(t, 1, report.Users)
	assert.Equal(t, 1, report.Products)
	assert.Equal(t, 1, report.Orders)
}

func TestAuditor_ReportsFindings(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRangeStore()

	for _, row := range []repository.Row{
		{"alice", "10"},
		{"bob", "-5"},
		{"carol", "lots"},
		{"alice", "99"},
	} {
		_, err := store.AppendRow(ctx, "user", row)
		require.NoError(t, err)
	}
	for _, row := range []repository.Row{
		{"P1", "Tea", "2", "1"},
		{"P2", "Cup", "3", "-1"},
		{"P3", "Pot", "", "1"},
	} {
		_, err := store.AppendRow(ctx, "product", row)
		require.NoError(t, err)
	}

	line := []model.OrderLine{{ProductID: "P1", Quantity: 1, UnitPrice: decimal.NewFromInt(2)}}
	appendOrder(t, store, model.Order{ID: "o1", UserID: "alice", IdempotencyKey: "k1", Lines: line, TotalCost: decimal.NewFromInt(2)})
	appendOrder(t, store, model.Order{ID: "o2", UserID: "alice", IdempotencyKey: "k1", Lines: line, TotalCost: decimal.NewFromInt(2)})
	appendOrder(t, store, model.Order{ID: "o3", UserID: "alice", Lines: line, TotalCost: decimal.NewFromInt(5)})
	appendOrder(t, store, model.Order{ID: "o4", UserID: "zed", Lines: line, TotalCost: decimal.NewFromInt(2)})
	_, err := store.AppendRow(ctx, "orders", repository.Row{"o5", "alice", "yesterday"})
	require.NoError(t, err)

	report, err := NewAuditor(store, tables, "orders", nil).Run(ctx)
	require.NoError(t, err)

	got := make(map[string]FindingKind)
	for _, f := range report.Findings {
		got[f.Table+":"+f.ID+":"+string(f.Kind)] = f.Kind
	}

	for _, want := range []string{
		"user:bob:negative_value",
		"user:carol:malformed_row",
		"user:alice:duplicate_id",
		"product:P2:negative_value",
		"product:P3:malformed_row",
		"orders:o2:duplicate_idempotency_key",
		"orders:o3:total_mismatch",
		"orders:o4:unknown_user",
		"orders:o5:malformed_row",
	} {
		assert.Contains(t, got, want)
	}
	assert.Len(t, report.Findings, 9)
	assert.False(t, report.Clean())

	// ordered by table then position
	assert.Equal(t, "orders", report.Findings[0].Table)
	assert.Equal(t, "user", report.Findings[len(report.Findings)-1].Table)
}

func appendOrder(t *testing.T, store repository.RangeStore, o model.Order) {
	t.Helper()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	}
	if o.Status == "" {
		o.Status = model.OrderStatusPending
	}
	row, err := orders.EncodeRow(o)
	require.NoError(t, err)
	_, err = store.AppendRow(context.Background(), "orders", row)
	require.NoError(t, err)
}
