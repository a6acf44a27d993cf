package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"storefront-api/internal/maintenance"
	"storefront-api/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedThenAudit(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "store.db")
	seedPath := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`
users:
  - id: alice
    balance: "50"
products:
  - id: P1
    name: Tea
    unitPrice: "2.50"
    quantity: 10
`), 0o600))

	out, err := run(t, "seed", seedPath, "--store-type", "sqlite", "--store-path", dbPath, "--format", "json")
	require.NoError(t, err)

	var report maintenance.SeedReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, maintenance.SeedReport{UsersAdded: 1, ProductsAdded: 1}, report)

	out, err = run(t, "seed", seedPath, "--store-type", "sqlite", "--store-path", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "users:    0 added, 1 already present")

	out, err = run(t, "audit", "--store-type", "sqlite", "--store-path", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "scanned 1 users, 1 products, 0 orders")
}

func TestAudit_FailsOnFindings(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.db")
	store, err := repository.NewSQLiteRangeStore(dbPath)
	require.NoError(t, err)
	_, err = store.AppendRow(context.Background(), "user", repository.Row{"bob", "-3"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := run(t, "audit", "--store-type", "sqlite", "--store-path", dbPath, "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 issue")
	assert.Contains(t, out, "kind: negative_value")
}

func TestRoot_RejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "audit", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
