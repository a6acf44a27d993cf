// Package maintenance holds offline tooling that works directly on the
// backing store: catalog seeding and consistency audits.
package maintenance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"storefront-api/internal/ledger"
	"storefront-api/internal/model"
	"storefront-api/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document accepted by Seed.
type SeedFile struct {
	Users    []SeedUser    `yaml:"users"`
	Products []SeedProduct `yaml:"products"`
}

// SeedUser is one account to create.
type SeedUser struct {
	ID      string `yaml:"id"`
	Balance string `yaml:"balance"`
}

// SeedProduct is one catalog entry to create.
type SeedProduct struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	UnitPrice   string `yaml:"unitPrice"`
	Quantity    int    `yaml:"quantity"`
	Description string `yaml:"description,omitempty"`
	ImageURL    string `yaml:"imageUrl,omitempty"`
}

// SeedReport counts what Seed changed.
type SeedReport struct {
	UsersAdded      int `json:"usersAdded" yaml:"usersAdded"`
	UsersSkipped    int `json:"usersSkipped" yaml:"usersSkipped"`
	ProductsAdded   int `json:"productsAdded" yaml:"productsAdded"`
	ProductsSkipped int `json:"productsSkipped" yaml:"productsSkipped"`
}

// ParseSeed decodes and validates a seed document. Unknown fields are
// rejected.
func ParseSeed(r io.Reader) ([]model.User, []model.Product, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var doc SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	users := make([]model.User, 0, len(doc.Users))
	seen := make(map[string]bool)
	for i, u := range doc.Users {
		id := strings.TrimSpace(u.ID)
		if id == "" {
			return nil, nil, fmt.Errorf("users[%d]: id is required", i)
		}
		if seen[id] {
			return nil, nil, fmt.Errorf("users[%d]: duplicate id %q", i, id)
		}
		seen[id] = true

		balance := decimal.Zero
		if s := strings.TrimSpace(u.Balance); s != "" {
			balance, err = decimal.NewFromString(s)
			if err != nil {
				return nil, nil, fmt.Errorf("users[%d]: invalid balance %q", i, u.Balance)
			}
		}
		if balance.IsNegative() {
			return nil, nil, fmt.Errorf("users[%d]: balance must not be negative", i)
		}
		users = append(users, model.User{ID: id, Balance: balance})
	}

	products := make([]model.Product, 0, len(doc.Products))
	seen = make(map[string]bool)
	for i, p := range doc.Products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, nil, fmt.Errorf("products[%d]: id is required", i)
		}
		if seen[id] {
			return nil, nil, fmt.Errorf("products[%d]: duplicate id %q", i, id)
		}
		seen[id] = true

		price, err := decimal.NewFromString(strings.TrimSpace(p.UnitPrice))
		if err != nil {
			return nil, nil, fmt.Errorf("products[%d]: invalid unitPrice %q", i, p.UnitPrice)
		}
		if price.IsNegative() {
			return nil, nil, fmt.Errorf("products[%d]: unitPrice must not be negative", i)
		}
		if p.Quantity < 0 {
			return nil, nil, fmt.Errorf("products[%d]: quantity must not be negative", i)
		}
		products = append(products, model.Product{
			ID:          id,
			Name:        p.Name,
			UnitPrice:   price,
			Quantity:    p.Quantity,
			Description: p.Description,
			ImageURL:    p.ImageURL,
		})
	}

	return users, products, nil
}

// Seeder appends missing users and products. Rows that already exist are
// never rewritten, so seeding is safe to repeat.
type Seeder struct {
	store  repository.RangeStore
	tables ledger.Tables
	log    *zap.Logger
}

// NewSeeder creates a seeder over store.
func NewSeeder(store repository.RangeStore, tables ledger.Tables, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{store: store, tables: tables, log: logger}
}

// Seed appends every user and product whose id is not yet in the store.
func (s *Seeder) Seed(ctx context.Context, users []model.User, products []model.Product) (SeedReport, error) {
	var report SeedReport

	existing, err := s.ids(ctx, s.tables.Users)
	if err != nil {
		return report, err
	}
	for _, u := range users {
		if existing[u.ID] {
			report.UsersSkipped++
			continue
		}
		if _, err := s.store.AppendRow(ctx, s.tables.Users, ledger.UserRow(u)); err != nil {
			return report, fmt.Errorf("failed to append user %s: %w", u.ID, err)
		}
		existing[u.ID] = true
		report.UsersAdded++
		s.log.Debug("user seeded", zap.String("user_id", u.ID))
	}

	existing, err = s.ids(ctx, s.tables.Products)
	if err != nil {
		return report, err
	}
	for _, p := range products {
		if existing[p.ID] {
			report.ProductsSkipped++
			continue
		}
		if _, err := s.store.AppendRow(ctx, s.tables.Products, ledger.ProductRow(p)); err != nil {
			return report, fmt.Errorf("failed to append product %s: %w", p.ID, err)
		}
		existing[p.ID] = true
		report.ProductsAdded++
		s.log.Debug("product seeded", zap.String("product_id", p.ID))
	}

	s.log.Info("seed complete",
		zap.Int("users_added", report.UsersAdded),
		zap.Int("users_skipped", report.UsersSkipped),
		zap.Int("products_added", report.ProductsAdded),
		zap.Int("products_skipped", report.ProductsSkipped),
	)
	return report, nil
}

// ids returns the set of non-empty id cells in table.
func (s *Seeder) ids(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.store.ReadRange(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		if id := strings.TrimSpace(row.Cell(0)); id != "" {
			out[id] = true
		}
	}
	return out, nil
}
