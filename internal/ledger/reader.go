// Package ledger reads balances and stock from the range store.
//
// Lookups always read a whole table and match on the id column; positions in
// the returned records are the row positions that writes must target.
package ledger

import (
	"context"
	"strings"

	"storefront-api/internal/model"
	"storefront-api/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tables names the logical tables the reader uses.
type Tables struct {
	Users    string
	Products string
}

// UserRecord is a parsed user together with its row position.
type UserRecord struct {
	Position int
	User     model.User
}

// ProductRecord is a parsed product together with its row position.
type ProductRecord struct {
	Position int
	Product  model.Product
}

// Snapshot is the state one fulfillment attempt validates and commits against.
type Snapshot struct {
	User     UserRecord
	Products map[string]ProductRecord
}

// Equal reports whether every watched value and position matches other.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.User.Position != other.User.Position || !s.User.User.Balance.Equal(other.User.User.Balance) {
		return false
	}
	if len(s.Products) != len(other.Products) {
		return false
	}
	for id, p := range s.Products {
		o, ok := other.Products[id]
		if !ok {
			return false
		}
		if p.Position != o.Position ||
			p.Product.Quantity != o.Product.Quantity ||
			!p.Product.UnitPrice.Equal(o.Product.UnitPrice) {
			return false
		}
	}
	return true
}

// Reader loads snapshots and read-only projections.
type Reader struct {
	store  repository.RangeStore
	tables Tables
	log    *zap.Logger
}

// NewReader creates a Reader over store.
func NewReader(store repository.RangeStore, tables Tables, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{store: store, tables: tables, log: logger}
}

// Tables returns the configured table names.
func (r *Reader) Tables() Tables {
	return r.tables
}

// LoadSnapshot reads the user and every product in productIDs.
func (r *Reader) LoadSnapshot(ctx context.Context, userID string, productIDs []string) (*Snapshot, error) {
	user, err := r.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := r.store.ReadRange(ctx, r.tables.Products)
	if err != nil {
		return nil, unavailable("read", r.tables.Products, err)
	}

	snap := &Snapshot{User: *user, Products: make(map[string]ProductRecord, len(productIDs))}
	for _, id := range productIDs {
		if _, done := snap.Products[id]; done {
			continue
		}
		rec, err := r.findProduct(rows, id)
		if err != nil {
			return nil, err
		}
		snap.Products[id] = *rec
	}
	return snap, nil
}

// FindUser returns the first row whose id matches userID.
func (r *Reader) FindUser(ctx context.Context, userID string) (*UserRecord, error) {
	rows, err := r.store.ReadRange(ctx, r.tables.Users)
	if err != nil {
		return nil, unavailable("read", r.tables.Users, err)
	}

	pos := indexOf(rows, UserIDColumn, userID)
	if pos < 0 {
		return nil, ErrUserNotFound
	}
	user, err := ParseUserRow(rows[pos])
	if err != nil {
		return nil, &MalformedRowError{Table: r.tables.Users, Position: pos, Err: err}
	}
	return &UserRecord{Position: pos, User: user}, nil
}

// Balance returns the balance of userID.
func (r *Reader) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	rec, err := r.FindUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return rec.User.Balance, nil
}

// Product returns one product by id.
func (r *Reader) Product(ctx context.Context, productID string) (*model.Product, error) {
	rows, err := r.store.ReadRange(ctx, r.tables.Products)
	if err != nil {
		return nil, unavailable("read", r.tables.Products, err)
	}
	rec, err := r.findProduct(rows, productID)
	if err != nil {
		return nil, err
	}
	return &rec.Product, nil
}

// Products lists the catalog in table order. Malformed rows are skipped.
func (r *Reader) Products(ctx context.Context) ([]model.Product, error) {
	rows, err := r.store.ReadRange(ctx, r.tables.Products)
	if err != nil {
		return nil, unavailable("read", r.tables.Products, err)
	}

	seen := make(map[string]bool, len(rows))
	products := make([]model.Product, 0, len(rows))
	for pos, row := range rows {
		id := strings.TrimSpace(row.Cell(ProductIDColumn))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		p, err := ParseProductRow(row)
		if err != nil {
			r.log.Warn("skipping malformed product row",
				zap.String("table", r.tables.Products),
				zap.Int("position", pos),
				zap.Error(err),
			)
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

func (r *Reader) findProduct(rows []repository.Row, productID string) (*ProductRecord, error) {
	pos := indexOf(rows, ProductIDColumn, productID)
	if pos < 0 {
		return nil, &ProductNotFoundError{ProductID: productID}
	}
	p, err := ParseProductRow(rows[pos])
	if err != nil {
		return nil, &MalformedRowError{Table: r.tables.Products, Position: pos, Err: err}
	}
	return &ProductRecord{Position: pos, Product: p}, nil
}

// indexOf returns the position of the first row whose id column equals id.
func indexOf(rows []repository.Row, column int, id string) int {
	if id == "" {
		return -1
	}
	for pos, row := range rows {
		if strings.TrimSpace(row.Cell(column)) == id {
			return pos
		}
	}
	return -1
}
