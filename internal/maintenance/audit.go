package maintenance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"storefront-api/internal/ledger"
	"storefront-api/internal/orders"
	"storefront-api/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FindingKind classifies an audit finding.
type FindingKind string

const (
	FindingMalformedRow  FindingKind = "malformed_row"
	FindingNegativeValue FindingKind = "negative_value"
	FindingDuplicateID   FindingKind = "duplicate_id"
	FindingDuplicateKey  FindingKind = "duplicate_idempotency_key"
	FindingTotalMismatch FindingKind = "total_mismatch"
	FindingUnknownUser   FindingKind = "unknown_user"
)

// Finding is one inconsistency found in the store.
type Finding struct {
	Table    string      `json:"table" yaml:"table"`
	Position int         `json:"position" yaml:"position"`
	Kind     FindingKind `json:"kind" yaml:"kind"`
	ID       string      `json:"id,omitempty" yaml:"id,omitempty"`
	Detail   string      `json:"detail" yaml:"detail"`
}

// AuditReport summarizes an audit run.
type AuditReport struct {
	Users    int       `json:"users" yaml:"users"`
	Products int       `json:"products" yaml:"products"`
	Orders   int       `json:"orders" yaml:"orders"`
	Findings []Finding `json:"findings" yaml:"findings"`
}

// Clean reports whether the audit found nothing.
func (r *AuditReport) Clean() bool {
	return len(r.Findings) == 0
}

// Auditor checks the store for states the fulfillment engine never
// produces on its own: negative cells, unparsable rows, shadowed
// duplicates, repeated idempotency keys and orders whose total disagrees
// with their lines.
type Auditor struct {
	store      repository.RangeStore
	tables     ledger.Tables
	orderTable string
	log        *zap.Logger
}

// NewAuditor creates an auditor.
func NewAuditor(store repository.RangeStore, tables ledger.Tables, orderTable string, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{store: store, tables: tables, orderTable: orderTable, log: logger}
}

// Run reads every table once and returns the findings ordered by table and
// position.
func (a *Auditor) Run(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{Findings: []Finding{}}

	users, err := a.store.ReadRange(ctx, a.tables.Users)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", a.tables.Users, err)
	}
	products, err := a.store.ReadRange(ctx, a.tables.Products)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", a.tables.Products, err)
	}
	orderRows, err := a.store.ReadRange(ctx, a.orderTable)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", a.orderTable, err)
	}

	report.Users = len(users)
	report.Products = len(products)
	report.Orders = len(orderRows)

	knownUsers := a.auditUsers(users, report)
	a.auditProducts(products, report)
	a.auditOrders(orderRows, knownUsers, report)

	sort.SliceStable(report.Findings, func(i, j int) bool {
		if report.Findings[i].Table != report.Findings[j].Table {
			return report.Findings[i].Table < report.Findings[j].Table
		}
		return report.Findings[i].Position < report.Findings[j].Position
	})

	a.log.Info("audit complete",
		zap.Int("users", report.Users),
		zap.Int("products", report.Products),
		zap.Int("orders", report.Orders),
		zap.Int("findings", len(report.Findings)),
	)
	return report, nil
}

func (a *Auditor) auditUsers(rows []repository.Row, report *AuditReport) map[string]bool {
	table := a.tables.Users
	seen := make(map[string]int)
	for pos, row := range rows {
		id := strings.TrimSpace(row.Cell(ledger.UserIDColumn))
		if id == "" {
			continue
		}
		if first, dup := seen[id]; dup {
			report.add(table, pos, FindingDuplicateID, id, fmt.Sprintf("shadowed by row %d", first))
		} else {
			seen[id] = pos
		}
		if _, err := ledger.ParseUserRow(row); err != nil {
			report.add(table, pos, cellFinding(row.Cell(ledger.UserBalanceColumn)), id, err.Error())
		}
	}

	known := make(map[string]bool, len(seen))
	for id := range seen {
		known[id] = true
	}
	return known
}

func (a *Auditor) auditProducts(rows []repository.Row, report *AuditReport) {
	table := a.tables.Products
	seen := make(map[string]int)
	for pos, row := range rows {
		id := strings.TrimSpace(row.Cell(ledger.ProductIDColumn))
		if id == "" {
			continue
		}
		if first, dup := seen[id]; dup {
			report.add(table, pos, FindingDuplicateID, id, fmt.Sprintf("shadowed by row %d", first))
		} else {
			seen[id] = pos
		}
		if _, err := ledger.ParseProductRow(row); err != nil {
			kind := cellFinding(row.Cell(ledger.ProductUnitPriceColumn))
			if kind == FindingMalformedRow {
				kind = cellFinding(row.Cell(ledger.ProductQuantityColumn))
			}
			report.add(table, pos, kind, id, err.Error())
		}
	}
}

func (a *Auditor) auditOrders(rows []repository.Row, knownUsers map[string]bool, report *AuditReport) {
	table := a.orderTable
	keys := make(map[string]int)
	ids := make(map[string]int)
	for pos, row := range rows {
		o, err := orders.DecodeRow(row)
		if err != nil {
			report.add(table, pos, FindingMalformedRow, strings.TrimSpace(row.Cell(orders.IDColumn)), err.Error())
			continue
		}
		if first, dup := ids[o.ID]; dup {
			report.add(table, pos, FindingDuplicateID, o.ID, fmt.Sprintf("same order id as row %d", first))
		} else {
			ids[o.ID] = pos
		}
		if o.IdempotencyKey != "" {
			if first, dup := keys[o.IdempotencyKey]; dup {
				report.add(table, pos, FindingDuplicateKey, o.ID,
					fmt.Sprintf("key %q already used by row %d", o.IdempotencyKey, first))
			} else {
				keys[o.IdempotencyKey] = pos
			}
		}
		if want := o.LinesTotal(); !want.Equal(o.TotalCost) {
			report.add(table, pos, FindingTotalMismatch, o.ID,
				fmt.Sprintf("totalCost %s but lines sum to %s", o.TotalCost, want))
		}
		if !knownUsers[o.UserID] {
			report.add(table, pos, FindingUnknownUser, o.ID, fmt.Sprintf("user %q has no account row", o.UserID))
		}
	}
}

func (r *AuditReport) add(table string, pos int, kind FindingKind, id, detail string) {
	r.Findings = append(r.Findings, Finding{Table: table, Position: pos, Kind: kind, ID: id, Detail: detail})
}

// cellFinding tells a negative number apart from an unparsable cell.
func cellFinding(raw string) FindingKind {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err == nil && d.IsNegative() {
		return FindingNegativeValue
	}
	return FindingMalformedRow
}
