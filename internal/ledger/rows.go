package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"storefront-api/internal/model"
	"storefront-api/internal/repository"

	"github.com/shopspring/decimal"
)

// Column layout of the user table.
const (
	UserIDColumn      = 0
	UserBalanceColumn = 1
)

// Column layout of the product table.
const (
	ProductIDColumn          = 0
	ProductNameColumn        = 1
	ProductUnitPriceColumn   = 2
	ProductQuantityColumn    = 3
	ProductDescriptionColumn = 4
	ProductImageURLColumn    = 5
)

// ParseUserRow converts a user row. An empty balance cell reads as zero.
func ParseUserRow(row repository.Row) (model.User, error) {
	balance, err := parseMoney(row.Cell(UserBalanceColumn), true)
	if err != nil {
		return model.User{}, fmt.Errorf("balance: %w", err)
	}
	return model.User{
		ID:      strings.TrimSpace(row.Cell(UserIDColumn)),
		Balance: balance,
	}, nil
}

// ParseProductRow converts a product row. Unit price is required; an empty
// quantity cell reads as zero.
func ParseProductRow(row repository.Row) (model.Product, error) {
	price, err := parseMoney(row.Cell(ProductUnitPriceColumn), false)
	if err != nil {
		return model.Product{}, fmt.Errorf("unitPrice: %w", err)
	}
	qty, err := parseQuantity(row.Cell(ProductQuantityColumn))
	if err != nil {
		return model.Product{}, fmt.Errorf("quantity: %w", err)
	}
	return model.Product{
		ID:          strings.TrimSpace(row.Cell(ProductIDColumn)),
		Name:        row.Cell(ProductNameColumn),
		UnitPrice:   price,
		Quantity:    qty,
		Description: row.Cell(ProductDescriptionColumn),
		ImageURL:    row.Cell(ProductImageURLColumn),
	}, nil
}

// UserRow renders a user in table layout.
func UserRow(u model.User) repository.Row {
	return repository.Row{u.ID, FormatMoney(u.Balance)}
}

// ProductRow renders a product in table layout.
func ProductRow(p model.Product) repository.Row {
	return repository.Row{
		p.ID,
		p.Name,
		FormatMoney(p.UnitPrice),
		FormatQuantity(p.Quantity),
		p.Description,
		p.ImageURL,
	}
}

// FormatMoney renders an amount as a plain decimal string.
func FormatMoney(d decimal.Decimal) string {
	return d.String()
}

// FormatQuantity renders a stock quantity.
func FormatQuantity(q int) string {
	return strconv.Itoa(q)
}

func parseMoney(raw string, emptyIsZero bool) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if emptyIsZero {
			return decimal.Zero, nil
		}
		return decimal.Zero, errors.New("empty")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q", raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %s", raw)
	}
	return d, nil
}

func parseQuantity(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	q, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if q < 0 {
		return 0, fmt.Errorf("negative quantity %d", q)
	}
	return q, nil
}
