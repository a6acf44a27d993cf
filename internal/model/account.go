package model

import "github.com/shopspring/decimal"

// User is a buyer account with its spendable balance.
type User struct {
	ID      string          `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
}

// Product is a catalog entry with its available stock.
type Product struct {
	ID          string          `json:"productId"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"imageUrl,omitempty"`
}

// InStock reports whether at least qty units are available.
func (p Product) InStock(qty int) bool {
	return qty <= p.Quantity
}
