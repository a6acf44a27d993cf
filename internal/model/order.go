package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a recorded order.
// Fulfillment always records OrderStatusPending.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
)

// LineItem is one requested product and quantity.
type LineItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderLine is a purchased line item with the unit price captured at order time.
type OrderLine struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Subtotal returns quantity times unit price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// DeliveryMetadata is opaque delivery information supplied by the buyer.
type DeliveryMetadata map[string]string

// Order is an immutable order record.
type Order struct {
	ID             string           `json:"orderId"`
	UserID         string           `json:"userId"`
	CreatedAt      time.Time        `json:"createdAt"`
	Lines          []OrderLine      `json:"lineItems"`
	TotalCost      decimal.Decimal  `json:"totalCost"`
	Delivery       DeliveryMetadata `json:"deliveryMetadata,omitempty"`
	Status         OrderStatus      `json:"status"`
	IdempotencyKey string           `json:"idempotencyKey,omitempty"`
}

// LinesTotal sums the subtotals of all lines.
func (o Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
