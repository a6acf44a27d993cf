package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-api/internal/model"
	"storefront-api/internal/repository"

	"github.com/shopspring/decimal"
)

// Column layout of the order table.
const (
	IDColumn             = 0
	UserIDColumn         = 1
	CreatedAtColumn      = 2
	LineItemsColumn      = 3
	TotalCostColumn      = 4
	DeliveryColumn       = 5
	StatusColumn         = 6
	IdempotencyKeyColumn = 7
)

// EncodeRow renders an order in table layout.
func EncodeRow(o model.Order) (repository.Row, error) {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return nil, fmt.Errorf("encode line items: %w", err)
	}
	delivery := ""
	if len(o.Delivery) > 0 {
		b, err := json.Marshal(o.Delivery)
		if err != nil {
			return nil, fmt.Errorf("encode delivery metadata: %w", err)
		}
		delivery = string(b)
	}
	return repository.Row{
		o.ID,
		o.UserID,
		o.CreatedAt.UTC().Format(time.RFC3339Nano),
		string(lines),
		o.TotalCost.String(),
		delivery,
		string(o.Status),
		o.IdempotencyKey,
	}, nil
}

// DecodeRow parses an order row.
func DecodeRow(row repository.Row) (model.Order, error) {
	o := model.Order{
		ID:             strings.TrimSpace(row.Cell(IDColumn)),
		UserID:         strings.TrimSpace(row.Cell(UserIDColumn)),
		Status:         model.OrderStatus(row.Cell(StatusColumn)),
		IdempotencyKey: row.Cell(IdempotencyKeyColumn),
	}
	if o.ID == "" {
		return model.Order{}, errors.New("missing order id")
	}

	created, err := time.Parse(time.RFC3339Nano, row.Cell(CreatedAtColumn))
	if err != nil {
		return model.Order{}, fmt.Errorf("createdAt: %w", err)
	}
	o.CreatedAt = created

	if raw := row.Cell(LineItemsColumn); raw != "" {
		if err := json.Unmarshal([]byte(raw), &o.Lines); err != nil {
			return model.Order{}, fmt.Errorf("lineItems: %w", err)
		}
	}

	total, err := decimal.NewFromString(strings.TrimSpace(row.Cell(TotalCostColumn)))
	if err != nil {
		return model.Order{}, fmt.Errorf("totalCost: %w", err)
	}
	o.TotalCost = total

	if raw := row.Cell(DeliveryColumn); raw != "" {
		if err := json.Unmarshal([]byte(raw), &o.Delivery); err != nil {
			return model.Order{}, fmt.Errorf("deliveryMetadata: %w", err)
		}
	}

	if o.Status == "" {
		o.Status = model.OrderStatusPending
	}
	return o, nil
}
