package fulfillment

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"storefront-api/internal/model"
)

// IdempotencyKey derives a deterministic key for an attempt. Identical
// requests from the same user inside one window share a key.
func IdempotencyKey(userID string, items []model.LineItem, attemptStart time.Time, window time.Duration) string {
	canonical := make([]model.LineItem, len(items))
	copy(canonical, items)
	sort.Slice(canonical, func(i, j int) bool {
		return canonical[i].ProductID < canonical[j].ProductID
	})

	var b strings.Builder
	b.WriteString(userID)
	b.WriteByte('|')
	for i, it := range canonical {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(it.ProductID)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(it.Quantity))
	}
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(attemptStart.UTC().Truncate(window).Unix(), 10))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// normalizeItems validates items, merges duplicate product ids and sorts by id.
func normalizeItems(items []model.LineItem) ([]model.LineItem, error) {
	if len(items) == 0 {
		return nil, invalid("lineItems must not be empty")
	}

	merged := make(map[string]int, len(items))
	for i, it := range items {
		id := strings.TrimSpace(it.ProductID)
		if id == "" {
			return nil, invalid("lineItems[%d]: productId is required", i)
		}
		if it.Quantity <= 0 {
			return nil, invalid("lineItems[%d]: quantity must be positive", i)
		}
		if merged[id] > math.MaxInt-it.Quantity {
			return nil, invalid("lineItems[%d]: total quantity for %s is too large", i, id)
		}
		merged[id] += it.Quantity
	}

	out := make([]model.LineItem, 0, len(merged))
	for id, qty := range merged {
		out = append(out, model.LineItem{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func productIDs(items []model.LineItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	return ids
}
