// Package orders appends order records and deduplicates them by idempotency key.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront-api/internal/cache"
	"storefront-api/internal/model"
	"storefront-api/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Lookup when no order bears the key within the window.
var ErrNotFound = errors.New("order not found")

// Config holds recorder settings.
type Config struct {
	Table  string
	Window time.Duration
}

// Record is an order to append. ID and CreatedAt are assigned by the recorder
// when empty.
type Record struct {
	ID             string
	UserID         string
	Lines          []model.OrderLine
	TotalCost      decimal.Decimal
	Delivery       model.DeliveryMetadata
	IdempotencyKey string
	CreatedAt      time.Time
}

// Recorder appends orders to the order table.
//
// Callers must serialize Append; the check for an existing key and the
// append that follows are not atomic against the store.
type Recorder struct {
	store repository.RangeStore
	cache cache.Cache
	cfg   Config
	log   *zap.Logger
	now   func() time.Time
}

// NewRecorder creates a Recorder. c may be nil to rely on table scans only.
func NewRecorder(store repository.RangeStore, c cache.Cache, cfg Config, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store: store,
		cache: c,
		cfg:   cfg,
		log:   logger,
		now:   time.Now,
	}
}

// Append writes rec unless an order with the same idempotency key was
// recorded within the window, in which case the existing id is returned with
// replayed set.
func (r *Recorder) Append(ctx context.Context, rec Record) (orderID string, replayed bool, err error) {
	if rec.IdempotencyKey != "" {
		existing, err := r.Lookup(ctx, rec.IdempotencyKey)
		switch {
		case err == nil:
			r.log.Info("order already recorded",
				zap.String("order_id", existing.ID),
				zap.String("idempotency_key", rec.IdempotencyKey),
			)
			return existing.ID, true, nil
		case !errors.Is(err, ErrNotFound):
			return "", false, err
		}
	}

	order := model.Order{
		ID:             rec.ID,
		UserID:         rec.UserID,
		CreatedAt:      rec.CreatedAt,
		Lines:          rec.Lines,
		TotalCost:      rec.TotalCost,
		Delivery:       rec.Delivery,
		Status:         model.OrderStatusPending,
		IdempotencyKey: rec.IdempotencyKey,
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = r.now().UTC()
	}

	row, err := EncodeRow(order)
	if err != nil {
		return "", false, err
	}
	pos, err := r.store.AppendRow(ctx, r.cfg.Table, row)
	if err != nil {
		return "", false, fmt.Errorf("append order %s: %w", order.ID, err)
	}

	r.remember(ctx, order)
	r.log.Debug("order appended", zap.String("order_id", order.ID), zap.Int("position", pos))
	return order.ID, false, nil
}

// Lookup returns the order recorded under key within the window.
func (r *Recorder) Lookup(ctx context.Context, key string) (*model.Order, error) {
	if key == "" {
		return nil, ErrNotFound
	}

	if r.cache != nil {
		data, err := r.cache.Get(ctx, key)
		switch {
		case err == nil:
			var o model.Order
			if err := json.Unmarshal(data, &o); err == nil {
				return &o, nil
			}
			r.log.Warn("discarding unreadable cached order", zap.String("idempotency_key", key))
			if err := r.cache.Delete(ctx, key); err != nil {
				r.log.Warn("failed to evict cached order", zap.String("idempotency_key", key), zap.Error(err))
			}
		case !errors.Is(err, cache.ErrCacheMiss):
			r.log.Warn("idempotency cache unavailable", zap.Error(err))
		}
	}

	rows, err := r.store.ReadRange(ctx, r.cfg.Table)
	if err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}

	cutoff := r.now().Add(-r.cfg.Window)
	for pos := len(rows) - 1; pos >= 0; pos-- {
		if rows[pos].Cell(IdempotencyKeyColumn) != key {
			continue
		}
		o, err := DecodeRow(rows[pos])
		if err != nil {
			r.log.Warn("skipping malformed order row", zap.Int("position", pos), zap.Error(err))
			continue
		}
		if o.CreatedAt.Before(cutoff) {
			return nil, ErrNotFound
		}
		r.remember(ctx, o)
		return &o, nil
	}
	return nil, ErrNotFound
}

// ListByUser returns the orders of userID, newest first.
func (r *Recorder) ListByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := r.store.ReadRange(ctx, r.cfg.Table)
	if err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}

	out := make([]model.Order, 0)
	for pos := len(rows) - 1; pos >= 0; pos-- {
		if rows[pos].Cell(UserIDColumn) != userID {
			continue
		}
		o, err := DecodeRow(rows[pos])
		if err != nil {
			r.log.Warn("skipping malformed order row", zap.Int("position", pos), zap.Error(err))
			continue
		}
		out = append(out, o)
	}

	// rows are already newest-append first; the sort only reorders rows
	// whose timestamps disagree with their position
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *Recorder) remember(ctx context.Context, o model.Order) {
	if r.cache == nil || o.IdempotencyKey == "" {
		return
	}
	ttl := r.cfg.Window - r.now().Sub(o.CreatedAt)
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, o.IdempotencyKey, data, ttl); err != nil {
		r.log.Warn("failed to cache order", zap.String("order_id", o.ID), zap.Error(err))
	}
}
