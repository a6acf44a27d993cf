// Package fulfillment places orders against a range store that offers no
// transactions.
//
// Every mutation of user balances and product stock goes through Engine.
// Attempts for one user are serialized by a per-user token, and every commit
// additionally holds a single global token from the fresh re-read of the
// watched rows until the order is recorded. Lock order is always user token
// then global token.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-api/internal/ledger"
	"storefront-api/internal/metrics"
	"storefront-api/internal/model"
	"storefront-api/internal/orders"
	"storefront-api/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const maxRetryBackoff = 5 * time.Second

// Config tunes retries and the commit path.
type Config struct {
	IdempotencyWindow time.Duration
	MaxAttempts       int
	RetryBackoff      time.Duration
	CommitTimeout     time.Duration
	ReconcileAttempts int
}

func (c Config) withDefaults() Config {
	if c.IdempotencyWindow <= 0 {
		c.IdempotencyWindow = 10 * time.Minute
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = 30 * time.Second
	}
	if c.ReconcileAttempts < 1 {
		c.ReconcileAttempts = 1
	}
	return c
}

// LedgerReader loads validated state from the store.
type LedgerReader interface {
	LoadSnapshot(ctx context.Context, userID string, productIDs []string) (*ledger.Snapshot, error)
	FindUser(ctx context.Context, userID string) (*ledger.UserRecord, error)
	Tables() ledger.Tables
}

// OrderRecorder appends orders idempotently.
type OrderRecorder interface {
	Append(ctx context.Context, rec orders.Record) (orderID string, replayed bool, err error)
	Lookup(ctx context.Context, key string) (*model.Order, error)
}

// Request is one order placement.
type Request struct {
	UserID    string
	LineItems []model.LineItem
	Delivery  model.DeliveryMetadata
	// IdempotencyKey is derived from the request when empty.
	IdempotencyKey string
}

// Result describes a placed (or replayed) order.
type Result struct {
	OrderID        string
	NewBalance     decimal.Decimal
	TotalCost      decimal.Decimal
	Replayed       bool
	IdempotencyKey string
}

// Engine is the single writer of balances and stock.
type Engine struct {
	store    repository.RangeStore
	ledger   LedgerReader
	recorder OrderRecorder
	cfg      Config

	users   *KeyedMutex
	global  *semaphore.Weighted
	journal *journal

	metrics *metrics.Metrics
	log     *zap.Logger
	tracer  trace.Tracer

	now   func() time.Time
	newID func() string
}

// NewEngine creates an Engine. m may be nil.
func NewEngine(store repository.RangeStore, reader LedgerReader, recorder OrderRecorder, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		ledger:   reader,
		recorder: recorder,
		cfg:      cfg.withDefaults(),
		users:    NewKeyedMutex(),
		global:   newToken(),
		journal:  newJournal(),
		metrics:  m,
		log:      logger,
		tracer:   otel.Tracer("storefront-api/fulfillment"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Fulfill validates and commits one order.
func (e *Engine) Fulfill(ctx context.Context, req Request) (*Result, error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "fulfillment.Fulfill", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Int("order.line_items", len(req.LineItems)),
	))
	defer span.End()

	res, err := e.fulfill(ctx, req, start)

	outcome := "success"
	switch {
	case err != nil:
		outcome = string(KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	case res.Replayed:
		outcome = "replayed"
	}
	e.metrics.ObserveFulfillment(outcome, e.now().Sub(start))

	fields := []zap.Field{
		zap.String("user_id", req.UserID),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", e.now().Sub(start)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
		switch KindOf(err) {
		case KindUnknown, KindInternal:
			e.log.Error("order outcome not confirmed", fields...)
		case KindStoreUnavailable:
			e.log.Warn("order not placed", fields...)
		default:
			e.log.Info("order rejected", fields...)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", res.OrderID), attribute.Bool("order.replayed", res.Replayed))
	e.log.Info("order placed", append(fields,
		zap.String("order_id", res.OrderID),
		zap.String("total_cost", res.TotalCost.String()),
		zap.Bool("replayed", res.Replayed),
	)...)
	return res, nil
}

func (e *Engine) fulfill(ctx context.Context, req Request, start time.Time) (*Result, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, invalid("userId is required")
	}
	items, err := normalizeItems(req.LineItems)
	if err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = IdempotencyKey(userID, items, start, e.cfg.IdempotencyWindow)
	}

	var (
		res     *Result
		lastErr error
		attempt int
	)
	op := func() error {
		attempt++
		r, err := e.attempt(ctx, userID, items, req.Delivery, key)
		if err == nil {
			res = r
			return nil
		}
		lastErr = err
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		e.log.Warn("fulfillment attempt failed, retrying",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt),
			zap.Duration("next_in", next),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, e.retryPolicy(ctx, e.cfg.MaxAttempts), notify); err != nil {
		// report the last attempt's failure, not a cancelled wait
		return nil, lastErr
	}
	res.IdempotencyKey = key
	return res, nil
}

func (e *Engine) attempt(ctx context.Context, userID string, items []model.LineItem, delivery model.DeliveryMetadata, key string) (*Result, error) {
	unlock, err := e.users.Lock(ctx, userID)
	if err != nil {
		return nil, unavailable("timed out waiting for user token", err)
	}
	defer unlock()

	if res, err := e.replay(ctx, userID, key, items); res != nil || err != nil {
		return res, err
	}

	ids := productIDs(items)

	// Early rejection against an optimistic read, skipped while a pending
	// plan may have left the watched rows half-written.
	var (
		optimistic *ledger.Snapshot
		total      decimal.Decimal
	)
	if e.journal.overlapping(key, userID, ids) == nil {
		snap, err := e.ledger.LoadSnapshot(ctx, userID, ids)
		if err != nil {
			return nil, classify(err)
		}
		if total, err = price(snap, items); err != nil {
			return nil, err
		}
		optimistic = snap
	}

	if err := e.global.Acquire(ctx, 1); err != nil {
		return nil, unavailable("timed out waiting for commit token", err)
	}
	defer e.global.Release(1)

	e.drainLocked(ctx)

	if p := e.journal.overlapping(key, userID, ids); p != nil {
		if p.Key == key {
			return nil, outcomeUnknown(key, errors.New("previous commit with this key is unresolved"))
		}
		return nil, unavailable("an unresolved commit touches this user or its products", nil)
	}

	// The fresh snapshot is the one validated and committed against.
	fresh, err := e.ledger.LoadSnapshot(ctx, userID, ids)
	if err != nil {
		return nil, classify(err)
	}

	if res, err := e.replay(ctx, userID, key, items); res != nil || err != nil {
		return res, err
	}

	// Revalidate only when a watched row moved since the optimistic read.
	if !fresh.Equal(optimistic) {
		if optimistic != nil {
			e.log.Debug("watched rows changed, revalidating", zap.String("user_id", userID))
		}
		if total, err = price(fresh, items); err != nil {
			return nil, err
		}
	}

	return e.commit(ctx, e.buildPlan(fresh, items, delivery, key, total))
}

// replay returns the recorded result for key, or nil when key is unused. A
// key recorded for another user or another cart is rejected.
func (e *Engine) replay(ctx context.Context, userID, key string, items []model.LineItem) (*Result, error) {
	order, err := e.recorder.Lookup(ctx, key)
	if errors.Is(err, orders.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("idempotency lookup failed", err)
	}
	if order.UserID != userID {
		return nil, invalid("idempotency key was used by another order")
	}
	if !sameItems(order.Lines, items) {
		return nil, invalid("idempotency key was used for a different cart")
	}

	rec, err := e.ledger.FindUser(ctx, userID)
	if err != nil {
		return nil, classify(err)
	}
	return &Result{
		OrderID:    order.ID,
		NewBalance: rec.User.Balance,
		TotalCost:  order.TotalCost,
		Replayed:   true,
	}, nil
}

// sameItems reports whether lines hold exactly the normalized items.
func sameItems(lines []model.OrderLine, items []model.LineItem) bool {
	if len(lines) != len(items) {
		return false
	}
	want := make(map[string]int, len(items))
	for _, it := range items {
		want[it.ProductID] = it.Quantity
	}
	for _, l := range lines {
		if q, ok := want[l.ProductID]; !ok || q != l.Quantity {
			return false
		}
	}
	return true
}

// price validates stock for every item and then funds, returning the total.
func price(snap *ledger.Snapshot, items []model.LineItem) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, it := range items {
		p := snap.Products[it.ProductID].Product
		if !p.InStock(it.Quantity) {
			return decimal.Zero, &Error{Kind: KindInsufficientStock, ProductID: it.ProductID}
		}
		total = total.Add(p.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if total.GreaterThan(snap.User.User.Balance) {
		return decimal.Zero, &Error{Kind: KindInsufficientBalance}
	}
	return total, nil
}

func (e *Engine) buildPlan(snap *ledger.Snapshot, items []model.LineItem, delivery model.DeliveryMetadata, key string, total decimal.Decimal) *Plan {
	tables := e.ledger.Tables()
	balance := snap.User.User.Balance
	newBalance := balance.Sub(total)

	writes := make([]CellWrite, 0, len(items)+1)
	writes = append(writes, CellWrite{
		Table:    tables.Users,
		Position: snap.User.Position,
		Column:   ledger.UserBalanceColumn,
		RowID:    snap.User.User.ID,
		Before:   ledger.FormatMoney(balance),
		After:    ledger.FormatMoney(newBalance),
	})

	lines := make([]model.OrderLine, 0, len(items))
	for _, it := range items {
		rec := snap.Products[it.ProductID]
		writes = append(writes, CellWrite{
			Table:    tables.Products,
			Position: rec.Position,
			Column:   ledger.ProductQuantityColumn,
			RowID:    rec.Product.ID,
			Before:   ledger.FormatQuantity(rec.Product.Quantity),
			After:    ledger.FormatQuantity(rec.Product.Quantity - it.Quantity),
		})
		lines = append(lines, model.OrderLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: rec.Product.UnitPrice,
		})
	}

	now := e.now().UTC()
	return &Plan{
		Key:        key,
		UserID:     snap.User.User.ID,
		ProductIDs: productIDs(items),
		Writes:     writes,
		Order: &orders.Record{
			ID:             e.newID(),
			UserID:         snap.User.User.ID,
			Lines:          lines,
			TotalCost:      total,
			Delivery:       delivery,
			IdempotencyKey: key,
			CreatedAt:      now,
		},
		NewBalance: newBalance,
		CreatedAt:  now,
	}
}

// commit applies plan. It must be called with the global token held. The
// request context only contributes values: commits are never cancelled.
func (e *Engine) commit(ctx context.Context, plan *Plan) (*Result, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CommitTimeout)
	defer cancel()

	e.journal.add(plan)
	e.metrics.SetPendingPlans(e.journal.len())
	defer func() { e.metrics.SetPendingPlans(e.journal.len()) }()

	for _, w := range plan.Writes {
		if err := e.store.WriteCell(cctx, w.Table, w.Position, w.Column, w.After); err != nil {
			return e.recover(cctx, plan, fmt.Errorf("write %s!%d: %w", w.Table, w.Position, err))
		}
		e.journal.markAcked(plan.Key)
	}

	orderID, err := e.appendOrder(cctx, plan)
	if err != nil {
		return e.recover(cctx, plan, err)
	}

	e.journal.resolve(plan.Key)
	return planResult(plan, orderID), nil
}

func (e *Engine) appendOrder(ctx context.Context, plan *Plan) (string, error) {
	if plan.Order == nil {
		return "", nil
	}
	orderID, replayed, err := e.recorder.Append(ctx, *plan.Order)
	if err != nil {
		return "", fmt.Errorf("record order: %w", err)
	}
	if replayed && orderID != plan.Order.ID {
		e.log.Warn("order key already recorded under another id",
			zap.String("idempotency_key", plan.Key),
			zap.String("order_id", orderID),
		)
	}
	return orderID, nil
}

// recover reconciles plan right after a failed commit step.
func (e *Engine) recover(ctx context.Context, plan *Plan, cause error) (*Result, error) {
	e.log.Warn("commit interrupted, reconciling",
		zap.String("idempotency_key", plan.Key),
		zap.Int("acked_writes", e.journal.acked(plan.Key)),
		zap.Error(cause),
	)

	var (
		res      *Result
		decision error
	)
	op := func() error {
		outcome, orderID, err := e.reconcile(ctx, plan)
		switch outcome {
		case reconcileCommitted:
			res = planResult(plan, orderID)
		case reconcileAborted:
			decision = unavailable("commit did not apply", cause)
		case reconcileConflict:
			decision = outcomeUnknown(plan.Key, err)
		default:
			return err
		}
		return nil
	}

	if err := backoff.Retry(op, e.retryPolicy(ctx, e.cfg.ReconcileAttempts)); err != nil {
		return nil, outcomeUnknown(plan.Key, cause)
	}
	return res, decision
}

func planResult(plan *Plan, orderID string) *Result {
	res := &Result{OrderID: orderID, NewBalance: plan.NewBalance, IdempotencyKey: plan.Key}
	if plan.Order != nil {
		res.TotalCost = plan.Order.TotalCost
	}
	return res
}

// retryPolicy allows attempts tries in total, doubling the wait from
// RetryBackoff up to maxRetryBackoff, and stops early when ctx is done.
func (e *Engine) retryPolicy(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxInterval = maxRetryBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	retries := 0
	if attempts > 1 {
		retries = attempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}
