package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront-api/internal/ledger"
	"storefront-api/internal/model"
	"storefront-api/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type reconcileOutcome int

const (
	reconcileIncomplete reconcileOutcome = iota
	reconcileCommitted
	reconcileAborted
	reconcileConflict
)

func (o reconcileOutcome) String() string {
	switch o {
	case reconcileCommitted:
		return "committed"
	case reconcileAborted:
		return "aborted"
	case reconcileConflict:
		return "conflict"
	default:
		return "incomplete"
	}
}

// ReconcileSummary counts what one pass over the journal did.
type ReconcileSummary struct {
	Committed int `json:"committed"`
	Aborted   int `json:"aborted"`
	Conflicts int `json:"conflicts"`
	Remaining int `json:"remaining"`
}

// Stats is a view of the engine's unresolved work.
type Stats struct {
	Pending     []PlanStatus `json:"pending"`
	Conflicts   []PlanStatus `json:"conflicts"`
	LockedUsers int          `json:"lockedUsers"`
}

// reconcile compares the store against plan and finishes or abandons it.
//
// A plan rolls forward when any write was acknowledged or any row already
// holds its after value. It is aborted only when no write was acknowledged
// and every row still holds its before value. A row holding neither value
// was changed by someone else and is never overwritten.
func (e *Engine) reconcile(ctx context.Context, plan *Plan) (outcome reconcileOutcome, orderID string, err error) {
	defer func() {
		e.journal.markAttempt(plan.Key, err)
		switch outcome {
		case reconcileCommitted, reconcileAborted:
			e.journal.resolve(plan.Key)
		case reconcileConflict:
			e.journal.markConflict(plan.Key, err.Error())
		}
		e.metrics.ObserveReconciliation(outcome.String())
	}()

	ranges := make(map[string][]repository.Row)
	for _, w := range plan.Writes {
		if _, ok := ranges[w.Table]; ok {
			continue
		}
		rows, err := e.store.ReadRange(ctx, w.Table)
		if err != nil {
			return reconcileIncomplete, "", fmt.Errorf("read %s: %w", w.Table, err)
		}
		ranges[w.Table] = rows
	}

	atAfter := 0
	var remaining []CellWrite
	for _, w := range plan.Writes {
		rows := ranges[w.Table]
		if w.Position >= len(rows) || strings.TrimSpace(rows[w.Position].Cell(0)) != w.RowID {
			return reconcileConflict, "", fmt.Errorf("%s!%d no longer holds row %q", w.Table, w.Position, w.RowID)
		}
		current := rows[w.Position].Cell(w.Column)
		switch {
		case w.noop():
			if !cellEquals(current, w.After) {
				return reconcileConflict, "", fmt.Errorf("%s!%d holds %q, want %q", w.Table, w.Position, current, w.After)
			}
		case cellEquals(current, w.After):
			atAfter++
		case cellEquals(current, w.Before):
			remaining = append(remaining, w)
		default:
			return reconcileConflict, "", fmt.Errorf("%s!%d holds %q, want %q or %q",
				w.Table, w.Position, current, w.Before, w.After)
		}
	}

	if atAfter == 0 && e.journal.acked(plan.Key) == 0 {
		return reconcileAborted, "", nil
	}

	for _, w := range remaining {
		if err := e.store.WriteCell(ctx, w.Table, w.Position, w.Column, w.After); err != nil {
			return reconcileIncomplete, "", fmt.Errorf("write %s!%d: %w", w.Table, w.Position, err)
		}
		e.journal.markAcked(plan.Key)
	}

	orderID, err = e.appendOrder(ctx, plan)
	if err != nil {
		return reconcileIncomplete, "", err
	}
	return reconcileCommitted, orderID, nil
}

// drainLocked reconciles every pending plan. The global token must be held.
func (e *Engine) drainLocked(ctx context.Context) ReconcileSummary {
	var sum ReconcileSummary
	plans := e.journal.pendingPlans()
	if len(plans) == 0 {
		return sum
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CommitTimeout)
	defer cancel()

	for _, p := range plans {
		outcome, _, err := e.reconcile(cctx, p)
		fields := []zap.Field{
			zap.String("idempotency_key", p.Key),
			zap.String("user_id", p.UserID),
			zap.String("result", outcome.String()),
		}
		switch outcome {
		case reconcileCommitted:
			sum.Committed++
			e.log.Info("pending commit completed", fields...)
		case reconcileAborted:
			sum.Aborted++
			e.log.Info("pending commit abandoned, nothing applied", fields...)
		case reconcileConflict:
			sum.Conflicts++
			e.log.Error("pending commit conflicts with store contents", append(fields, zap.Error(err))...)
		default:
			e.log.Warn("pending commit still unresolved", append(fields, zap.Error(err))...)
		}
	}

	sum.Remaining = e.journal.len()
	e.metrics.SetPendingPlans(sum.Remaining)
	return sum
}

// ReconcilePending retries every unresolved commit plan now.
func (e *Engine) ReconcilePending(ctx context.Context) (ReconcileSummary, error) {
	if err := e.global.Acquire(ctx, 1); err != nil {
		return ReconcileSummary{}, unavailable("timed out waiting for commit token", err)
	}
	defer e.global.Release(1)

	return e.drainLocked(ctx), nil
}

// PendingCount reports how many plans await reconciliation.
func (e *Engine) PendingCount() int {
	return e.journal.len()
}

// Stats returns the pending and conflicted plans.
func (e *Engine) Stats() Stats {
	pending, conflicts := e.journal.snapshot()
	return Stats{
		Pending:     pending,
		Conflicts:   conflicts,
		LockedUsers: e.users.Len(),
	}
}

// OpenAccount returns the balance of userID, creating the user with a zero
// balance when it does not exist yet.
func (e *Engine) OpenAccount(ctx context.Context, userID string) (decimal.Decimal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return decimal.Zero, invalid("userId is required")
	}

	unlock, err := e.users.Lock(ctx, userID)
	if err != nil {
		return decimal.Zero, unavailable("timed out waiting for user token", err)
	}
	defer unlock()

	rec, err := e.ledger.FindUser(ctx, userID)
	if err == nil {
		return rec.User.Balance, nil
	}
	if !errors.Is(err, ledger.ErrUserNotFound) {
		return decimal.Zero, classify(err)
	}

	if err := e.global.Acquire(ctx, 1); err != nil {
		return decimal.Zero, unavailable("timed out waiting for commit token", err)
	}
	defer e.global.Release(1)

	// rows may be appended by tools outside the engine
	rec, err = e.ledger.FindUser(ctx, userID)
	if err == nil {
		return rec.User.Balance, nil
	}
	if !errors.Is(err, ledger.ErrUserNotFound) {
		return decimal.Zero, classify(err)
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CommitTimeout)
	defer cancel()

	row := ledger.UserRow(model.User{ID: userID, Balance: decimal.Zero})
	pos, err := e.store.AppendRow(cctx, e.ledger.Tables().Users, row)
	if err != nil {
		// a duplicate zero row from a retried append is shadowed by the first
		return decimal.Zero, unavailable("failed to create account", err)
	}

	e.log.Info("account opened", zap.String("user_id", userID), zap.Int("position", pos))
	return decimal.Zero, nil
}

// Credit adds amount to the balance of an existing user.
func (e *Engine) Credit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return decimal.Zero, invalid("userId is required")
	}
	if !amount.IsPositive() {
		return decimal.Zero, invalid("amount must be positive")
	}

	unlock, err := e.users.Lock(ctx, userID)
	if err != nil {
		return decimal.Zero, unavailable("timed out waiting for user token", err)
	}
	defer unlock()

	if err := e.global.Acquire(ctx, 1); err != nil {
		return decimal.Zero, unavailable("timed out waiting for commit token", err)
	}
	defer e.global.Release(1)

	e.drainLocked(ctx)
	if e.journal.overlapping("", userID, nil) != nil {
		return decimal.Zero, unavailable("an unresolved commit touches this user", nil)
	}

	rec, err := e.ledger.FindUser(ctx, userID)
	if err != nil {
		return decimal.Zero, classify(err)
	}

	newBalance := rec.User.Balance.Add(amount)
	plan := &Plan{
		Key:    "credit:" + e.newID(),
		UserID: userID,
		Writes: []CellWrite{{
			Table:    e.ledger.Tables().Users,
			Position: rec.Position,
			Column:   ledger.UserBalanceColumn,
			RowID:    userID,
			Before:   ledger.FormatMoney(rec.User.Balance),
			After:    ledger.FormatMoney(newBalance),
		}},
		NewBalance: newBalance,
		CreatedAt:  e.now().UTC(),
	}

	res, err := e.commit(ctx, plan)
	if err != nil {
		return decimal.Zero, err
	}

	e.log.Info("balance credited",
		zap.String("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("new_balance", res.NewBalance.String()),
	)
	return res.NewBalance, nil
}
