package fulfillment

import (
	"sort"
	"strings"
	"sync"
	"time"

	"storefront-api/internal/orders"

	"github.com/shopspring/decimal"
)

// CellWrite is one cell a commit changes, with the values it held when
// validated and the value the commit writes.
type CellWrite struct {
	Table    string
	Position int
	Column   int
	// RowID is the id cell expected at Position.
	RowID  string
	Before string
	After  string
}

func (w CellWrite) noop() bool {
	return cellEquals(w.Before, w.After)
}

// Plan is everything one commit writes. It is immutable once built.
type Plan struct {
	Key        string
	UserID     string
	ProductIDs []string
	Writes     []CellWrite
	// Order is nil for plans that only touch ledger cells.
	Order      *orders.Record
	NewBalance decimal.Decimal
	CreatedAt  time.Time
}

func (p *Plan) touches(userID string, productIDs []string) bool {
	if p.UserID == userID {
		return true
	}
	for _, a := range p.ProductIDs {
		for _, b := range productIDs {
			if a == b {
				return true
			}
		}
	}
	return false
}

// PlanStatus is a point-in-time view of a journaled plan.
type PlanStatus struct {
	Key        string    `json:"idempotencyKey"`
	UserID     string    `json:"userId"`
	OrderID    string    `json:"orderId,omitempty"`
	ProductIDs []string  `json:"productIds"`
	CreatedAt  time.Time `json:"createdAt"`
	Acked      int       `json:"ackedWrites"`
	Writes     int       `json:"writes"`
	Attempts   int       `json:"reconcileAttempts"`
	LastError  string    `json:"lastError,omitempty"`
	Conflict   string    `json:"conflict,omitempty"`
}

type journalEntry struct {
	plan     *Plan
	acked    int
	attempts int
	lastErr  string
	conflict string
}

func (e *journalEntry) status() PlanStatus {
	s := PlanStatus{
		Key:        e.plan.Key,
		UserID:     e.plan.UserID,
		ProductIDs: e.plan.ProductIDs,
		CreatedAt:  e.plan.CreatedAt,
		Acked:      e.acked,
		Writes:     len(e.plan.Writes),
		Attempts:   e.attempts,
		LastError:  e.lastErr,
		Conflict:   e.conflict,
	}
	if e.plan.Order != nil {
		s.OrderID = e.plan.Order.ID
	}
	return s
}

// journal holds commit plans whose outcome is not yet confirmed. It lives in
// process memory only.
type journal struct {
	mu        sync.Mutex
	pending   map[string]*journalEntry
	conflicts map[string]*journalEntry
}

func newJournal() *journal {
	return &journal{
		pending:   make(map[string]*journalEntry),
		conflicts: make(map[string]*journalEntry),
	}
}

func (j *journal) add(p *Plan) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending[p.Key] = &journalEntry{plan: p}
}

func (j *journal) acked(key string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e, ok := j.pending[key]; ok {
		return e.acked
	}
	return 0
}

func (j *journal) markAcked(key string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e, ok := j.pending[key]; ok {
		e.acked++
	}
}

func (j *journal) markAttempt(key string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e, ok := j.pending[key]; ok {
		e.attempts++
		if err != nil {
			e.lastErr = err.Error()
		}
	}
}

func (j *journal) resolve(key string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.pending, key)
}

// markConflict moves a plan out of the pending set. Conflicted plans no
// longer block commits and wait for an operator.
func (j *journal) markConflict(key, reason string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.pending[key]
	if !ok {
		return
	}
	delete(j.pending, key)
	e.conflict = reason
	j.conflicts[key] = e
}

// pendingPlans returns unresolved plans oldest first.
func (j *journal) pendingPlans() []*Plan {
	j.mu.Lock()
	defer j.mu.Unlock()
	plans := make([]*Plan, 0, len(j.pending))
	for _, e := range j.pending {
		plans = append(plans, e.plan)
	}
	sort.Slice(plans, func(a, b int) bool {
		if plans[a].CreatedAt.Equal(plans[b].CreatedAt) {
			return plans[a].Key < plans[b].Key
		}
		return plans[a].CreatedAt.Before(plans[b].CreatedAt)
	})
	return plans
}

// overlapping returns a pending plan touching userID or any of productIDs.
// A plan with the given key is preferred, including a conflicted one, so a
// key is never committed twice.
func (j *journal) overlapping(key, userID string, productIDs []string) *Plan {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e, ok := j.pending[key]; ok {
		return e.plan
	}
	if e, ok := j.conflicts[key]; ok && key != "" {
		return e.plan
	}
	for _, e := range j.pending {
		if e.plan.touches(userID, productIDs) {
			return e.plan
		}
	}
	return nil
}

func (j *journal) len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

func (j *journal) snapshot() (pending, conflicts []PlanStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	pending = make([]PlanStatus, 0, len(j.pending))
	for _, e := range j.pending {
		pending = append(pending, e.status())
	}
	conflicts = make([]PlanStatus, 0, len(j.conflicts))
	for _, e := range j.conflicts {
		conflicts = append(conflicts, e.status())
	}
	byCreated := func(s []PlanStatus) {
		sort.Slice(s, func(a, b int) bool { return s[a].CreatedAt.Before(s[b].CreatedAt) })
	}
	byCreated(pending)
	byCreated(conflicts)
	return pending, conflicts
}

// cellEquals compares cells numerically when both parse as decimals. An
// empty cell reads as zero.
func cellEquals(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" {
		a = "0"
	}
	if b == "" {
		b = "0"
	}
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return da.Equal(db)
}
