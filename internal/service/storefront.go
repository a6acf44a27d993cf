package service

import (
	"context"
	"time"

	"storefront-api/internal/fulfillment"
	"storefront-api/internal/ledger"
	"storefront-api/internal/model"
	"storefront-api/internal/orders"
	"storefront-api/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Pinger is implemented by dependencies that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorefrontConfig holds service settings.
type StorefrontConfig struct {
	// RequestTimeout bounds an order placement, lock waits included.
	RequestTimeout time.Duration
	StoreType      string
}

// Storefront exposes catalog, balance and order operations to handlers.
type Storefront struct {
	engine   *fulfillment.Engine
	reader   *ledger.Reader
	recorder *orders.Recorder
	store    repository.RangeStore
	cache    Pinger
	cfg      StorefrontConfig
	log      *zap.Logger
}

// NewStorefront creates the service. cache may be nil.
func NewStorefront(
	engine *fulfillment.Engine,
	reader *ledger.Reader,
	recorder *orders.Recorder,
	store repository.RangeStore,
	cache Pinger,
	cfg StorefrontConfig,
	logger *zap.Logger,
) *Storefront {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 20 * time.Second
	}
	return &Storefront{
		engine:   engine,
		reader:   reader,
		recorder: recorder,
		store:    store,
		cache:    cache,
		cfg:      cfg,
		log:      logger,
	}
}

// PlaceOrder fulfills req within the configured request timeout.
func (s *Storefront) PlaceOrder(ctx context.Context, req fulfillment.Request) (*fulfillment.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	return s.engine.Fulfill(ctx, req)
}

// Balance returns the user's balance, opening the account on first use.
func (s *Storefront) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.engine.OpenAccount(ctx, userID)
}

// Credit tops up an existing account.
func (s *Storefront) Credit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.engine.Credit(ctx, userID, amount)
}

// Orders lists the user's orders, newest first.
func (s *Storefront) Orders(ctx context.Context, userID string) ([]model.Order, error) {
	return s.recorder.ListByUser(ctx, userID)
}

// Products lists the catalog.
func (s *Storefront) Products(ctx context.Context) ([]model.Product, error) {
	return s.reader.Products(ctx)
}

// Product returns one catalog entry.
func (s *Storefront) Product(ctx context.Context, productID string) (*model.Product, error) {
	return s.reader.Product(ctx, productID)
}

// Reconcile drains pending commit plans now.
func (s *Storefront) Reconcile(ctx context.Context) (fulfillment.ReconcileSummary, error) {
	return s.engine.ReconcilePending(ctx)
}

// Stats returns the engine's unresolved work.
func (s *Storefront) Stats() fulfillment.Stats {
	return s.engine.Stats()
}

// StoreType names the configured backend.
func (s *Storefront) StoreType() string {
	return s.cfg.StoreType
}

// Check is the result of one readiness probe.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Ready probes the store and cache.
func (s *Storefront) Ready(ctx context.Context) []Check {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	checks := []Check{{Name: "api", Status: "ok"}}

	store := Check{Name: "store", Status: "ok"}
	if _, err := s.store.ReadRange(ctx, s.reader.Tables().Users); err != nil {
		store.Status, store.Error = "error", err.Error()
	}
	checks = append(checks, store)

	if s.cache != nil {
		c := Check{Name: "cache", Status: "ok"}
		if err := s.cache.Ping(ctx); err != nil {
			c.Status, c.Error = "error", err.Error()
		}
		checks = append(checks, c)
	}

	if pending := s.engine.PendingCount(); pending > 0 {
		s.log.Warn("commit plans awaiting reconciliation", zap.Int("pending", pending))
	}
	return checks
}
