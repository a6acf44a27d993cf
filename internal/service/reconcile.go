package service

import (
	"context"
	"sync"
	"time"

	"storefront-api/internal/fulfillment"

	"go.uber.org/zap"
)

// Reconciler drains unresolved commit plans.
type Reconciler interface {
	ReconcilePending(ctx context.Context) (fulfillment.ReconcileSummary, error)
	PendingCount() int
}

// ReconcileConfig holds configuration for the reconcile scheduler.
type ReconcileConfig struct {
	// Interval is how often pending plans are retried. Default: 30 seconds.
	Interval time.Duration
	// Timeout bounds one pass. Default: 1 minute.
	Timeout time.Duration
}

// ReconcileScheduler periodically retries commit plans left in an unknown state.
type ReconcileScheduler struct {
	reconciler Reconciler
	config     ReconcileConfig
	log        *zap.Logger

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
}

// NewReconcileScheduler creates a new scheduler.
func NewReconcileScheduler(r Reconciler, config ReconcileConfig, logger *zap.Logger) *ReconcileScheduler {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileScheduler{
		reconciler: r,
		config:     config,
		log:        logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the scheduler loop. Calling Start twice has no effect.
func (s *ReconcileScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.log.Info("reconcile scheduler started", zap.Duration("interval", s.config.Interval))
	go s.run()
}

func (s *ReconcileScheduler) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.reconciler.PendingCount() == 0 {
				continue
			}
			s.RunNow()
		case <-s.stopCh:
			s.log.Info("reconcile scheduler stopped")
			return
		}
	}
}

// RunNow performs one reconciliation pass.
func (s *ReconcileScheduler) RunNow() (fulfillment.ReconcileSummary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	sum, err := s.reconciler.ReconcilePending(ctx)
	if err != nil {
		s.log.Warn("reconcile pass failed", zap.Error(err))
		return sum, err
	}
	s.log.Info("reconcile pass finished",
		zap.Int("committed", sum.Committed),
		zap.Int("aborted", sum.Aborted),
		zap.Int("conflicts", sum.Conflicts),
		zap.Int("remaining", sum.Remaining),
	)
	return sum, nil
}

// Stop stops the scheduler and waits for the loop to exit.
func (s *ReconcileScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		s.isRunning = false
		s.mu.Unlock()

		close(s.stopCh)
		if running {
			<-s.doneCh
		}
	})
}
