// Package worker holds the orchestrator's background loops.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/observability"
	"github.com/velesbank/moneymove/internal/records"
)

// Sweeper periodically surfaces operation records stuck in PENDING. A record
// goes stale when the orchestrator never learned the outcome of a ledger
// call; the sweep does not guess the outcome, it flags the record for manual
// reconciliation through logs and metrics.
type Sweeper struct {
	store      records.Store
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
}

func NewSweeper(store records.Store, interval, staleAfter time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:      store,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Start blocks and sweeps at the configured interval.
func (w *Sweeper) Start(ctx context.Context) {
	w.logger.Info("record sweeper starting",
		zap.Duration("interval", w.interval), zap.Duration("stale_after", w.staleAfter))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("record sweeper context canceled")
			return
		case <-w.stopCh:
			w.logger.Info("record sweeper stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running sweep loop.
func (w *Sweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the sweeper in a goroutine and returns a stop function.
func (w *Sweeper) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *Sweeper) runOnce(ctx context.Context) {
	stale, err := w.store.StalePending(ctx, w.staleAfter)
	if err != nil {
		observability.IncrementWorkerRun("record_sweeper", "failed")
		w.logger.Error("sweep stale records", zap.Error(err))
		return
	}

	observability.SetStaleRecords(len(stale))
	for _, rec := range stale {
		w.logger.Warn("operation record stuck in PENDING",
			zap.String("token", rec.Token),
			zap.String("kind", rec.Kind),
			zap.String("amount", rec.Amount.StringFixed(2)),
			zap.String("currency", rec.Currency),
			zap.Time("updated_at", rec.UpdatedAt),
		)
	}
	observability.IncrementWorkerRun("record_sweeper", "success")
}
