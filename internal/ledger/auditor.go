package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/office-hub/internal/metrics"
	"github.com/terra-clan/office-hub/internal/storage"
)

// Auditor periodically rebuilds running totals from payments and logs any
// drift it corrects.
type Auditor struct {
	store    storage.LedgerStore
	interval time.Duration
	done     chan struct{}
}

// NewAuditor creates a new audit worker
func NewAuditor(store storage.LedgerStore, interval time.Duration) *Auditor {
	if interval <= 0 {
		interval = time.Hour
	}

	return &Auditor{
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the audit worker in a goroutine
func (a *Auditor) Start(ctx context.Context) {
	go a.run(ctx)
}

// Done is closed once the worker has stopped
func (a *Auditor) Done() <-chan struct{} {
	return a.done
}

// run is the main loop for the audit worker
func (a *Auditor) run(ctx context.Context) {
	defer close(a.done)
	slog.Info("ledger auditor started", "interval", a.interval)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	// Run immediately on start
	a.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("ledger auditor stopped")
			return
		case <-ticker.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce performs one audit cycle and returns the corrections made
func (a *Auditor) RunOnce(ctx context.Context) ([]storage.Correction, error) {
	slog.Debug("running ledger audit")

	corrections, err := a.store.RecomputeCollected(ctx)
	if err != nil {
		slog.Error("failed to recompute collected amounts", "error", err)
		return nil, err
	}

	if len(corrections) == 0 {
		slog.Debug("ledger consistent")
		return nil, nil
	}

	for _, c := range corrections {
		slog.Warn("running total corrected",
			"collection_id", c.CollectionID,
			"before", c.Before.String(),
			"after", c.After.String(),
		)
	}
	metrics.LedgerCorrections.Add(float64(len(corrections)))

	return corrections, nil
}
