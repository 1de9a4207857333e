package lending

import (
	"context"
	"errors"
	"time"

	"github.com/erazemk/izposoja/internal/metrics"
	"github.com/erazemk/izposoja/internal/store"
)

// Reconciler applies time-based transitions: borrows past due become OVERDUE
// and pending reservations past expiry become EXPIRED. Each record is its own
// unit, so ticks may overlap and a failing record never stops the batch.
type Reconciler struct {
	e *Engine
}

// TickResult counts what a tick changed.
type TickResult struct {
	Overdue int `json:"overdue"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// Tick runs one reconciliation pass. It only returns an error if the
// candidate records could not be listed.
func (r *Reconciler) Tick(ctx context.Context) (TickResult, error) {
	start := time.Now()
	defer func() { metrics.ReconcilerDuration.Observe(time.Since(start).Seconds()) }()

	var res TickResult
	now := r.e.Now()

	due, err := store.ListBorrowsDueBefore(ctx, r.e.db, now)
	if err != nil {
		return res, err
	}
	for _, id := range due {
		_, changed, err := r.e.Borrows.MarkOverdue(ctx, id)
		switch {
		case err == nil && changed:
			res.Overdue++
			metrics.ReconcilerRecords.WithLabelValues("overdue", "ok").Inc()
		case err == nil, skippable(err):
			// Returned or renewed since it was listed.
		default:
			res.Failed++
			metrics.ReconcilerRecords.WithLabelValues("overdue", "failed").Inc()
			r.e.logger.Error("marking borrow overdue", "borrow", id, "error", err)
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}

	expired, err := store.ListExpiredPending(ctx, r.e.db, now)
	if err != nil {
		return res, err
	}
	for _, id := range expired {
		_, err := r.e.Reservations.Expire(ctx, id)
		switch {
		case err == nil:
			res.Expired++
			metrics.ReconcilerRecords.WithLabelValues("expired", "ok").Inc()
		case skippable(err):
		default:
			res.Failed++
			metrics.ReconcilerRecords.WithLabelValues("expired", "failed").Inc()
			r.e.logger.Error("expiring reservation", "reservation", id, "error", err)
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}

	if res.Overdue > 0 || res.Expired > 0 || res.Failed > 0 {
		r.e.logger.Info("reconciler tick", "overdue", res.Overdue, "expired", res.Expired, "failed", res.Failed)
	}
	return res, nil
}

// skippable reports whether a record changed state between listing and
// processing, which is not a failure.
func skippable(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrBadRequest)
}

// Run ticks every interval until ctx is cancelled. The first tick runs
// immediately.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	r.e.logger.Info("reconciler started", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			r.e.logger.Error("reconciler tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.e.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
		}
	}
}
