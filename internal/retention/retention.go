// Package retention is the background daemon that prunes old rows:
// terminal ingestion batches and finished validation runs past their
// configured age. It ticks on an interval; each task is isolated so a
// failure in one does not prevent the others from running.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/rinkdata/rink/internal/config"
)

// BatchPruner deletes terminal batches older than the cutoff.
// Implemented by *postgres.BatchStore.
type BatchPruner interface {
	DeleteTerminalBatchesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// RunPruner deletes finished validation runs older than the cutoff.
// Implemented by *postgres.ValidationStore.
type RunPruner interface {
	DeleteRunsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// Status reports what one sweep removed.
type Status struct {
	BatchesPruned        int64 `json:"batches_pruned"`
	ValidationRunsPruned int64 `json:"validation_runs_pruned"`
}

// Reaper enforces the retention policy.
type Reaper struct {
	cfg     config.RetentionConfig
	batches BatchPruner
	runs    RunPruner
	now     func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped Reaper.
func New(cfg config.RetentionConfig, batches BatchPruner, runs RunPruner) *Reaper {
	return &Reaper{cfg: cfg, batches: batches, runs: runs, now: time.Now}
}

// interval returns the ticker duration, clamping to a minimum of one
// minute with a default of one hour.
func (r *Reaper) interval() time.Duration {
	interval := time.Duration(r.cfg.IntervalMinutes) * time.Minute
	if interval < time.Minute {
		interval = time.Hour
	}
	return interval
}

// Start begins the background goroutine.
func (r *Reaper) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
	slog.Info("retention reaper started",
		"interval", r.interval(),
		"batch_max_age_days", r.cfg.BatchMaxAgeDays,
		"validation_run_max_age_days", r.cfg.ValidationRunMaxAgeDays)
}

// Stop cancels the background goroutine and waits for it to finish.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

// RunNow triggers one sweep immediately and returns its stats.
func (r *Reaper) RunNow(ctx context.Context) Status {
	return r.tick(ctx)
}

func (r *Reaper) tick(ctx context.Context) Status {
	now := r.now()
	var status Status

	if days := r.cfg.BatchMaxAgeDays; days > 0 {
		cutoff := now.AddDate(0, 0, -days)
		n, err := r.batches.DeleteTerminalBatchesBefore(ctx, cutoff)
		if err != nil {
			slog.Error("retention: prune batches", "error", err)
		} else if n > 0 {
			slog.Info("retention: pruned batches", "count", n, "cutoff", cutoff)
		}
		status.BatchesPruned = n
	}

	if days := r.cfg.ValidationRunMaxAgeDays; days > 0 {
		cutoff := now.AddDate(0, 0, -days)
		n, err := r.runs.DeleteRunsBefore(ctx, cutoff)
		if err != nil {
			slog.Error("retention: prune validation runs", "error", err)
		} else if n > 0 {
			slog.Info("retention: pruned validation runs", "count", n, "cutoff", cutoff)
		}
		status.ValidationRunsPruned = n
	}

	return status
}
