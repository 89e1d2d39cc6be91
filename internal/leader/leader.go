// Package leader elects one rinkd replica to run the background workers
// (scheduler, retention) so scheduled batches are never duplicated. The
// election is a Postgres advisory lock: whoever holds it leads, and the
// lock dies with its session, so a crashed leader frees the slot for the
// next retry tick on another replica.
package leader

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AdvisoryLockID keys the election lock. Distinct from the migration
// lock (779415198).
const AdvisoryLockID int64 = 7526700533049

// RetryInterval is the default pause between acquisition attempts on a
// non-leader replica.
const RetryInterval = 30 * time.Second

// TryLockFunc attempts pg_try_advisory_lock(AdvisoryLockID) and reports
// whether this session now holds it. Production wires it to
// pool.QueryRow("SELECT pg_try_advisory_lock($1)", ...).
type TryLockFunc func(ctx context.Context) (acquired bool, err error)

// OnElected starts the leader-only workers and returns the function
// that stops them when leadership ends.
type OnElected func(ctx context.Context) (stop func())

// Elector runs the election loop for one replica.
type Elector struct {
	tryLock       TryLockFunc
	retryInterval time.Duration
	onElected     OnElected

	mu          sync.Mutex
	isLeader    bool
	stopWorkers func()

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an Elector. onElected runs at most once per Start, with a
// context that stays valid while leadership holds.
func New(tryLock TryLockFunc, retryInterval time.Duration, onElected OnElected) *Elector {
	return &Elector{
		tryLock:       tryLock,
		retryInterval: retryInterval,
		onElected:     onElected,
	}
}

// Start launches the election loop: one immediate attempt, then one per
// retry interval until ctx ends or Stop is called.
func (e *Elector) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		e.campaign(ctx)

		ticker := time.NewTicker(e.retryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.resign()
				return
			case <-ticker.C:
				e.campaign(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for it, stopping the workers first when
// this replica leads.
func (e *Elector) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		<-e.done
	}
}

// IsLeader reports whether this replica currently holds the lock.
func (e *Elector) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLeader
}

func (e *Elector) campaign(ctx context.Context) {
	e.mu.Lock()
	leading := e.isLeader
	e.mu.Unlock()
	if leading {
		return
	}

	acquired, err := e.tryLock(ctx)
	if err != nil {
		slog.Error("leader: advisory lock attempt failed", "error", err)
		return
	}
	if !acquired {
		slog.Debug("leader: lock held elsewhere")
		return
	}
	slog.Info("leader: lock acquired, starting background workers")

	e.mu.Lock()
	e.isLeader = true
	e.mu.Unlock()

	// onElected runs unlocked: it may start goroutines that call back
	// into IsLeader.
	stop := e.onElected(ctx)

	e.mu.Lock()
	e.stopWorkers = stop
	e.mu.Unlock()
}

// resign stops the workers. The advisory lock itself is released by
// Postgres when the session ends.
func (e *Elector) resign() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isLeader {
		return
	}
	slog.Info("leader: stepping down, stopping background workers")
	if e.stopWorkers != nil {
		e.stopWorkers()
		e.stopWorkers = nil
	}
	e.isLeader = false
}
