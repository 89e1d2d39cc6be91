// Package autovalidate bridges ingestion and reconciliation: the batch
// coordinator enqueues games whose download just finished, and a single
// background worker validates each one once enough data has landed.
// The queue is bounded and non-blocking on the producer side; a full
// queue drops the game with a warning rather than stalling a batch.
package autovalidate

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rinkdata/rink/internal/domain"
)

// Dispatcher runs one validation pass. Implemented by *validation.Engine.
type Dispatcher interface {
	Run(ctx context.Context, runID uuid.UUID, season int, gameID *int64) error
}

// PresenceStore answers which parsed entities exist for a game.
// Implemented by *postgres.GameStore.
type PresenceStore interface {
	Presence(ctx context.Context, gameID int64) (domain.GameDataPresence, error)
}

// Job is one queued validation request.
type Job struct {
	GameID   int64
	SeasonID int
	Types    []domain.SourceType

	attempt int
}

const (
	defaultQueueSize = 256
	defaultDelay     = 2 * time.Second
	retryBase        = 5 * time.Second
	maxAttempts      = 3
)

// Options tunes the worker. Zero values take the defaults.
type Options struct {
	QueueSize int
	// Delay is the coalescing pause between dequeue and dispatch, giving
	// sibling sources a moment to land their data for the same game.
	Delay time.Duration
	// RetryBase scales the linear backoff between dispatch attempts.
	RetryBase time.Duration
}

// Worker consumes the queue. One worker per process.
type Worker struct {
	engine    Dispatcher
	store     PresenceStore
	delay     time.Duration
	retryBase time.Duration
	queue     chan Job

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker builds a stopped worker.
func NewWorker(engine Dispatcher, store PresenceStore, opts Options) *Worker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Delay <= 0 {
		opts.Delay = defaultDelay
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = retryBase
	}
	return &Worker{
		engine:    engine,
		store:     store,
		delay:     opts.Delay,
		retryBase: opts.RetryBase,
		queue:     make(chan Job, opts.QueueSize),
	}
}

// EnqueueGame queues one game for validation. Never blocks; false means
// the queue was full and the game was dropped. Satisfies the batch
// coordinator's ValidationQueue.
func (w *Worker) EnqueueGame(gameID int64, seasonID int, sourceType domain.SourceType) bool {
	return w.enqueue(Job{
		GameID:   gameID,
		SeasonID: seasonID,
		Types:    []domain.SourceType{sourceType},
	})
}

func (w *Worker) enqueue(job Job) bool {
	select {
	case w.queue <- job:
		return true
	default:
		slog.Warn("validation queue full, dropping game",
			"game_id", job.GameID, "season", job.SeasonID)
		return false
	}
}

// Start launches the worker loop. Idempotent: a running worker is left
// alone.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)
	slog.Info("auto-validation worker started")
}

// Stop cancels the loop and waits for the in-flight dispatch to return.
// Idempotent.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	slog.Info("auto-validation worker stopped")
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.queue:
			// Coalesce: sibling sources for the same game usually land
			// within moments of each other.
			if !sleepCtx(ctx, w.delay) {
				return
			}
			w.dispatch(ctx, job)
		}
	}
}

// dispatch validates one game. Panics in a rule or store are contained
// here so a poison job cannot kill the worker.
func (w *Worker) dispatch(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("validation dispatch panicked", "game_id", job.GameID, "panic", r)
		}
	}()

	presence, err := w.store.Presence(ctx, job.GameID)
	if err != nil {
		w.retry(ctx, job, err)
		return
	}
	if !sufficient(presence, job.Types) {
		slog.Debug("game not ready for validation, dropping",
			"game_id", job.GameID, "presence", presence)
		return
	}

	runID := uuid.New()
	if err := w.engine.Run(ctx, runID, job.SeasonID, &job.GameID); err != nil {
		w.retry(ctx, job, err)
		return
	}
	slog.Info("auto-validation dispatched", "game_id", job.GameID, "run_id", runID)
}

// retry requeues a failed job with linear backoff, abandoning it after
// the attempt budget. The timer runs off-loop so one flaky game does not
// stall the queue.
func (w *Worker) retry(ctx context.Context, job Job, cause error) {
	job.attempt++
	if job.attempt >= maxAttempts {
		slog.Error("validation abandoned after retries",
			"game_id", job.GameID, "attempts", job.attempt, "error", cause)
		return
	}
	backoff := time.Duration(job.attempt) * w.retryBase
	slog.Warn("validation dispatch failed, will retry",
		"game_id", job.GameID, "attempt", job.attempt, "backoff", backoff, "error", cause)
	go func() {
		if !sleepCtx(ctx, backoff) {
			return
		}
		w.enqueue(job)
	}()
}

// sufficient reports whether a game has the data its requested validator
// families need: the full JSON entity set always, plus the GS report
// when an HTML source triggered the job.
func sufficient(p domain.GameDataPresence, types []domain.SourceType) bool {
	if !p.Boxscore || !p.PlayByPlay || !p.ShiftChart {
		return false
	}
	for _, t := range types {
		if t == domain.SourceTypeHTMLReport && !slices.Contains(p.ReportCodes, string(domain.ReportGameSummary)) {
			return false
		}
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
