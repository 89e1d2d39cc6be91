// Package tracker mirrors per-item download progress in memory for one
// batch run. It writes every transition through to the progress store,
// keeps an in-memory view so skip decisions need no round trip, and emits
// a ProgressEvent per transition to an optional callback (used by the
// batch coordinator for counters and logging).
//
// A Tracker is single-owner: one batch run goroutine drives it.
package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rinkdata/rink/internal/domain"
)

// Store is the persistence surface the tracker writes through.
// Implemented by *postgres.ProgressStore.
type Store interface {
	UpsertProgress(ctx context.Context, sourceID int16, itemKey string, seasonID *int, batchID *int64, status domain.ProgressStatus) (int64, error)
	GetAll(ctx context.Context, sourceID int16, seasonID *int) ([]domain.ProgressEntry, error)
	IncrementAttempts(ctx context.Context, progressID int64) (int, error)
	MarkSuccess(ctx context.Context, progressID int64, responseSizeBytes, responseTimeMs *int) error
	MarkFailed(ctx context.Context, progressID int64, errorMessage string) error
	MarkSkipped(ctx context.Context, progressID int64, reason *string) error
}

// ProgressEvent describes one item transition.
type ProgressEvent struct {
	Source   string
	ItemKey  string
	Status   domain.ProgressStatus
	Attempts int
	Error    string // set on failed transitions
}

// Tracker tracks one (source, season) scope for one batch.
type Tracker struct {
	store    Store
	sourceID int16
	source   string
	seasonID *int
	batchID  *int64
	onEvent  func(ProgressEvent)

	ids      map[string]int64
	statuses map[string]domain.ProgressStatus
	attempts map[string]int
}

// New creates a Tracker scoped to (source, season) writing under batchID.
// onEvent may be nil.
func New(store Store, sourceID int16, sourceName string, seasonID *int, batchID *int64, onEvent func(ProgressEvent)) *Tracker {
	return &Tracker{
		store:    store,
		sourceID: sourceID,
		source:   sourceName,
		seasonID: seasonID,
		batchID:  batchID,
		onEvent:  onEvent,
		ids:      make(map[string]int64),
		statuses: make(map[string]domain.ProgressStatus),
		attempts: make(map[string]int),
	}
}

// Load pulls the scope's existing entries into memory. Called once at
// batch start; items first seen mid-run register lazily on Start/Skip.
func (t *Tracker) Load(ctx context.Context) error {
	entries, err := t.store.GetAll(ctx, t.sourceID, t.seasonID)
	if err != nil {
		return fmt.Errorf("tracker: load %s: %w", t.source, err)
	}
	for i := range entries {
		e := &entries[i]
		t.ids[e.ItemKey] = e.ProgressID
		t.statuses[e.ItemKey] = e.Status
		t.attempts[e.ItemKey] = e.Attempts
	}
	return nil
}

// ShouldDownload reports whether an item still needs downloading: true
// for pending, failed, and never-seen items; false once landed (success
// or skipped).
func (t *Tracker) ShouldDownload(itemKey string) bool {
	status, ok := t.statuses[itemKey]
	if !ok {
		return true
	}
	return !status.Terminal()
}

// Status returns the in-memory status of an item and whether it is known.
func (t *Tracker) Status(itemKey string) (domain.ProgressStatus, bool) {
	s, ok := t.statuses[itemKey]
	return s, ok
}

// Attempts returns the in-memory attempt count of an item.
func (t *Tracker) Attempts(itemKey string) int {
	return t.attempts[itemKey]
}

// ensure registers the item in the store if this run has not touched it
// yet, and returns its progress id.
func (t *Tracker) ensure(ctx context.Context, itemKey string) (int64, error) {
	if id, ok := t.ids[itemKey]; ok {
		return id, nil
	}
	id, err := t.store.UpsertProgress(ctx, t.sourceID, itemKey, t.seasonID, t.batchID, domain.ProgressPending)
	if err != nil {
		return 0, fmt.Errorf("tracker: register %q: %w", itemKey, err)
	}
	t.ids[itemKey] = id
	t.statuses[itemKey] = domain.ProgressPending
	return id, nil
}

// Start opens an attempt: associates the entry with this batch, bumps the
// attempt counter, and moves it to in_progress.
func (t *Tracker) Start(ctx context.Context, itemKey string) error {
	id, known := t.ids[itemKey]
	if !known {
		var err error
		if id, err = t.ensure(ctx, itemKey); err != nil {
			return err
		}
	} else {
		// Re-associate entries loaded from earlier batches with this one.
		if _, err := t.store.UpsertProgress(ctx, t.sourceID, itemKey, t.seasonID, t.batchID, domain.ProgressPending); err != nil {
			return fmt.Errorf("tracker: associate %q: %w", itemKey, err)
		}
	}
	attempts, err := t.store.IncrementAttempts(ctx, id)
	if err != nil {
		return fmt.Errorf("tracker: start %q: %w", itemKey, err)
	}
	t.statuses[itemKey] = domain.ProgressInProgress
	t.attempts[itemKey] = attempts
	t.emit(ProgressEvent{Source: t.source, ItemKey: itemKey, Status: domain.ProgressInProgress, Attempts: attempts})
	return nil
}

// RecordRetries books extra download attempts for an item beyond the one
// Start opened, so the stored count matches the requests actually sent.
func (t *Tracker) RecordRetries(ctx context.Context, itemKey string, extra int) error {
	if extra <= 0 {
		return nil
	}
	id, err := t.ensure(ctx, itemKey)
	if err != nil {
		return err
	}
	attempts := t.attempts[itemKey]
	for i := 0; i < extra; i++ {
		if attempts, err = t.store.IncrementAttempts(ctx, id); err != nil {
			return fmt.Errorf("tracker: record retries %q: %w", itemKey, err)
		}
	}
	t.attempts[itemKey] = attempts
	return nil
}

// Complete finalises an item as successfully downloaded.
func (t *Tracker) Complete(ctx context.Context, itemKey string, responseSizeBytes, responseTimeMs *int) error {
	id, err := t.ensure(ctx, itemKey)
	if err != nil {
		return err
	}
	if err := t.store.MarkSuccess(ctx, id, responseSizeBytes, responseTimeMs); err != nil {
		return fmt.Errorf("tracker: complete %q: %w", itemKey, err)
	}
	t.statuses[itemKey] = domain.ProgressSuccess
	t.emit(ProgressEvent{Source: t.source, ItemKey: itemKey, Status: domain.ProgressSuccess, Attempts: t.attempts[itemKey]})
	return nil
}

// Fail records a failed attempt with its error message.
func (t *Tracker) Fail(ctx context.Context, itemKey string, errorMessage string) error {
	id, err := t.ensure(ctx, itemKey)
	if err != nil {
		return err
	}
	if err := t.store.MarkFailed(ctx, id, errorMessage); err != nil {
		return fmt.Errorf("tracker: fail %q: %w", itemKey, err)
	}
	t.statuses[itemKey] = domain.ProgressFailed
	t.emit(ProgressEvent{Source: t.source, ItemKey: itemKey, Status: domain.ProgressFailed, Attempts: t.attempts[itemKey], Error: errorMessage})
	return nil
}

// Skip marks an item as intentionally not downloaded. Like Start it
// re-associates known entries with this batch, so batch_id always names
// the batch that last touched the item.
func (t *Tracker) Skip(ctx context.Context, itemKey string, reason *string) error {
	id, known := t.ids[itemKey]
	if !known {
		var err error
		if id, err = t.ensure(ctx, itemKey); err != nil {
			return err
		}
	} else {
		if _, err := t.store.UpsertProgress(ctx, t.sourceID, itemKey, t.seasonID, t.batchID, domain.ProgressPending); err != nil {
			return fmt.Errorf("tracker: associate %q: %w", itemKey, err)
		}
	}
	if err := t.store.MarkSkipped(ctx, id, reason); err != nil {
		return fmt.Errorf("tracker: skip %q: %w", itemKey, err)
	}
	// Landed entries keep their status, mirroring the store's guard.
	if !t.statuses[itemKey].Terminal() {
		t.statuses[itemKey] = domain.ProgressSkipped
	}
	ev := ProgressEvent{Source: t.source, ItemKey: itemKey, Status: domain.ProgressSkipped, Attempts: t.attempts[itemKey]}
	if reason != nil {
		ev.Error = *reason
	}
	t.emit(ev)
	return nil
}

// emit delivers an event to the callback. A panicking callback is
// recovered and logged so it cannot take down the run loop.
func (t *Tracker) emit(ev ProgressEvent) {
	if t.onEvent == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tracker: progress callback panicked",
				"source", t.source, "item", ev.ItemKey, "panic", r)
		}
	}()
	t.onEvent(ev)
}
