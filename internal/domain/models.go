// Package domain defines the core business types shared across rinkd.
// These types represent the engine's data model — sources, batches,
// per-item progress, parsed game entities, and validation records. They
// carry json tags because nested collections (skater lines, play events,
// shifts) are persisted as JSONB and the same shapes come back out of the
// store.
package domain

import (
	"errors"
	"time"
)

// ErrAlreadyExists indicates a create operation conflicted with an existing row.
var ErrAlreadyExists = errors.New("resource already exists")

// SourceType classifies how a source's payloads are obtained and parsed.
type SourceType string

const (
	SourceTypeAPIJSON     SourceType = "api_json"
	SourceTypeHTMLReport  SourceType = "html_report"
	SourceTypeMixedScrape SourceType = "mixed_scrape"
)

// ValidSourceType checks if a string is a known source type.
func ValidSourceType(s string) bool {
	switch SourceType(s) {
	case SourceTypeAPIJSON, SourceTypeHTMLReport, SourceTypeMixedScrape:
		return true
	}
	return false
}

// Source is one external data provider. Rows are seeded by migration and
// immutable afterwards; SourceID values are stable across deployments.
type Source struct {
	SourceID  int16      `json:"source_id"`
	Name      string     `json:"name"`
	Type      SourceType `json:"type"`
	CreatedAt time.Time  `json:"created_at"`
}

// BatchStatus represents the state of one (source, season) ingestion run.
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal batches are never
// transitioned again.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusCancelled:
		return true
	}
	return false
}

// Batch is one ingestion run over a (source, season) pair.
type Batch struct {
	BatchID      int64          `json:"batch_id"`
	SourceID     int16          `json:"source_id"`
	SeasonID     *int           `json:"season_id"`
	Status       BatchStatus    `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at"`
	ItemsTotal   *int           `json:"items_total"`
	ItemsSuccess int            `json:"items_success"`
	ItemsFailed  int            `json:"items_failed"`
	ItemsSkipped int            `json:"items_skipped"`
	ErrorMessage *string        `json:"error_message"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ProgressStatus represents the state of one work item within a source.
type ProgressStatus string

const (
	ProgressPending    ProgressStatus = "pending"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressSuccess    ProgressStatus = "success"
	ProgressFailed     ProgressStatus = "failed"
	ProgressSkipped    ProgressStatus = "skipped"
)

// Terminal reports whether an entry in this status needs no further work.
// Failed entries are not terminal: they are eligible for reset and retry.
func (s ProgressStatus) Terminal() bool {
	return s == ProgressSuccess || s == ProgressSkipped
}

// ProgressEntry tracks download state for one item of one source.
// Unique on (source_id, season_id, item_key) with NULL season_id distinct
// per item_key.
type ProgressEntry struct {
	ProgressID        int64          `json:"progress_id"`
	SourceID          int16          `json:"source_id"`
	SeasonID          *int           `json:"season_id"`
	ItemKey           string         `json:"item_key"`
	Status            ProgressStatus `json:"status"`
	Attempts          int            `json:"attempts"`
	BatchID           *int64         `json:"batch_id"`
	LastAttemptAt     *time.Time     `json:"last_attempt_at"`
	CompletedAt       *time.Time     `json:"completed_at"`
	ErrorMessage      *string        `json:"error_message"`
	ResponseSizeBytes *int           `json:"response_size_bytes"`
	ResponseTimeMs    *int           `json:"response_time_ms"`
	CreatedAt         time.Time      `json:"created_at"`
}

// BatchStats aggregates progress-entry statuses for one batch.
type BatchStats struct {
	Pending int `json:"pending"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}
