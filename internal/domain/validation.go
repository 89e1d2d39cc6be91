package domain

import (
	"time"

	"github.com/google/uuid"
)

// Severity grades a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// RuleCategory separates single-entity checks from cross-source checks.
type RuleCategory string

const (
	RuleCategoryInternal    RuleCategory = "internal"
	RuleCategoryCrossSource RuleCategory = "cross_source"
)

// ValidationRule is one registered rule. Rows are seeded by migration;
// IsActive and Config are operator-editable.
type ValidationRule struct {
	RuleID    int            `json:"rule_id"`
	Name      string         `json:"name"`
	Category  RuleCategory   `json:"category"`
	Severity  Severity       `json:"severity"`
	IsActive  bool           `json:"is_active"`
	Config    map[string]any `json:"config,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ValidationRunStatus represents the state of one reconciliation run.
type ValidationRunStatus string

const (
	ValidationRunRunning   ValidationRunStatus = "running"
	ValidationRunCompleted ValidationRunStatus = "completed"
	ValidationRunFailed    ValidationRunStatus = "failed"
)

// ValidationRun is one execution of the reconciliation engine over a
// season (or a single game).
type ValidationRun struct {
	RunID         uuid.UUID           `json:"run_id"`
	SeasonID      *int                `json:"season_id"`
	Status        ValidationRunStatus `json:"status"`
	StartedAt     time.Time           `json:"started_at"`
	CompletedAt   *time.Time          `json:"completed_at"`
	RulesChecked  int                 `json:"rules_checked"`
	TotalPassed   int                 `json:"total_passed"`
	TotalFailed   int                 `json:"total_failed"`
	TotalWarnings int                 `json:"total_warnings"`
	Metadata      map[string]any      `json:"metadata,omitempty"`
}

// ValidationResult is one rule evaluation outcome within a run.
type ValidationResult struct {
	ResultID     int64          `json:"result_id"`
	RunID        uuid.UUID      `json:"run_id"`
	RuleID       int            `json:"rule_id"`
	GameID       *int64         `json:"game_id,omitempty"`
	Passed       bool           `json:"passed"`
	Severity     Severity       `json:"severity"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	SourceValues map[string]any `json:"source_values,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ResolutionStatus is the workflow state of a discrepancy.
type ResolutionStatus string

const (
	ResolutionOpen     ResolutionStatus = "open"
	ResolutionResolved ResolutionStatus = "resolved"
	ResolutionIgnored  ResolutionStatus = "ignored"
)

// Discrepancy is a persistent cross-source mismatch on one field of one
// entity. Unique on (rule_name, entity_type, entity_id, field_name).
type Discrepancy struct {
	DiscrepancyID  int64            `json:"discrepancy_id"`
	RuleName       string           `json:"rule_name"`
	EntityType     string           `json:"entity_type"`
	EntityID       string           `json:"entity_id"`
	FieldName      string           `json:"field_name"`
	Severity       Severity         `json:"severity"`
	SourceValues   map[string]any   `json:"source_values"`
	Difference     *float64         `json:"difference,omitempty"`
	Resolution     ResolutionStatus `json:"resolution"`
	FirstSeenAt    time.Time        `json:"first_seen_at"`
	LastSeenAt     time.Time        `json:"last_seen_at"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
	ResolutionNote *string          `json:"resolution_note,omitempty"`
}
