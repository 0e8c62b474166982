package models

import (
	"time"

	"github.com/google/uuid"
)

// InsightSchemaVersion is bumped whenever the narrative schema changes.
const InsightSchemaVersion = 1

// InsightStatus is the terminal status of one generation attempt.
type InsightStatus string

const (
	// InsightStatusSuccess means the model returned a narrative that passed
	// schema validation.
	InsightStatusSuccess InsightStatus = "success"
	// InsightStatusFailed means the model call errored or its output violated
	// the narrative schema (including any score-like field).
	InsightStatusFailed InsightStatus = "failed"
	// InsightStatusPartial means generation was short-circuited, currently
	// only because the evidence snapshot contained zero events (NO_EVIDENCE).
	InsightStatusPartial InsightStatus = "partial"
)

// Valid reports whether the status is a member of the closed enum.
func (s InsightStatus) Valid() bool {
	switch s {
	case InsightStatusSuccess, InsightStatusFailed, InsightStatusPartial:
		return true
	default:
		return false
	}
}

// InsightNarrative is the strict schema an AI response must satisfy. Every
// field is prose; the schema deliberately has no numeric fields so that any
// score, percentage, or grade in a response is a schema violation.
type InsightNarrative struct {
	Headline     string   `json:"headline"`
	Observations []string `json:"observations"`
	Suggestions  []string `json:"suggestions,omitempty"`
}

// BehaviorInsight is an immutable record of one generation attempt. It
// references exactly the snapshot used as evidence. Multiple rows may
// reference the same snapshot (regeneration); the latest by GeneratedAt is
// authoritative for reads.
type BehaviorInsight struct {
	ID            uuid.UUID         `json:"id"`
	SchemaVersion int               `json:"schema_version"`
	SnapshotID    uuid.UUID         `json:"snapshot_id"`
	StudentID     uuid.UUID         `json:"student_id"`
	CourseID      *uuid.UUID        `json:"course_id,omitempty"`
	RangeKey      string            `json:"range_key"`
	Model         string            `json:"model"`
	PromptVersion string            `json:"prompt_version"`
	Status        InsightStatus     `json:"status"`
	Narrative     *InsightNarrative `json:"narrative,omitempty"`
	ErrorMessage  *string           `json:"error_message,omitempty"`
	GeneratedAt   time.Time         `json:"generated_at"`
	CreatedAt     time.Time         `json:"created_at"`
}
