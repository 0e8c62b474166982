package models

import (
	"time"

	"github.com/google/uuid"
)

// SummarySchemaVersion is bumped whenever the shape or meaning of
// SummaryMetrics changes. Snapshots with an older schema version are
// ignored by cache lookups and rebuilt on demand.
const SummarySchemaVersion = 1

// SummaryMetrics is the fixed, deterministic aggregate computed over a bounded
// event window. It is a pure function of the events in [PeriodFrom, PeriodTo)
// and contains nothing AI-derived.
type SummaryMetrics struct {
	TotalEvents        int               `json:"total_events"`
	EventTypeCounts    map[EventType]int `json:"event_type_counts"`
	DistinctActiveDays int               `json:"distinct_active_days"`
	ResubmissionRatio  float64           `json:"resubmission_ratio"`
	FeedbackViewCount  int               `json:"feedback_view_count"`
	FirstEventAt       *time.Time        `json:"first_event_at,omitempty"`
	LastEventAt        *time.Time        `json:"last_event_at,omitempty"`
}

// BehaviorSummarySnapshot is an immutable cached aggregate over a bounded
// event window, scoped by (student, course, range key, schema version).
// A fresh aggregation always inserts a new row; existing rows are never
// mutated. Readers take the most recent row by GeneratedAt.
type BehaviorSummarySnapshot struct {
	ID                 uuid.UUID      `json:"id"`
	SchemaVersion      int            `json:"schema_version"`
	StudentID          uuid.UUID      `json:"student_id"`
	CourseID           *uuid.UUID     `json:"course_id,omitempty"`
	RangeKey           string         `json:"range_key"`
	PeriodFrom         time.Time      `json:"period_from"`
	PeriodTo           time.Time      `json:"period_to"`
	InputEventCount    int            `json:"input_event_count"`
	EventTypesIncluded []EventType    `json:"event_types_included"`
	Summary            SummaryMetrics `json:"summary"`
	GeneratedAt        time.Time      `json:"generated_at"`
	CreatedAt          time.Time      `json:"created_at"`
}

// HasEvidence reports whether the snapshot aggregated at least one event.
func (s *BehaviorSummarySnapshot) HasEvidence() bool {
	return s.InputEventCount > 0
}
