package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of student action a behavior event records.
type EventType string

const (
	EventTypeAssignmentSubmit   EventType = "ASSIGNMENT_SUBMIT"
	EventTypeAssignmentResubmit EventType = "ASSIGNMENT_RESUBMIT"
	EventTypeFeedbackView       EventType = "FEEDBACK_VIEW"
	EventTypeMaterialView       EventType = "MATERIAL_VIEW"
	EventTypeQuizAttempt        EventType = "QUIZ_ATTEMPT"
	EventTypePostCreate         EventType = "POST_CREATE"
	EventTypeCommentCreate      EventType = "COMMENT_CREATE"
)

// AllEventTypes returns the closed set of valid event types.
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeAssignmentSubmit,
		EventTypeAssignmentResubmit,
		EventTypeFeedbackView,
		EventTypeMaterialView,
		EventTypeQuizAttempt,
		EventTypePostCreate,
		EventTypeCommentCreate,
	}
}

// Valid reports whether the event type is a member of the closed enum.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeAssignmentSubmit, EventTypeAssignmentResubmit, EventTypeFeedbackView,
		EventTypeMaterialView, EventTypeQuizAttempt, EventTypePostCreate, EventTypeCommentCreate:
		return true
	default:
		return false
	}
}

// BehaviorEvent is an immutable record of a single observed student action.
// Events are append-only: rows are never updated or deleted, and duplicates
// are legal (each row is an occurrence, not a state).
type BehaviorEvent struct {
	ID          uuid.UUID      `json:"id"`
	StudentID   uuid.UUID      `json:"student_id"`
	CourseID    *uuid.UUID     `json:"course_id,omitempty"`
	Type        EventType      `json:"event_type"`
	RelatedType string         `json:"related_type"`
	RelatedID   *uuid.UUID     `json:"related_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
	CreatedAt   time.Time      `json:"created_at"`
}
