package analytics

import (
	"context"
	"time"

	"github.com/edulane/insights-api/internal/database"
	"github.com/edulane/insights-api/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordInput describes a single observed student action.
type RecordInput struct {
	StudentID   uuid.UUID
	CourseID    *uuid.UUID
	Type        models.EventType
	RelatedType string
	RelatedID   *uuid.UUID
	Metadata    map[string]any
	OccurredAt  time.Time
}

// Recorder writes behavior events on a best-effort basis. Storage failures
// are logged and swallowed: the business action that triggered the event
// (a submission, a feedback view) must succeed regardless.
type Recorder struct {
	events database.EventRepositoryInterface
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder creates a new event recorder.
func NewRecorder(events database.EventRepositoryInterface, logger *zap.Logger) *Recorder {
	return &Recorder{
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends a behavior event. It never returns an error; callers only
// observe completion. Invalid event types and storage failures are logged
// under event_record_failed.
func (r *Recorder) Record(ctx context.Context, input RecordInput) {
	if !input.Type.Valid() {
		r.logger.Warn("event_record_failed",
			zap.String("reason", "invalid_event_type"),
			zap.String("event_type", string(input.Type)),
			zap.String("student_id", input.StudentID.String()),
		)
		return
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = r.now()
	}

	event := &models.BehaviorEvent{
		ID:          uuid.New(),
		StudentID:   input.StudentID,
		CourseID:    input.CourseID,
		Type:        input.Type,
		RelatedType: input.RelatedType,
		RelatedID:   input.RelatedID,
		Metadata:    input.Metadata,
		OccurredAt:  occurredAt,
	}

	if err := r.events.Append(ctx, event); err != nil {
		r.logger.Error("event_record_failed",
			zap.String("reason", "storage_error"),
			zap.String("event_type", string(input.Type)),
			zap.String("student_id", input.StudentID.String()),
			zap.Error(err),
		)
		return
	}

	r.logger.Debug("event_recorded",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.Type)),
		zap.String("student_id", event.StudentID.String()),
	)
}
