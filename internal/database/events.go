package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edulane/insights-api/internal/models"
	"github.com/google/uuid"
)

// EventRepository handles behavior event database operations. The table is
// append-only: there are no update or delete operations by design.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts a behavior event row.
func (r *EventRepository) Append(ctx context.Context, event *models.BehaviorEvent) error {
	query := `
		INSERT INTO behavior_events (id, student_id, course_id, event_type, related_type, related_id, metadata, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	err = r.db.QueryRowContext(ctx, query,
		event.ID,
		event.StudentID,
		nullUUID(event.CourseID),
		event.Type,
		event.RelatedType,
		nullUUID(event.RelatedID),
		metadataJSON,
		event.OccurredAt,
		time.Now(),
	).Scan(&event.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append behavior event: %w", err)
	}

	return nil
}

// QueryByStudentCourseRange loads events for (student, course) with occurredAt
// in the half-open interval [from, to), oldest first, capped at limit rows.
// A nil courseID matches only events recorded without a course scope.
func (r *EventRepository) QueryByStudentCourseRange(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, from, to time.Time, limit int) ([]*models.BehaviorEvent, error) {
	query := `
		SELECT id, student_id, course_id, event_type, related_type, related_id, metadata, occurred_at, created_at
		FROM behavior_events
		WHERE student_id = $1
		  AND course_id IS NOT DISTINCT FROM $2
		  AND occurred_at >= $3
		  AND occurred_at < $4
		ORDER BY occurred_at ASC, id ASC
		LIMIT $5
	`

	rows, err := r.db.QueryContext(ctx, query, studentID, nullUUID(courseID), from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query behavior events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			_ = err
		}
	}()

	var events []*models.BehaviorEvent
	for rows.Next() {
		event := &models.BehaviorEvent{}
		var courseID, relatedID uuid.NullUUID
		var metadataJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.StudentID,
			&courseID,
			&event.Type,
			&event.RelatedType,
			&relatedID,
			&metadataJSON,
			&event.OccurredAt,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan behavior event: %w", err)
		}

		if courseID.Valid {
			event.CourseID = &courseID.UUID
		}
		if relatedID.Valid {
			event.RelatedID = &relatedID.UUID
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating behavior events: %w", err)
	}

	return events, nil
}

// ExistsEventAfter reports whether any event for (student, course) has
// occurredAt strictly after ts. Used for snapshot staleness checks.
func (r *EventRepository) ExistsEventAfter(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, ts time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM behavior_events
			WHERE student_id = $1
			  AND course_id IS NOT DISTINCT FROM $2
			  AND occurred_at > $3
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, studentID, nullUUID(courseID), ts).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check for newer events: %w", err)
	}

	return exists, nil
}

// nullUUID converts an optional UUID to its sql representation.
func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
