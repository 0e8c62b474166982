package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edulane/insights-api/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SnapshotRepository handles summary snapshot database operations. Snapshots
// are immutable: a new aggregation always inserts a new row.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Insert writes a new snapshot row.
func (r *SnapshotRepository) Insert(ctx context.Context, snapshot *models.BehaviorSummarySnapshot) error {
	query := `
		INSERT INTO behavior_summary_snapshots
			(id, schema_version, student_id, course_id, range_key, period_from, period_to,
			 input_event_count, event_types_included, summary, generated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`

	summaryJSON, err := json.Marshal(snapshot.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	types := make([]string, 0, len(snapshot.EventTypesIncluded))
	for _, t := range snapshot.EventTypesIncluded {
		types = append(types, string(t))
	}

	err = r.db.QueryRowContext(ctx, query,
		snapshot.ID,
		snapshot.SchemaVersion,
		snapshot.StudentID,
		nullUUID(snapshot.CourseID),
		snapshot.RangeKey,
		snapshot.PeriodFrom,
		snapshot.PeriodTo,
		snapshot.InputEventCount,
		pq.Array(types),
		summaryJSON,
		snapshot.GeneratedAt,
		time.Now(),
	).Scan(&snapshot.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// GetLatest returns the most recent snapshot (by generated_at) matching
// (student, course, range key, schema version). When no row matches, the
// returned error wraps sql.ErrNoRows.
func (r *SnapshotRepository) GetLatest(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, rangeKey string, schemaVersion int) (*models.BehaviorSummarySnapshot, error) {
	query := `
		SELECT id, schema_version, student_id, course_id, range_key, period_from, period_to,
		       input_event_count, event_types_included, summary, generated_at, created_at
		FROM behavior_summary_snapshots
		WHERE student_id = $1
		  AND course_id IS NOT DISTINCT FROM $2
		  AND range_key = $3
		  AND schema_version = $4
		ORDER BY generated_at DESC, created_at DESC
		LIMIT 1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, studentID, nullUUID(courseID), rangeKey, schemaVersion))
}

// GetByID returns a snapshot by primary key.
func (r *SnapshotRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BehaviorSummarySnapshot, error) {
	query := `
		SELECT id, schema_version, student_id, course_id, range_key, period_from, period_to,
		       input_event_count, event_types_included, summary, generated_at, created_at
		FROM behavior_summary_snapshots
		WHERE id = $1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *SnapshotRepository) scanOne(row *sql.Row) (*models.BehaviorSummarySnapshot, error) {
	snapshot := &models.BehaviorSummarySnapshot{}
	var courseID uuid.NullUUID
	var types pq.StringArray
	var summaryJSON []byte

	err := row.Scan(
		&snapshot.ID,
		&snapshot.SchemaVersion,
		&snapshot.StudentID,
		&courseID,
		&snapshot.RangeKey,
		&snapshot.PeriodFrom,
		&snapshot.PeriodTo,
		&snapshot.InputEventCount,
		&types,
		&summaryJSON,
		&snapshot.GeneratedAt,
		&snapshot.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if courseID.Valid {
		snapshot.CourseID = &courseID.UUID
	}
	for _, t := range types {
		snapshot.EventTypesIncluded = append(snapshot.EventTypesIncluded, models.EventType(t))
	}
	if err := json.Unmarshal(summaryJSON, &snapshot.Summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}

	return snapshot, nil
}
