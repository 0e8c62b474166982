package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edulane/insights-api/internal/models"
	"github.com/google/uuid"
)

// InsightRepository handles behavior insight database operations. Insight
// rows are immutable; regeneration inserts new rows and reads take the most
// recent by generated_at.
type InsightRepository struct {
	db *DB
}

// NewInsightRepository creates a new insight repository.
func NewInsightRepository(db *DB) *InsightRepository {
	return &InsightRepository{db: db}
}

const insightColumns = `id, schema_version, snapshot_id, student_id, course_id, range_key,
	model, prompt_version, status, narrative, error_message, generated_at, created_at`

// Insert writes a new insight row.
func (r *InsightRepository) Insert(ctx context.Context, insight *models.BehaviorInsight) error {
	query := `
		INSERT INTO behavior_insights
			(id, schema_version, snapshot_id, student_id, course_id, range_key,
			 model, prompt_version, status, narrative, error_message, generated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`

	var narrativeJSON []byte
	if insight.Narrative != nil {
		var err error
		narrativeJSON, err = json.Marshal(insight.Narrative)
		if err != nil {
			return fmt.Errorf("failed to marshal narrative: %w", err)
		}
	}

	var errorMessage sql.NullString
	if insight.ErrorMessage != nil {
		errorMessage = sql.NullString{String: *insight.ErrorMessage, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		insight.ID,
		insight.SchemaVersion,
		insight.SnapshotID,
		insight.StudentID,
		nullUUID(insight.CourseID),
		insight.RangeKey,
		insight.Model,
		insight.PromptVersion,
		insight.Status,
		narrativeJSON,
		errorMessage,
		insight.GeneratedAt,
		time.Now(),
	).Scan(&insight.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert insight: %w", err)
	}

	return nil
}

// GetLatestByStudentCourseRange returns the most recent insight for
// (student, course, range key, schema version), or nil when none exists.
func (r *InsightRepository) GetLatestByStudentCourseRange(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, rangeKey string, schemaVersion int) (*models.BehaviorInsight, error) {
	query := `
		SELECT ` + insightColumns + `
		FROM behavior_insights
		WHERE student_id = $1
		  AND course_id IS NOT DISTINCT FROM $2
		  AND range_key = $3
		  AND schema_version = $4
		ORDER BY generated_at DESC, created_at DESC
		LIMIT 1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, studentID, nullUUID(courseID), rangeKey, schemaVersion))
}

// GetLatestByStudentCourse returns the most recent insight for the student
// and course across all range keys, or nil when none exists.
func (r *InsightRepository) GetLatestByStudentCourse(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, schemaVersion int) (*models.BehaviorInsight, error) {
	query := `
		SELECT ` + insightColumns + `
		FROM behavior_insights
		WHERE student_id = $1
		  AND course_id IS NOT DISTINCT FROM $2
		  AND schema_version = $3
		ORDER BY generated_at DESC, created_at DESC
		LIMIT 1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, studentID, nullUUID(courseID), schemaVersion))
}

// GetLatestBySnapshot returns the most recent insight referencing a snapshot,
// or nil when none exists.
func (r *InsightRepository) GetLatestBySnapshot(ctx context.Context, snapshotID uuid.UUID, schemaVersion int) (*models.BehaviorInsight, error) {
	query := `
		SELECT ` + insightColumns + `
		FROM behavior_insights
		WHERE snapshot_id = $1
		  AND schema_version = $2
		ORDER BY generated_at DESC, created_at DESC
		LIMIT 1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, snapshotID, schemaVersion))
}

// CountByStudentSince counts insights generated for a student since a point
// in time, across all courses and ranges. Used for quota checks.
func (r *InsightRepository) CountByStudentSince(ctx context.Context, studentID uuid.UUID, schemaVersion int, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM behavior_insights
		WHERE student_id = $1
		  AND schema_version = $2
		  AND generated_at >= $3
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, studentID, schemaVersion, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count insights: %w", err)
	}

	return count, nil
}

func (r *InsightRepository) scanOne(row *sql.Row) (*models.BehaviorInsight, error) {
	insight := &models.BehaviorInsight{}
	var courseID uuid.NullUUID
	var narrativeJSON []byte
	var errorMessage sql.NullString

	err := row.Scan(
		&insight.ID,
		&insight.SchemaVersion,
		&insight.SnapshotID,
		&insight.StudentID,
		&courseID,
		&insight.RangeKey,
		&insight.Model,
		&insight.PromptVersion,
		&insight.Status,
		&narrativeJSON,
		&errorMessage,
		&insight.GeneratedAt,
		&insight.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insight: %w", err)
	}

	if courseID.Valid {
		insight.CourseID = &courseID.UUID
	}
	if len(narrativeJSON) > 0 {
		narrative := &models.InsightNarrative{}
		if err := json.Unmarshal(narrativeJSON, narrative); err != nil {
			return nil, fmt.Errorf("failed to unmarshal narrative: %w", err)
		}
		insight.Narrative = narrative
	}
	if errorMessage.Valid {
		insight.ErrorMessage = &errorMessage.String
	}

	return insight, nil
}
