package database

import (
	"context"
	"time"

	"github.com/edulane/insights-api/internal/models"
	"github.com/google/uuid"
)

// EventRepositoryInterface defines the append-only event store consumed by
// the recorder and the aggregation service. This interface enables better
// testability by allowing mock implementations.
type EventRepositoryInterface interface {
	Append(ctx context.Context, event *models.BehaviorEvent) error
	QueryByStudentCourseRange(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, from, to time.Time, limit int) ([]*models.BehaviorEvent, error)
	ExistsEventAfter(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, ts time.Time) (bool, error)
}

// SnapshotRepositoryInterface defines the snapshot store consumed by the
// aggregation service.
type SnapshotRepositoryInterface interface {
	Insert(ctx context.Context, snapshot *models.BehaviorSummarySnapshot) error
	GetLatest(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, rangeKey string, schemaVersion int) (*models.BehaviorSummarySnapshot, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.BehaviorSummarySnapshot, error)
}

// InsightRepositoryInterface defines the insight store consumed by the
// insight generation service. Lookups return (nil, nil) when no row matches.
type InsightRepositoryInterface interface {
	Insert(ctx context.Context, insight *models.BehaviorInsight) error
	GetLatestByStudentCourseRange(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, rangeKey string, schemaVersion int) (*models.BehaviorInsight, error)
	GetLatestByStudentCourse(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, schemaVersion int) (*models.BehaviorInsight, error)
	GetLatestBySnapshot(ctx context.Context, snapshotID uuid.UUID, schemaVersion int) (*models.BehaviorInsight, error)
	CountByStudentSince(ctx context.Context, studentID uuid.UUID, schemaVersion int, since time.Time) (int64, error)
}

// Ensure concrete types implement the interfaces
var (
	_ EventRepositoryInterface    = (*EventRepository)(nil)
	_ SnapshotRepositoryInterface = (*SnapshotRepository)(nil)
	_ InsightRepositoryInterface  = (*InsightRepository)(nil)
)
