package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/edulane/insights-api/internal/database"
	"github.com/edulane/insights-api/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultEventLoadLimit caps how many events a single aggregation loads.
const DefaultEventLoadLimit = 5000

// Aggregator builds and caches deterministic summary snapshots over windows
// of behavior events. It never touches the AI layer; its output is the only
// evidence the insight service is allowed to pass downstream.
type Aggregator struct {
	events    database.EventRepositoryInterface
	snapshots database.SnapshotRepositoryInterface
	ranges    models.RangeTable
	loadLimit int
	logger    *zap.Logger
	now       func() time.Time
}

// NewAggregator creates a new aggregation service. A zero loadLimit selects
// DefaultEventLoadLimit.
func NewAggregator(
	events database.EventRepositoryInterface,
	snapshots database.SnapshotRepositoryInterface,
	ranges models.RangeTable,
	loadLimit int,
	logger *zap.Logger,
) *Aggregator {
	if ranges == nil {
		ranges = models.DefaultRangeTable()
	}
	if loadLimit <= 0 {
		loadLimit = DefaultEventLoadLimit
	}
	return &Aggregator{
		events:    events,
		snapshots: snapshots,
		ranges:    ranges,
		loadLimit: loadLimit,
		logger:    logger,
		now:       time.Now,
	}
}

// Ranges returns the canonical range-key table served by this aggregator.
func (a *Aggregator) Ranges() models.RangeTable {
	return a.ranges
}

// GetOrBuildSummary returns the latest snapshot for the key if it is still
// fresh, otherwise aggregates the current window and inserts a new snapshot.
// A snapshot is stale when any event for the key occurred after its
// generatedAt.
func (a *Aggregator) GetOrBuildSummary(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, rangeKey string) (*models.BehaviorSummarySnapshot, error) {
	if _, err := a.ranges.Resolve(rangeKey); err != nil {
		return nil, err
	}

	latest, err := a.snapshots.GetLatest(ctx, studentID, courseID, rangeKey, models.SummarySchemaVersion)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	if latest != nil {
		stale, err := a.events.ExistsEventAfter(ctx, studentID, courseID, latest.GeneratedAt)
		if err != nil {
			return nil, fmt.Errorf("staleness check failed: %w", err)
		}
		if !stale {
			a.logger.Debug("summary_cache_hit",
				zap.String("student_id", studentID.String()),
				zap.String("range_key", rangeKey),
				zap.String("snapshot_id", latest.ID.String()),
			)
			return latest, nil
		}
		a.logger.Debug("summary_cache_stale",
			zap.String("student_id", studentID.String()),
			zap.String("range_key", rangeKey),
			zap.String("snapshot_id", latest.ID.String()),
		)
	}

	return a.BuildAndSaveSnapshot(ctx, studentID, courseID, rangeKey)
}

// BuildAndSaveSnapshot aggregates the current window and always inserts a
// new snapshot row, ignoring any cached one. Schedulers use this for
// pre-warming; interactive callers should use GetOrBuildSummary.
func (a *Aggregator) BuildAndSaveSnapshot(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, rangeKey string) (*models.BehaviorSummarySnapshot, error) {
	duration, err := a.ranges.Resolve(rangeKey)
	if err != nil {
		return nil, err
	}

	generatedAt := a.now().UTC()
	periodFrom := generatedAt.Add(-duration)

	events, err := a.events.QueryByStudentCourseRange(ctx, studentID, courseID, periodFrom, generatedAt, a.loadLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	snapshot := &models.BehaviorSummarySnapshot{
		ID:                 uuid.New(),
		SchemaVersion:      models.SummarySchemaVersion,
		StudentID:          studentID,
		CourseID:           courseID,
		RangeKey:           rangeKey,
		PeriodFrom:         periodFrom,
		PeriodTo:           generatedAt,
		InputEventCount:    len(events),
		EventTypesIncluded: distinctEventTypes(events),
		Summary:            ComputeSummary(events),
		GeneratedAt:        generatedAt,
	}

	if err := a.snapshots.Insert(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	a.logger.Info("snapshot_built",
		zap.String("snapshot_id", snapshot.ID.String()),
		zap.String("student_id", studentID.String()),
		zap.String("range_key", rangeKey),
		zap.Int("input_event_count", snapshot.InputEventCount),
	)

	return snapshot, nil
}

// distinctEventTypes returns the sorted set of event types present in the
// window. Empty windows yield an empty, non-nil slice so the stored array is
// [] rather than NULL.
func distinctEventTypes(events []*models.BehaviorEvent) []models.EventType {
	seen := make(map[models.EventType]struct{}, len(events))
	for _, event := range events {
		seen[event.Type] = struct{}{}
	}
	types := make([]models.EventType, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ComputeSummary derives the fixed metric set from a window of events. It is
// a pure function: the same events always produce the same metrics, with no
// dependence on wall-clock time or call order.
func ComputeSummary(events []*models.BehaviorEvent) models.SummaryMetrics {
	sorted := make([]*models.BehaviorEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].OccurredAt.Equal(sorted[j].OccurredAt) {
			return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	metrics := models.SummaryMetrics{
		TotalEvents:     len(sorted),
		EventTypeCounts: make(map[models.EventType]int),
	}

	activeDays := make(map[string]struct{})
	var submits, resubmits int

	for _, event := range sorted {
		metrics.EventTypeCounts[event.Type]++
		activeDays[event.OccurredAt.UTC().Format("2006-01-02")] = struct{}{}

		switch event.Type {
		case models.EventTypeAssignmentSubmit:
			submits++
		case models.EventTypeAssignmentResubmit:
			resubmits++
		case models.EventTypeFeedbackView:
			metrics.FeedbackViewCount++
		}
	}

	metrics.DistinctActiveDays = len(activeDays)
	if submits+resubmits > 0 {
		metrics.ResubmissionRatio = float64(resubmits) / float64(submits+resubmits)
	}

	if len(sorted) > 0 {
		first := sorted[0].OccurredAt.UTC()
		last := sorted[len(sorted)-1].OccurredAt.UTC()
		metrics.FirstEventAt = &first
		metrics.LastEventAt = &last
	}

	return metrics
}
