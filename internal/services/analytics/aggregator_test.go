package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/edulane/insights-api/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// fakeEventRepo is an in-memory event store for aggregator tests.
type fakeEventRepo struct {
	events   []*models.BehaviorEvent
	queryErr error
}

func (f *fakeEventRepo) Append(_ context.Context, event *models.BehaviorEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventRepo) QueryByStudentCourseRange(_ context.Context, studentID uuid.UUID, courseID *uuid.UUID, from, to time.Time, limit int) ([]*models.BehaviorEvent, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []*models.BehaviorEvent
	for _, e := range f.events {
		if e.StudentID != studentID {
			continue
		}
		if !sameCourse(e.CourseID, courseID) {
			continue
		}
		if e.OccurredAt.Before(from) || !e.OccurredAt.Before(to) {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeEventRepo) ExistsEventAfter(_ context.Context, studentID uuid.UUID, courseID *uuid.UUID, ts time.Time) (bool, error) {
	for _, e := range f.events {
		if e.StudentID == studentID && sameCourse(e.CourseID, courseID) && e.OccurredAt.After(ts) {
			return true, nil
		}
	}
	return false, nil
}

func sameCourse(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// fakeSnapshotRepo is an in-memory snapshot store for aggregator tests.
type fakeSnapshotRepo struct {
	snapshots []*models.BehaviorSummarySnapshot
	insertErr error
	getErr    error
}

func (f *fakeSnapshotRepo) Insert(_ context.Context, snapshot *models.BehaviorSummarySnapshot) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	snapshot.CreatedAt = time.Now()
	f.snapshots = append(f.snapshots, snapshot)
	return nil
}

func (f *fakeSnapshotRepo) GetLatest(_ context.Context, studentID uuid.UUID, courseID *uuid.UUID, rangeKey string, schemaVersion int) (*models.BehaviorSummarySnapshot, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	var latest *models.BehaviorSummarySnapshot
	for _, s := range f.snapshots {
		if s.StudentID != studentID || !sameCourse(s.CourseID, courseID) || s.RangeKey != rangeKey || s.SchemaVersion != schemaVersion {
			continue
		}
		if latest == nil || s.GeneratedAt.After(latest.GeneratedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("snapshot not found: %w", sql.ErrNoRows)
	}
	return latest, nil
}

func (f *fakeSnapshotRepo) GetByID(_ context.Context, id uuid.UUID) (*models.BehaviorSummarySnapshot, error) {
	for _, s := range f.snapshots {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, errors.New("snapshot not found")
}

func newTestAggregator(events *fakeEventRepo, snapshots *fakeSnapshotRepo, now time.Time) *Aggregator {
	a := NewAggregator(events, snapshots, models.DefaultRangeTable(), 0, zap.NewNop())
	a.now = func() time.Time { return now }
	return a
}

func makeEvent(studentID uuid.UUID, eventType models.EventType, occurredAt time.Time) *models.BehaviorEvent {
	return &models.BehaviorEvent{
		ID:         uuid.New(),
		StudentID:  studentID,
		Type:       eventType,
		OccurredAt: occurredAt,
	}
}

func TestComputeSummary_Deterministic(t *testing.T) {
	t.Parallel()

	studentID := uuid.New()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	events := []*models.BehaviorEvent{
		makeEvent(studentID, models.EventTypeAssignmentSubmit, base),
		makeEvent(studentID, models.EventTypeAssignmentResubmit, base.Add(2*time.Hour)),
		makeEvent(studentID, models.EventTypeFeedbackView, base.Add(26*time.Hour)),
		makeEvent(studentID, models.EventTypeMaterialView, base.Add(27*time.Hour)),
	}

	first := ComputeSummary(events)

	// Reversed input must produce identical metrics.
	reversed := []*models.BehaviorEvent{events[3], events[2], events[1], events[0]}
	second := ComputeSummary(reversed)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical metrics regardless of input order:\nfirst:  %+v\nsecond: %+v", first, second)
	}

	if first.TotalEvents != 4 {
		t.Errorf("Expected 4 total events, got %d", first.TotalEvents)
	}
	if first.DistinctActiveDays != 2 {
		t.Errorf("Expected 2 distinct active days, got %d", first.DistinctActiveDays)
	}
	if first.ResubmissionRatio != 0.5 {
		t.Errorf("Expected resubmission ratio 0.5, got %f", first.ResubmissionRatio)
	}
	if first.FeedbackViewCount != 1 {
		t.Errorf("Expected 1 feedback view, got %d", first.FeedbackViewCount)
	}
	if first.EventTypeCounts[models.EventTypeAssignmentSubmit] != 1 {
		t.Errorf("Expected 1 submit, got %d", first.EventTypeCounts[models.EventTypeAssignmentSubmit])
	}
	if first.FirstEventAt == nil || !first.FirstEventAt.Equal(base) {
		t.Errorf("Expected first event at %v, got %v", base, first.FirstEventAt)
	}
	if first.LastEventAt == nil || !first.LastEventAt.Equal(base.Add(27*time.Hour)) {
		t.Errorf("Expected last event at %v, got %v", base.Add(27*time.Hour), first.LastEventAt)
	}
}

func TestComputeSummary_Empty(t *testing.T) {
	t.Parallel()

	metrics := ComputeSummary(nil)

	if metrics.TotalEvents != 0 {
		t.Errorf("Expected 0 total events, got %d", metrics.TotalEvents)
	}
	if metrics.ResubmissionRatio != 0 {
		t.Errorf("Expected resubmission ratio 0 with no submissions, got %f", metrics.ResubmissionRatio)
	}
	if metrics.FirstEventAt != nil || metrics.LastEventAt != nil {
		t.Error("Expected nil first/last event timestamps for empty window")
	}
}

func TestGetOrBuildSummary_UnknownRange(t *testing.T) {
	t.Parallel()

	events := &fakeEventRepo{}
	snapshots := &fakeSnapshotRepo{}
	agg := newTestAggregator(events, snapshots, time.Now())

	_, err := agg.GetOrBuildSummary(context.Background(), uuid.New(), nil, "90d")
	if !errors.Is(err, models.ErrUnknownRangeKey) {
		t.Errorf("Expected ErrUnknownRangeKey, got %v", err)
	}
	if len(snapshots.snapshots) != 0 {
		t.Error("Expected no snapshot side effects on validation error")
	}
}

func TestGetOrBuildSummary_BuildsWhenAbsent(t *testing.T) {
	t.Parallel()

	studentID := uuid.New()
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	events := &fakeEventRepo{events: []*models.BehaviorEvent{
		makeEvent(studentID, models.EventTypeAssignmentSubmit, now.Add(-24*time.Hour)),
		makeEvent(studentID, models.EventTypeMaterialView, now.Add(-48*time.Hour)),
	}}
	snapshots := &fakeSnapshotRepo{}
	agg := newTestAggregator(events, snapshots, now)

	snapshot, err := agg.GetOrBuildSummary(context.Background(), studentID, nil, "7d")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if snapshot.InputEventCount != 2 {
		t.Errorf("Expected 2 input events, got %d", snapshot.InputEventCount)
	}
	if snapshot.SchemaVersion != models.SummarySchemaVersion {
		t.Errorf("Expected schema version %d, got %d", models.SummarySchemaVersion, snapshot.SchemaVersion)
	}
	if !snapshot.GeneratedAt.Equal(now) {
		t.Errorf("Expected generatedAt %v, got %v", now, snapshot.GeneratedAt)
	}
	if !snapshot.PeriodFrom.Equal(now.Add(-7 * 24 * time.Hour)) {
		t.Errorf("Expected periodFrom 7 days before now, got %v", snapshot.PeriodFrom)
	}
	if len(snapshots.snapshots) != 1 {
		t.Errorf("Expected 1 snapshot inserted, got %d", len(snapshots.snapshots))
	}
}

func TestBuildAndSaveSnapshot_EventTypesIncluded(t *testing.T) {
	t.Parallel()

	studentID := uuid.New()
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	events := &fakeEventRepo{events: []*models.BehaviorEvent{
		makeEvent(studentID, models.EventTypeAssignmentSubmit, now.Add(-3*time.Hour)),
		makeEvent(studentID, models.EventTypeAssignmentResubmit, now.Add(-2*time.Hour)),
		makeEvent(studentID, models.EventTypeAssignmentSubmit, now.Add(-1*time.Hour)),
	}}
	snapshots := &fakeSnapshotRepo{}
	agg := newTestAggregator(events, snapshots, now)

	snapshot, err := agg.BuildAndSaveSnapshot(context.Background(), studentID, nil, "7d")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Only the types present in the window, deduplicated and sorted.
	want := []models.EventType{
		models.EventTypeAssignmentResubmit,
		models.EventTypeAssignmentSubmit,
	}
	if !reflect.DeepEqual(snapshot.EventTypesIncluded, want) {
		t.Errorf("Expected event types %v, got %v", want, snapshot.EventTypesIncluded)
	}
}

func TestGetOrBuildSummary_SnapshotStoreError(t *testing.T) {
	t.Parallel()

	studentID := uuid.New()
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	events := &fakeEventRepo{}
	snapshots := &fakeSnapshotRepo{getErr: errors.New("connection refused")}
	agg := newTestAggregator(events, snapshots, now)

	_, err := agg.GetOrBuildSummary(context.Background(), studentID, nil, "7d")
	if err == nil {
		t.Fatal("Expected store failure to propagate")
	}
	if len(snapshots.snapshots) != 0 {
		t.Error("Expected no rebuild when the snapshot store fails")
	}
}

func TestGetOrBuildSummary_CacheHit(t *testing.T) {
	t.Parallel()

	studentID := uuid.New()
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	events := &fakeEventRepo{events: []*models.BehaviorEvent{
		makeEvent(studentID, models.EventTypeAssignmentSubmit, now.Add(-24*time.Hour)),
	}}
	snapshots := &fakeSnapshotRepo{}
	agg := newTestAggregator(events, snapshots, now)

	first, err := agg.GetOrBuildSummary(context.Background(), studentID, nil, "7d")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// No new events: the second call must return the same snapshot.
	second, err := agg.GetOrBuildSummary(context.Background(), studentID, nil, "7d")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("Expected cache hit to return snapshot %s, got %s", first.ID, second.ID)
	}
	if len(snapshots.snapshots) != 1 {
		t.Errorf("Expected exactly 1 snapshot row, got %d", len(snapshots.snapshots))
	}
}

func TestGetOrBuildSummary_StaleRebuild(t *testing.T) {
	t.Parallel()

	studentID := uuid.New()
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	events := &fakeEventRepo{events: []*models.BehaviorEvent{
		makeEvent(studentID, models.EventTypeAssignmentSubmit, now.Add(-24*time.Hour)),
	}}
	snapshots := &fakeSnapshotRepo{}
	agg := newTestAggregator(events, snapshots, now)

	first, err := agg.GetOrBuildSummary(context.Background(), studentID, nil, "7d")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// One new event after the snapshot's generatedAt makes it stale.
	later := now.Add(1 * time.Hour)
	events.events = append(events.events, makeEvent(studentID, models.EventTypeFeedbackView, later))
	agg.now = func() time.Time { return now.Add(2 * time.Hour) }

	second, err := agg.GetOrBuildSummary(context.Background(), studentID, nil, "7d")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if second.ID == first.ID {
		t.Error("Expected a new snapshot after staleness, got the cached one")
	}
	if !second.GeneratedAt.After(first.GeneratedAt) {
		t.Errorf("Expected later generatedAt, got %v <= %v", second.GeneratedAt, first.GeneratedAt)
	}
	if second.InputEventCount != 2 {
		t.Errorf("Expected updated input event count 2, got %d", second.InputEventCount)
	}
}

func TestGetOrBuildSummary_EmptyWindow(t *testing.T) {
	t.Parallel()

	studentID := uuid.New()
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	events := &fakeEventRepo{}
	snapshots := &fakeSnapshotRepo{}
	agg := newTestAggregator(events, snapshots, now)

	snapshot, err := agg.GetOrBuildSummary(context.Background(), studentID, nil, "7d")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if snapshot.InputEventCount != 0 {
		t.Errorf("Expected 0 input events, got %d", snapshot.InputEventCount)
	}
	if snapshot.HasEvidence() {
		t.Error("Expected empty snapshot to report no evidence")
	}
	if len(snapshot.EventTypesIncluded) != 0 {
		t.Errorf("Expected no event types for an empty window, got %v", snapshot.EventTypesIncluded)
	}
	if snapshot.Summary.TotalEvents != 0 {
		t.Errorf("Expected zeroed metrics, got %+v", snapshot.Summary)
	}
}

func TestBuildAndSaveSnapshot_AlwaysInserts(t *testing.T) {
	t.Parallel()

	studentID := uuid.New()
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	events := &fakeEventRepo{events: []*models.BehaviorEvent{
		makeEvent(studentID, models.EventTypeQuizAttempt, now.Add(-1*time.Hour)),
	}}
	snapshots := &fakeSnapshotRepo{}
	agg := newTestAggregator(events, snapshots, now)

	for i := 0; i < 2; i++ {
		if _, err := agg.BuildAndSaveSnapshot(context.Background(), studentID, nil, "7d"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	if len(snapshots.snapshots) != 2 {
		t.Errorf("Expected 2 snapshot rows (no cache), got %d", len(snapshots.snapshots))
	}
}

func TestGetOrBuildSummary_CourseScoping(t *testing.T) {
	t.Parallel()

	studentID := uuid.New()
	courseID := uuid.New()
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	courseEvent := makeEvent(studentID, models.EventTypeAssignmentSubmit, now.Add(-2*time.Hour))
	courseEvent.CourseID = &courseID
	globalEvent := makeEvent(studentID, models.EventTypeMaterialView, now.Add(-3*time.Hour))

	events := &fakeEventRepo{events: []*models.BehaviorEvent{courseEvent, globalEvent}}
	snapshots := &fakeSnapshotRepo{}
	agg := newTestAggregator(events, snapshots, now)

	scoped, err := agg.GetOrBuildSummary(context.Background(), studentID, &courseID, "7d")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if scoped.InputEventCount != 1 {
		t.Errorf("Expected 1 course-scoped event, got %d", scoped.InputEventCount)
	}
	if scoped.CourseID == nil || *scoped.CourseID != courseID {
		t.Errorf("Expected course ID %s on snapshot, got %v", courseID, scoped.CourseID)
	}
}
