package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edulane/insights-api/internal/database"
	"github.com/edulane/insights-api/internal/locks"
	"github.com/edulane/insights-api/internal/models"
	"github.com/edulane/insights-api/internal/request"
	"github.com/edulane/insights-api/internal/services/ai"
	"github.com/edulane/insights-api/internal/services/analytics"
	"github.com/edulane/insights-api/internal/services/insight"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// fakeEventRepo is an in-memory append-only event store.
type fakeEventRepo struct {
	events []*models.BehaviorEvent
}

func (f *fakeEventRepo) Append(_ context.Context, event *models.BehaviorEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventRepo) QueryByStudentCourseRange(_ context.Context, studentID uuid.UUID, courseID *uuid.UUID, from, to time.Time, limit int) ([]*models.BehaviorEvent, error) {
	var out []*models.BehaviorEvent
	for _, e := range f.events {
		if e.StudentID != studentID || !sameCourse(e.CourseID, courseID) {
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

// fakeSnapshotRepo is an in-memory snapshot store.
type fakeSnapshotRepo struct {
	snapshots []*models.BehaviorSummarySnapshot
}

func (f *fakeSnapshotRepo) Insert(_ context.Context, snapshot *models.BehaviorSummarySnapshot) error {
	f.snapshots = append(f.snapshots, snapshot)
	return nil
}

func (f *fakeSnapshotRepo) GetLatest(_ context.Context, studentID uuid.UUID, courseID *uuid.UUID, rangeKey string, schemaVersion int) (*models.BehaviorSummarySnapshot, error) {
	var latest *models.BehaviorSummarySnapshot
	for _, s := range f.snapshots {
		if s.StudentID != studentID || !sameCourse(s.CourseID, courseID) || s.RangeKey != rangeKey || s.SchemaVersion != schemaVersion {
			continue
		}
		if latest == nil || s.GeneratedAt.After(latest.GeneratedAt) {
			latest = s
		}
	}
	return latest, nil
}

func (f *fakeSnapshotRepo) GetByID(_ context.Context, id uuid.UUID) (*models.BehaviorSummarySnapshot, error) {
	for _, s := range f.snapshots {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, nil
}

// fakeInsightRepo is an in-memory insight store.
type fakeInsightRepo struct {
	insights []*models.BehaviorInsight
}

func (f *fakeInsightRepo) Insert(_ context.Context, insight *models.BehaviorInsight) error {
	f.insights = append(f.insights, insight)
	return nil
}

func (f *fakeInsightRepo) latestMatching(match func(*models.BehaviorInsight) bool) *models.BehaviorInsight {
	var latest *models.BehaviorInsight
	for _, i := range f.insights {
		if !match(i) {
			continue
		}
		if latest == nil || i.GeneratedAt.After(latest.GeneratedAt) {
			latest = i
		}
	}
	return latest
}

func (f *fakeInsightRepo) GetLatestByStudentCourseRange(_ context.Context, studentID uuid.UUID, courseID *uuid.UUID, rangeKey string, schemaVersion int) (*models.BehaviorInsight, error) {
	return f.latestMatching(func(i *models.BehaviorInsight) bool {
		return i.StudentID == studentID && sameCourse(i.CourseID, courseID) && i.RangeKey == rangeKey && i.SchemaVersion == schemaVersion
	}), nil
}

func (f *fakeInsightRepo) GetLatestByStudentCourse(_ context.Context, studentID uuid.UUID, courseID *uuid.UUID, schemaVersion int) (*models.BehaviorInsight, error) {
	return f.latestMatching(func(i *models.BehaviorInsight) bool {
		return i.StudentID == studentID && sameCourse(i.CourseID, courseID) && i.SchemaVersion == schemaVersion
	}), nil
}

func (f *fakeInsightRepo) GetLatestBySnapshot(_ context.Context, snapshotID uuid.UUID, schemaVersion int) (*models.BehaviorInsight, error) {
	return f.latestMatching(func(i *models.BehaviorInsight) bool {
		return i.SnapshotID == snapshotID && i.SchemaVersion == schemaVersion
	}), nil
}

func (f *fakeInsightRepo) CountByStudentSince(_ context.Context, studentID uuid.UUID, schemaVersion int, since time.Time) (int64, error) {
	var count int64
	for _, i := range f.insights {
		if i.StudentID == studentID && i.SchemaVersion == schemaVersion && !i.GeneratedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Ensure fakes implement the repository interfaces
var (
	_ database.EventRepositoryInterface    = (*fakeEventRepo)(nil)
	_ database.SnapshotRepositoryInterface = (*fakeSnapshotRepo)(nil)
	_ database.InsightRepositoryInterface  = (*fakeInsightRepo)(nil)
)

func sameCourse(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// fakeCompletionClient returns a canned AI response.
type fakeCompletionClient struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompletionClient) Complete(context.Context, ai.CompletionRequest) (string, error) {
	f.calls++
	return f.response, f.err
}

const validNarrativeJSON = `{"headline":"Steady engagement","observations":["Submitted twice this week"],"suggestions":["Review the posted feedback"]}`

// testEnv wires real services over in-memory stores behind a routed server.
type testEnv struct {
	events    *fakeEventRepo
	snapshots *fakeSnapshotRepo
	insights  *fakeInsightRepo
	ai        *fakeCompletionClient
	router    *mux.Router
}

func newTestEnv() *testEnv {
	env := &testEnv{
		events:    &fakeEventRepo{},
		snapshots: &fakeSnapshotRepo{},
		insights:  &fakeInsightRepo{},
		ai:        &fakeCompletionClient{response: validNarrativeJSON},
	}

	logger := zap.NewNop()
	recorder := analytics.NewRecorder(env.events, logger)
	aggregator := analytics.NewAggregator(env.events, env.snapshots, nil, 0, logger)
	service := insight.NewService(aggregator, env.insights, env.ai, locks.NewMemoryLocker(), insight.DefaultPolicy(), logger)

	router := mux.NewRouter()
	students := router.PathPrefix("/api/v1/students/{studentID}").Subrouter()
	NewEventHandler(recorder).RegisterRoutes(students)
	NewInsightHandler(aggregator, service, logger).RegisterRoutes(students)
	env.router = router

	return env
}

func (env *testEnv) do(t *testing.T, operator *models.Operator, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if operator != nil {
		req = req.WithContext(request.WithOperator(req.Context(), operator))
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func seedEvent(env *testEnv, studentID uuid.UUID, eventType models.EventType, occurredAt time.Time) {
	env.events.events = append(env.events.events, &models.BehaviorEvent{
		ID:         uuid.New(),
		StudentID:  studentID,
		Type:       eventType,
		OccurredAt: occurredAt,
		CreatedAt:  occurredAt,
	})
}

func studentOperator(id uuid.UUID) *models.Operator {
	return &models.Operator{ID: id, Role: models.RoleStudent}
}

func staffOperator() *models.Operator {
	return &models.Operator{ID: uuid.New(), Role: models.RoleStaff}
}
