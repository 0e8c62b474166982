package handlers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/edulane/insights-api/internal/models"
	"github.com/google/uuid"
)

func TestGetSummary(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	studentID := uuid.New()
	seedEvent(env, studentID, models.EventTypeAssignmentSubmit, time.Now().Add(-time.Hour))

	path := fmt.Sprintf("/api/v1/students/%s/summary?range=7d", studentID)
	w := env.do(t, studentOperator(studentID), "GET", path, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (body: %s)", w.Code, w.Body.String())
	}
	if len(env.snapshots.snapshots) != 1 {
		t.Fatalf("Expected 1 snapshot built, got %d", len(env.snapshots.snapshots))
	}

	body := decodeBody(t, w)
	if success, _ := body["success"].(bool); !success {
		t.Error("Expected success response")
	}

	// A repeat request with no new events serves the cached snapshot.
	w = env.do(t, studentOperator(studentID), "GET", path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on repeat, got %d", w.Code)
	}
	if len(env.snapshots.snapshots) != 1 {
		t.Errorf("Expected cache hit on repeat, got %d snapshots", len(env.snapshots.snapshots))
	}
}

func TestGetSummary_DefaultsRange(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	studentID := uuid.New()

	path := fmt.Sprintf("/api/v1/students/%s/summary", studentID)
	w := env.do(t, staffOperator(), "GET", path, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (body: %s)", w.Code, w.Body.String())
	}
	if len(env.snapshots.snapshots) != 1 || env.snapshots.snapshots[0].RangeKey != "7d" {
		t.Errorf("Expected a 7d snapshot, got %+v", env.snapshots.snapshots)
	}
}

func TestGetSummary_UnknownRange(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	studentID := uuid.New()

	path := fmt.Sprintf("/api/v1/students/%s/summary?range=90d", studentID)
	w := env.do(t, staffOperator(), "GET", path, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestGetSummary_StudentCrossAccessForbidden(t *testing.T) {
	t.Parallel()

	env := newTestEnv()

	path := fmt.Sprintf("/api/v1/students/%s/summary", uuid.New())
	w := env.do(t, studentOperator(uuid.New()), "GET", path, nil)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestGetSummary_InvalidCourseID(t *testing.T) {
	t.Parallel()

	env := newTestEnv()

	path := fmt.Sprintf("/api/v1/students/%s/summary?course_id=nope", uuid.New())
	w := env.do(t, staffOperator(), "GET", path, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestGenerateInsight(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	studentID := uuid.New()
	seedEvent(env, studentID, models.EventTypeAssignmentSubmit, time.Now().Add(-time.Hour))

	path := fmt.Sprintf("/api/v1/students/%s/insights", studentID)
	w := env.do(t, staffOperator(), "POST", path, map[string]any{"range": "7d"})

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d (body: %s)", w.Code, w.Body.String())
	}
	if env.ai.calls != 1 {
		t.Errorf("Expected 1 AI call, got %d", env.ai.calls)
	}
	if len(env.insights.insights) != 1 {
		t.Fatalf("Expected 1 insight row, got %d", len(env.insights.insights))
	}
	if env.insights.insights[0].Status != models.InsightStatusSuccess {
		t.Errorf("Expected success status, got %s", env.insights.insights[0].Status)
	}
}

func TestGenerateInsight_SelfTriggerCooldownReturns200(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	studentID := uuid.New()
	seedEvent(env, studentID, models.EventTypeAssignmentSubmit, time.Now().Add(-time.Hour))

	path := fmt.Sprintf("/api/v1/students/%s/insights", studentID)
	operator := studentOperator(studentID)

	w := env.do(t, operator, "POST", path, map[string]any{"range": "7d"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d (body: %s)", w.Code, w.Body.String())
	}

	w = env.do(t, operator, "POST", path, map[string]any{"range": "7d"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for a reused insight, got %d", w.Code)
	}
	if env.ai.calls != 1 {
		t.Errorf("Expected 1 AI call total, got %d", env.ai.calls)
	}
	if len(env.insights.insights) != 1 {
		t.Errorf("Expected 1 insight row total, got %d", len(env.insights.insights))
	}
}

func TestGenerateInsight_StudentForceForbidden(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	studentID := uuid.New()

	path := fmt.Sprintf("/api/v1/students/%s/insights", studentID)
	w := env.do(t, studentOperator(studentID), "POST", path, map[string]any{"range": "7d", "force": true})

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
	if env.ai.calls != 0 {
		t.Error("Expected no AI call")
	}
}

func TestGenerateInsight_QuotaExceeded(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	studentID := uuid.New()
	for i := 0; i < 7; i++ {
		env.insights.insights = append(env.insights.insights, &models.BehaviorInsight{
			ID:            uuid.New(),
			SchemaVersion: models.InsightSchemaVersion,
			StudentID:     studentID,
			RangeKey:      "7d",
			Status:        models.InsightStatusSuccess,
			GeneratedAt:   time.Now().Add(-time.Duration(i+1) * time.Hour),
		})
	}

	path := fmt.Sprintf("/api/v1/students/%s/insights", studentID)
	w := env.do(t, staffOperator(), "POST", path, map[string]any{"range": "7d", "force": true})

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d (body: %s)", w.Code, w.Body.String())
	}
	if env.ai.calls != 0 {
		t.Error("Expected no AI call when quota is spent")
	}
}

func TestGenerateInsight_MissingRange(t *testing.T) {
	t.Parallel()

	env := newTestEnv()

	path := fmt.Sprintf("/api/v1/students/%s/insights", uuid.New())
	w := env.do(t, staffOperator(), "POST", path, map[string]any{})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestGenerateInsight_UnknownRange(t *testing.T) {
	t.Parallel()

	env := newTestEnv()

	path := fmt.Sprintf("/api/v1/students/%s/insights", uuid.New())
	w := env.do(t, staffOperator(), "POST", path, map[string]any{"range": "90d"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestGetLatestInsight(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	studentID := uuid.New()

	path := fmt.Sprintf("/api/v1/students/%s/insights/latest?range=7d", studentID)
	w := env.do(t, studentOperator(studentID), "GET", path, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404 with no insights, got %d", w.Code)
	}

	env.insights.insights = append(env.insights.insights, &models.BehaviorInsight{
		ID:            uuid.New(),
		SchemaVersion: models.InsightSchemaVersion,
		StudentID:     studentID,
		RangeKey:      "7d",
		Status:        models.InsightStatusSuccess,
		GeneratedAt:   time.Now().Add(-time.Hour),
	})

	w = env.do(t, studentOperator(studentID), "GET", path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (body: %s)", w.Code, w.Body.String())
	}
	if env.ai.calls != 0 {
		t.Error("Expected read path to never call AI")
	}
}
