package handlers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/edulane/insights-api/internal/models"
	"github.com/google/uuid"
)

func TestRecordEvent(t *testing.T) {
	t.Parallel()

	studentID := uuid.New()

	tests := []struct {
		name       string
		operator   *models.Operator
		pathID     string
		body       any
		wantStatus int
		wantEvents int
	}{
		{
			name:     "student records own event",
			operator: studentOperator(studentID),
			pathID:   studentID.String(),
			body: map[string]any{
				"event_type":   "ASSIGNMENT_SUBMIT",
				"related_type": "assignment",
			},
			wantStatus: http.StatusAccepted,
			wantEvents: 1,
		},
		{
			name:     "staff records for student",
			operator: staffOperator(),
			pathID:   studentID.String(),
			body: map[string]any{
				"event_type": "MATERIAL_VIEW",
			},
			wantStatus: http.StatusAccepted,
			wantEvents: 1,
		},
		{
			name:     "student cannot record for another student",
			operator: studentOperator(uuid.New()),
			pathID:   studentID.String(),
			body: map[string]any{
				"event_type": "MATERIAL_VIEW",
			},
			wantStatus: http.StatusForbidden,
			wantEvents: 0,
		},
		{
			name:       "missing operator",
			operator:   nil,
			pathID:     studentID.String(),
			body:       map[string]any{"event_type": "MATERIAL_VIEW"},
			wantStatus: http.StatusUnauthorized,
			wantEvents: 0,
		},
		{
			name:       "invalid student id",
			operator:   staffOperator(),
			pathID:     "not-a-uuid",
			body:       map[string]any{"event_type": "MATERIAL_VIEW"},
			wantStatus: http.StatusBadRequest,
			wantEvents: 0,
		},
		{
			name:       "unknown event type",
			operator:   staffOperator(),
			pathID:     studentID.String(),
			body:       map[string]any{"event_type": "LOGGED_IN"},
			wantStatus: http.StatusBadRequest,
			wantEvents: 0,
		},
		{
			name:       "missing event type",
			operator:   staffOperator(),
			pathID:     studentID.String(),
			body:       map[string]any{"related_type": "assignment"},
			wantStatus: http.StatusBadRequest,
			wantEvents: 0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv()
			path := fmt.Sprintf("/api/v1/students/%s/events", tt.pathID)
			w := env.do(t, tt.operator, "POST", path, tt.body)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d (body: %s)", tt.wantStatus, w.Code, w.Body.String())
			}
			if len(env.events.events) != tt.wantEvents {
				t.Errorf("Expected %d stored events, got %d", tt.wantEvents, len(env.events.events))
			}
		})
	}
}

func TestRecordEvent_PreservesOccurredAt(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	studentID := uuid.New()
	occurred := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	path := fmt.Sprintf("/api/v1/students/%s/events", studentID)
	w := env.do(t, studentOperator(studentID), "POST", path, map[string]any{
		"event_type":  "FEEDBACK_VIEW",
		"occurred_at": occurred.Format(time.RFC3339),
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d (body: %s)", w.Code, w.Body.String())
	}
	if len(env.events.events) != 1 {
		t.Fatalf("Expected 1 stored event, got %d", len(env.events.events))
	}
	if !env.events.events[0].OccurredAt.Equal(occurred) {
		t.Errorf("Expected occurredAt %v, got %v", occurred, env.events.events[0].OccurredAt)
	}
}
