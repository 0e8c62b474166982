package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/edulane/insights-api/internal/models"
	"github.com/edulane/insights-api/internal/request"
	"github.com/edulane/insights-api/internal/services/analytics"
	"github.com/edulane/insights-api/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// EventHandler handles behavior event requests
type EventHandler struct {
	recorder *analytics.Recorder
}

// NewEventHandler creates a new event handler
func NewEventHandler(recorder *analytics.Recorder) *EventHandler {
	return &EventHandler{recorder: recorder}
}

// RegisterRoutes registers event routes on the given router. The router
// should already carry the /students/{studentID} prefix.
func (h *EventHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/events", h.RecordEvent).Methods("POST")
}

// RecordEventRequest represents a record event request
type RecordEventRequest struct {
	CourseID    *uuid.UUID     `json:"course_id,omitempty"`
	EventType   string         `json:"event_type" validate:"required,event_type"`
	RelatedType string         `json:"related_type,omitempty" validate:"max=100"`
	RelatedID   *uuid.UUID     `json:"related_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OccurredAt  *time.Time     `json:"occurred_at,omitempty"`
}

// RecordEvent accepts a behavior event. Recording is best-effort: the
// response is always 202 once the request itself is valid, even if storage
// fails afterwards.
func (h *EventHandler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	operator := request.OperatorFromContext(r)
	if operator == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Operator not found in context")
		return
	}

	studentID, err := uuid.Parse(mux.Vars(r)["studentID"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid student ID")
		return
	}

	if operator.Role == models.RoleStudent && operator.ID != studentID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Students may only record their own events")
		return
	}

	var req RecordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}

	if err := validation.Validate.Struct(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	input := analytics.RecordInput{
		StudentID:   studentID,
		CourseID:    req.CourseID,
		Type:        models.EventType(req.EventType),
		RelatedType: validation.SanitizeText(req.RelatedType),
		RelatedID:   req.RelatedID,
		Metadata:    req.Metadata,
	}
	if req.OccurredAt != nil {
		input.OccurredAt = *req.OccurredAt
	}

	h.recorder.Record(r.Context(), input)

	respondJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
	})
}
