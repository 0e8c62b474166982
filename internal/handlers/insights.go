package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/edulane/insights-api/internal/models"
	"github.com/edulane/insights-api/internal/request"
	"github.com/edulane/insights-api/internal/services/analytics"
	"github.com/edulane/insights-api/internal/services/insight"
	"github.com/edulane/insights-api/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// InsightHandler handles summary and insight requests
type InsightHandler struct {
	aggregator *analytics.Aggregator
	insights   *insight.Service
	logger     *zap.Logger
}

// NewInsightHandler creates a new insight handler
func NewInsightHandler(aggregator *analytics.Aggregator, insights *insight.Service, logger *zap.Logger) *InsightHandler {
	return &InsightHandler{
		aggregator: aggregator,
		insights:   insights,
		logger:     logger,
	}
}

// RegisterRoutes registers summary and insight routes on the given router.
// The router should already carry the /students/{studentID} prefix.
func (h *InsightHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/summary", h.GetSummary).Methods("GET")
	r.HandleFunc("/insights", h.GenerateInsight).Methods("POST")
	r.HandleFunc("/insights/latest", h.GetLatestInsight).Methods("GET")
}

// GenerateInsightRequest represents a generate insight request
type GenerateInsightRequest struct {
	CourseID *uuid.UUID `json:"course_id,omitempty"`
	Range    string     `json:"range" validate:"required,max=20"`
	Model    string     `json:"model,omitempty" validate:"max=100"`
	Force    bool       `json:"force,omitempty"`
}

// GetSummary returns the cached-or-rebuilt summary snapshot for the key.
func (h *InsightHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	_, studentID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	courseID, ok := parseCourseID(w, r)
	if !ok {
		return
	}

	rangeKey := r.URL.Query().Get("range")
	if rangeKey == "" {
		rangeKey = "7d"
	}

	snapshot, err := h.aggregator.GetOrBuildSummary(r.Context(), studentID, courseID, rangeKey)
	if err != nil {
		if errors.Is(err, models.ErrUnknownRangeKey) {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		h.logger.Error("summary_request_failed",
			zap.String("student_id", studentID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to build summary")
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// GenerateInsight runs one generation attempt for the key.
func (h *InsightHandler) GenerateInsight(w http.ResponseWriter, r *http.Request) {
	operator, studentID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req GenerateInsightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}

	if err := validation.Validate.Struct(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	resp, err := h.insights.Generate(r.Context(), insight.GenerateInput{
		OperatorID:         operator.ID,
		StudentID:          studentID,
		CourseID:           req.CourseID,
		RangeKey:           req.Range,
		Model:              req.Model,
		Force:              req.Force,
		StudentSelfTrigger: operator.Role == models.RoleStudent,
	})
	if err != nil {
		switch {
		case errors.Is(err, insight.ErrForceNotAllowed):
			respondJSONError(w, http.StatusForbidden, "Forbidden", err.Error())
		case errors.Is(err, insight.ErrQuotaExceeded):
			respondJSONError(w, http.StatusTooManyRequests, "Too Many Requests", err.Error())
		case errors.Is(err, models.ErrUnknownRangeKey):
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		default:
			h.logger.Error("insight_request_failed",
				zap.String("student_id", studentID.String()),
				zap.Error(err),
			)
			respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to generate insight")
		}
		return
	}

	status := http.StatusCreated
	if resp.Reused {
		status = http.StatusOK
	}
	respondJSON(w, status, resp)
}

// GetLatestInsight returns the latest insight for the key without side effects.
func (h *InsightHandler) GetLatestInsight(w http.ResponseWriter, r *http.Request) {
	_, studentID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	courseID, ok := parseCourseID(w, r)
	if !ok {
		return
	}

	rangeKey := r.URL.Query().Get("range")

	resp, err := h.insights.GetLatest(r.Context(), studentID, courseID, rangeKey)
	if err != nil {
		h.logger.Error("insight_lookup_failed",
			zap.String("student_id", studentID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to look up insight")
		return
	}
	if resp == nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "No insight exists for this key")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// authorize resolves the operator and path student, enforcing that students
// only reach their own data.
func (h *InsightHandler) authorize(w http.ResponseWriter, r *http.Request) (*models.Operator, uuid.UUID, bool) {
	operator := request.OperatorFromContext(r)
	if operator == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Operator not found in context")
		return nil, uuid.Nil, false
	}

	studentID, err := uuid.Parse(mux.Vars(r)["studentID"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid student ID")
		return nil, uuid.Nil, false
	}

	if operator.Role == models.RoleStudent && operator.ID != studentID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Students may only access their own data")
		return nil, uuid.Nil, false
	}

	return operator, studentID, true
}

func parseCourseID(w http.ResponseWriter, r *http.Request) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get("course_id")
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid course ID")
		return nil, false
	}
	return &id, true
}
