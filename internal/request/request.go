package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/edulane/insights-api/internal/models"
)

type contextKey string

const operatorContextKey contextKey = "operator"

// OperatorContextKey returns the context key used for the operator. Exposed for tests that inject non-operator values.
func OperatorContextKey() contextKey { return operatorContextKey }

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

// WithOperator returns a context with the operator attached.
func WithOperator(ctx context.Context, operator *models.Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey, operator)
}

// OperatorFromContext returns the operator from the request context, or nil if missing or wrong type.
func OperatorFromContext(r *http.Request) *models.Operator {
	op, _ := r.Context().Value(operatorContextKey).(*models.Operator)
	return op
}
