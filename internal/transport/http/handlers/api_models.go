package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/siteproof/throttle-service/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// RateLimitRequest identifies the key and scope a decision is requested for.
type RateLimitRequest struct {
	Key   string `json:"key" binding:"required"`
	Scope string `json:"scope"`
}

// DecisionResponse is the wire form of a limiter decision. RetryAfter is in
// whole seconds and only present on denials; ResetAt is epoch milliseconds.
type DecisionResponse struct {
	Allowed    bool   `json:"allowed"`
	Scope      string `json:"scope"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	RetryAfter int    `json:"retry_after,omitempty"`
	ResetAt    int64  `json:"reset_at"`
}

// NewDecisionResponse maps a domain decision onto the wire form.
func NewDecisionResponse(d domain.Decision) DecisionResponse {
	resp := DecisionResponse{
		Allowed:   d.Allowed,
		Scope:     d.Scope,
		Limit:     d.Limit,
		Remaining: d.Remaining,
		ResetAt:   d.ResetAt.UnixMilli(),
	}
	if !d.Allowed {
		resp.Remaining = 0
		resp.RetryAfter = d.RetryAfterSeconds()
	}
	return resp
}
