package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/siteproof/throttle-service/internal/core/domain"
	"github.com/siteproof/throttle-service/internal/infra/telemetry"
	"github.com/siteproof/throttle-service/internal/usecase"
)

// RateLimitHandler serves the check/attempt/reset JSON contract consumed by
// the platform's route handlers.
type RateLimitHandler struct {
	registry  *usecase.Registry
	telemetry *telemetry.Provider
}

// NewRateLimitHandler builds the handler over a scope registry.
func NewRateLimitHandler(registry *usecase.Registry, provider *telemetry.Provider) *RateLimitHandler {
	return &RateLimitHandler{registry: registry, telemetry: provider}
}

// RegisterRoutes attaches the rate-limit endpoints to the provided group.
// The reset endpoint additionally runs the supplied middlewares.
func (h *RateLimitHandler) RegisterRoutes(group *gin.RouterGroup, resetMiddlewares ...gin.HandlerFunc) {
	group.POST("/check", h.Check)
	group.POST("/attempt", h.RecordAttempt)

	resetHandlers := append([]gin.HandlerFunc{}, resetMiddlewares...)
	resetHandlers = append(resetHandlers, h.Reset)
	group.POST("/reset", resetHandlers...)
}

var rateLimitErrorCases = []ErrorCase{
	{Err: domain.ErrEmptyKey, Status: http.StatusBadRequest, Message: "key must not be empty"},
	{Err: domain.ErrUnknownScope, Status: http.StatusBadRequest, Message: "unknown scope"},
}

// Check returns the current decision for a key without recording anything.
func (h *RateLimitHandler) Check(c *gin.Context) {
	var req RateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	limiter, err := h.registry.Get(req.Scope)
	if err != nil {
		RespondWithMappedError(c, err, rateLimitErrorCases, http.StatusInternalServerError, "rate limit check failed")
		return
	}

	decision, err := limiter.Check(c.Request.Context(), req.Key)
	if err != nil {
		RespondWithMappedError(c, err, rateLimitErrorCases, http.StatusInternalServerError, "rate limit check failed")
		return
	}

	h.telemetry.ObserveDecision(decision)
	c.JSON(http.StatusOK, NewDecisionResponse(decision))
}

// RecordAttempt records one failed attempt and returns the updated decision.
func (h *RateLimitHandler) RecordAttempt(c *gin.Context) {
	var req RateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	limiter, err := h.registry.Get(req.Scope)
	if err != nil {
		RespondWithMappedError(c, err, rateLimitErrorCases, http.StatusInternalServerError, "record attempt failed")
		return
	}

	decision, err := limiter.RecordFailure(c.Request.Context(), req.Key)
	if err != nil {
		RespondWithMappedError(c, err, rateLimitErrorCases, http.StatusInternalServerError, "record attempt failed")
		return
	}

	if decision.BlockStarted {
		h.telemetry.ObserveBlock(decision.Scope)
	}
	h.telemetry.ObserveDecision(decision)
	c.JSON(http.StatusOK, NewDecisionResponse(decision))
}

// Reset forgives all recorded state for a key.
func (h *RateLimitHandler) Reset(c *gin.Context) {
	var req RateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	limiter, err := h.registry.Get(req.Scope)
	if err != nil {
		RespondWithMappedError(c, err, rateLimitErrorCases, http.StatusInternalServerError, "reset failed")
		return
	}

	if err := limiter.Reset(c.Request.Context(), req.Key); err != nil {
		RespondWithMappedError(c, err, rateLimitErrorCases, http.StatusInternalServerError, "reset failed")
		return
	}

	c.Status(http.StatusNoContent)
}
