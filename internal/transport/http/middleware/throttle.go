package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/siteproof/throttle-service/internal/core/domain"
	"github.com/siteproof/throttle-service/internal/usecase"
)

const (
	throttleProblemType  = "https://siteproof.example.com/errors/rate-limit-exceeded"
	throttleProblemTitle = "Rate Limit Exceeded"
)

// IdentifierFunc extracts the identifier used to scope request throttling (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// ThrottleRule binds a limiter to an identifier source for inbound requests.
type ThrottleRule struct {
	Name       string
	Limiter    *usecase.Limiter
	Identifier IdentifierFunc
}

// Throttle guards the service's own API with the same limiters it serves.
type Throttle struct {
	logger *zap.Logger
}

// ProblemDetails represents an RFC 9457 compatible error payload for throttled requests.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewThrottle builds a reusable request-throttle middleware helper.
func NewThrottle(logger *zap.Logger) *Throttle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttle{logger: logger}
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		if ip == "" {
			return "", false
		}
		return ip, true
	}
}

// Limit returns a Gin middleware enforcing the provided rules. Each inbound
// request counts as one attempt; a client that exceeds the rule's limit is
// locked out for the scope's block duration, not merely until the window
// rolls over.
func (t *Throttle) Limit(rules ...ThrottleRule) gin.HandlerFunc {
	filtered := make([]ThrottleRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limiter == nil {
			continue
		}
		if rule.Name == "" {
			rule.Name = rule.Limiter.Scope()
		}
		filtered = append(filtered, rule)
	}

	return func(c *gin.Context) {
		for _, rule := range filtered {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			key := fmt.Sprintf("%s:%s", rule.Name, identifier)
			ctx := c.Request.Context()

			current, err := rule.Limiter.Check(ctx, key)
			if err != nil {
				// Fail open: a broken store must not take the API down.
				t.logger.Warn("throttle check failed",
					zap.String("rule", rule.Name),
					zap.Error(err),
				)
				continue
			}

			if !current.Allowed {
				applyHeaders(c, current)
				t.respondThrottled(c, current)
				return
			}

			recorded, err := rule.Limiter.RecordFailure(ctx, key)
			if err != nil {
				t.logger.Warn("throttle record failed",
					zap.String("rule", rule.Name),
					zap.Error(err),
				)
				continue
			}

			// The request that reaches the limit is still served; the block
			// it tripped applies from the next request on.
			headers := recorded
			headers.Allowed = true
			applyHeaders(c, headers)
		}

		c.Next()
	}
}

func applyHeaders(c *gin.Context, d domain.Decision) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

	if !d.Allowed {
		headers.Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
	}
}

func (t *Throttle) respondThrottled(c *gin.Context, d domain.Decision) {
	retrySeconds := d.RetryAfterSeconds()

	detail := fmt.Sprintf("Too many requests. Try again in %d seconds.", retrySeconds)
	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	problem := ProblemDetails{
		Type:       throttleProblemType,
		Title:      throttleProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     detail,
		Instance:   instance,
		RetryAfter: retrySeconds,
		TraceID:    GetTraceID(c),
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, problem)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
