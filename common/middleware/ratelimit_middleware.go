package middleware

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/CurvatureX/trigger-engine/common/ratelimit"
)

// isInternalRequest checks if the request is from an internal service
// Internal services set X-Internal-Service header to bypass rate limits
func isInternalRequest(c echo.Context) bool {
	internalHeader := c.Request().Header.Get("X-Internal-Service")
	if internalHeader == "" {
		return false
	}

	expectedSecret := os.Getenv("INTERNAL_SERVICE_SECRET")
	if expectedSecret == "" {
		expectedSecret = "default-internal-secret-change-in-prod"
	}

	return internalHeader == expectedSecret
}

// GlobalRateLimitMiddleware checks the global service-wide rate limit,
// protecting the trigger surface from being overwhelmed regardless of
// origin. Skips internal service-to-service calls.
func GlobalRateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			result, err := rateLimiter.CheckGlobalLimit(c.Request().Context(), limit)
			if err != nil {
				// fail open for availability
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "global_rate_limit_exceeded",
					"message": "Trigger intake is experiencing high load. Please retry later.",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"window":              "60 seconds",
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}

// WorkflowRateLimitMiddleware rate-limits inbound trigger deliveries keyed on
// the route's workflow_id parameter (the client's address when the route has
// none), tiered by trigger type (manual/cron trusted vs.
// webhook/github/slack external vs. email polled) so a noisy third-party
// webhook cannot starve a workflow's own manual/cron runs.
func WorkflowRateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, triggerType string) echo.MiddlewareFunc {
	tier := ratelimit.TierForTriggerType(triggerType)
	limit := ratelimit.GetLimitForTier(tier)
	window := ratelimit.GetWindowForTier(tier)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			workflowID := c.Param("workflow_id")
			if workflowID == "" {
				workflowID = c.Request().RemoteAddr
			}

			result, err := rateLimiter.CheckWorkflowLimit(c.Request().Context(), workflowID, string(tier), limit, window)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "workflow_rate_limit_exceeded",
					"message": "This workflow's trigger intake quota has been exceeded.",
					"details": map[string]interface{}{
						"workflow_id":         workflowID,
						"tier":                tier,
						"limit":               result.Limit,
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
