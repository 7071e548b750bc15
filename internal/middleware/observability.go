package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/scorestream-api/internal/observability"
)

// ChallengeRoutePrefix scopes request metrics and logs to the challenge API.
const ChallengeRoutePrefix = "/api/v2/challenges"

// Observability records request metrics and one structured log line per
// challenge request. Websocket feed connections are logged when they end.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()
	logger = logger.With().Str("component", "http").Logger()

	return func(c *fiber.Ctx) error {
		if !strings.HasPrefix(c.Path(), ChallengeRoutePrefix) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			// The error handler has not written the response yet.
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		route := routeTemplate(c)
		recordRequest(c.Method(), route, status, elapsed)

		event := logger.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.Error()
		case status >= fiber.StatusBadRequest:
			event = logger.Warn()
		}
		event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("user_id", UserIDFromCtx(c)).
			Str("method", c.Method()).
			Str("route", route).
			Int("status", status).
			Dur("latency", elapsed).
			Msg("challenge request")

		return err
	}
}

func recordRequest(method, route string, status int, elapsed time.Duration) {
	statusLabel := strconv.Itoa(status)
	observability.HTTPRequests().WithLabelValues(method, route, statusLabel).Inc()
	observability.HTTPLatency().WithLabelValues(method, route).Observe(elapsed.Seconds())
	if status >= fiber.StatusBadRequest {
		observability.HTTPErrors().WithLabelValues(method, route, statusLabel).Inc()
	}
}

// routeTemplate keeps label cardinality bounded by using the registered path.
func routeTemplate(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Path != "" {
		return route.Path
	}
	return ChallengeRoutePrefix + "/*"
}
