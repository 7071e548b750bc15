package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/scorestream-api/internal/config"
	"github.com/noah-isme/scorestream-api/internal/handler"
	"github.com/noah-isme/scorestream-api/internal/middleware"
	"github.com/noah-isme/scorestream-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChallengeHandler   *handler.ChallengeHandler
	AttemptFeedHandler *handler.AttemptFeedHandler
	HealthProbes       map[string]handler.HealthProbe
	JWTMiddleware      fiber.Handler
	SubmitLimiter      fiber.Handler
	// DisableMetrics skips the /metrics route.
	DisableMetrics bool
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	if !deps.DisableMetrics {
		app.Get("/metrics", observability.MetricsHandler())
	}

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	challenges := app.Group(middleware.ChallengeRoutePrefix, jwtMiddleware)

	if deps.ChallengeHandler != nil {
		deps.ChallengeHandler.Register(challenges, handler.ChallengeRouteOptions{
			SubmitLimiter: deps.SubmitLimiter,
		})
	}

	if deps.AttemptFeedHandler != nil {
		deps.AttemptFeedHandler.Register(challenges.Group("/feed"))
	}
}
