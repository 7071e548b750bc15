package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/scorestream-api/internal/middleware"
	"github.com/noah-isme/scorestream-api/internal/service"
	"github.com/noah-isme/scorestream-api/internal/utils"
)

const feedKeepaliveInterval = 30 * time.Second

// AttemptFeedHandler streams graded attempts to teachers over websockets.
type AttemptFeedHandler struct {
	feed      service.AttemptFeedService
	logger    zerolog.Logger
	keepalive time.Duration
}

// NewAttemptFeedHandler creates the feed handler.
func NewAttemptFeedHandler(feed service.AttemptFeedService, logger zerolog.Logger) *AttemptFeedHandler {
	return &AttemptFeedHandler{
		feed:      feed,
		logger:    logger.With().Str("component", "attempt_feed_handler").Logger(),
		keepalive: feedKeepaliveInterval,
	}
}

// Register binds the websocket endpoint. Callers must be staff.
func (h *AttemptFeedHandler) Register(router fiber.Router) {
	router.Use("/ws", middleware.RequireRole(middleware.StaffRoles...), func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		period := strings.TrimSpace(c.Query("class_period"))
		switch period {
		case "", "1", "2", "3", "4":
		default:
			return utils.SendError(c, fiber.StatusBadRequest, "class_period must be 1-4")
		}

		c.Locals("feed_period", period)
		c.Locals("feed_user", middleware.UserIDFromCtx(c))
		c.Locals("correlation_id", middleware.GetCorrelationID(c))
		return c.Next()
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *AttemptFeedHandler) handleConnection(conn *websocket.Conn) {
	period, _ := conn.Locals("feed_period").(string)
	userID, _ := conn.Locals("feed_user").(string)
	correlation, _ := conn.Locals("correlation_id").(string)

	logger := h.logger.With().
		Str("user_id", userID).
		Str("class_period", period).
		Str("correlation_id", correlation).
		Logger()

	events, cancel := h.feed.Subscribe(period)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Info().Msg("attempt feed connected")
	defer logger.Info().Msg("attempt feed disconnected")

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case attempt, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(attempt); err != nil {
				logger.Debug().Err(err).Msg("attempt feed write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				logger.Debug().Err(err).Msg("attempt feed ping failed")
				return
			}
		case <-closed:
			return
		}
	}
}
