package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/scorestream-api/internal/middleware"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

// parsePagination reads limit/offset with defaults and an upper bound.
func parsePagination(c *fiber.Ctx) (int, int, error) {
	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 {
		return 0, 0, errors.New("invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil || offset < 0 {
		return 0, 0, errors.New("invalid offset")
	}

	if limit == 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return limit, offset, nil
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}
