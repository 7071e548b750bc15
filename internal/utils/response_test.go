package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scorestream-api/internal/utils"
)

type envelope struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	Data          json.RawMessage   `json:"data"`
	Meta          map[string]int    `json:"meta"`
	Details       map[string]string `json:"details"`
	CorrelationID string            `json:"correlation_id"`
}

func call(t *testing.T, handler fiber.Handler) (int, envelope) {
	t.Helper()
	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestOKCarriesPaginationMeta(t *testing.T) {
	status, body := call(t, func(c *fiber.Ctx) error {
		return utils.OK(c, []int{1, 2}, "", map[string]int{"limit": 20, "total": 2})
	})

	require.Equal(t, fiber.StatusOK, status)
	require.True(t, body.Success)
	require.Equal(t, "success", body.Message)
	require.JSONEq(t, `[1,2]`, string(body.Data))
	require.Equal(t, 20, body.Meta["limit"])
	require.Empty(t, body.CorrelationID)
}

func TestSendSuccessWithStatusDefaultsToOK(t *testing.T) {
	status, body := call(t, func(c *fiber.Ctx) error {
		return utils.SendSuccessWithStatus(c, 0, "submission graded", map[string]bool{"passed": false})
	})

	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "submission graded", body.Message)
	require.JSONEq(t, `{"passed":false}`, string(body.Data))
}

func TestFailEchoesCorrelationID(t *testing.T) {
	status, body := call(t, func(c *fiber.Ctx) error {
		c.Locals("correlation_id", "req-7")
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", map[string]string{"ClassPeriod": "oneof"})
	})

	require.Equal(t, fiber.StatusBadRequest, status)
	require.False(t, body.Success)
	require.Equal(t, "validation failed", body.Message)
	require.Equal(t, "oneof", body.Details["ClassPeriod"])
	require.Equal(t, "req-7", body.CorrelationID)
	require.Empty(t, body.Data)
}

func TestSendErrorDefaultsMessage(t *testing.T) {
	status, body := call(t, func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusServiceUnavailable, "")
	})

	require.Equal(t, fiber.StatusServiceUnavailable, status)
	require.Equal(t, "error", body.Message)
	require.Nil(t, body.Details)
}
