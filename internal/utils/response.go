package utils

import "github.com/gofiber/fiber/v2"

// correlationLocal mirrors the key the correlation middleware stores the request id under.
const correlationLocal = "correlation_id"

// APIResponse is the envelope every challenge endpoint answers with.
type APIResponse struct {
	Success       bool        `json:"success"`
	Message       string      `json:"message"`
	Data          interface{} `json:"data,omitempty"`
	Meta          interface{} `json:"meta,omitempty"`
	Details       interface{} `json:"details,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// SendSuccess answers 200 with data.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus answers with data and a custom status; zero means 200.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	return send(c, status, APIResponse{Success: true, Message: message, Data: data})
}

// OK answers 200 with data and list metadata such as pagination.
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	return send(c, fiber.StatusOK, APIResponse{Success: true, Message: message, Data: data, Meta: meta})
}

// SendError answers with a bare failure message.
func SendError(c *fiber.Ctx, status int, message string) error {
	return Fail(c, status, message, nil)
}

// Fail answers with a failure message and optional details. Failures echo the
// request correlation id so students can quote it when reporting problems.
func Fail(c *fiber.Ctx, status int, message string, details interface{}) error {
	response := APIResponse{Message: message, Details: details}
	if id, ok := c.Locals(correlationLocal).(string); ok {
		response.CorrelationID = id
	}
	return send(c, status, response)
}

func send(c *fiber.Ctx, status int, response APIResponse) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	if response.Message == "" {
		response.Message = "success"
		if !response.Success {
			response.Message = "error"
		}
	}
	return c.Status(status).JSON(response)
}
