package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/scorestream-api/internal/dto"
	"github.com/noah-isme/scorestream-api/internal/grader"
	"github.com/noah-isme/scorestream-api/internal/middleware"
	"github.com/noah-isme/scorestream-api/internal/service"
	"github.com/noah-isme/scorestream-api/internal/utils"
)

// ChallengeHandler exposes the exercise catalogue, grading and attempt history.
type ChallengeHandler struct {
	challenges service.ChallengeService
	hints      service.HintService
	logger     zerolog.Logger
}

// ChallengeRouteOptions carries per-route middleware.
type ChallengeRouteOptions struct {
	// SubmitLimiter throttles grading and hint requests; nil disables throttling.
	SubmitLimiter fiber.Handler
}

// NewChallengeHandler constructs the handler. hints may be nil.
func NewChallengeHandler(challenges service.ChallengeService, hints service.HintService, logger zerolog.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		challenges: challenges,
		hints:      hints,
		logger:     logger.With().Str("component", "challenge_handler").Logger(),
	}
}

// Register wires the challenge endpoints into the router group.
func (h *ChallengeHandler) Register(router fiber.Router, opts ChallengeRouteOptions) {
	limiter := opts.SubmitLimiter
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Get("/exercises", h.listExercises)
	router.Get("/exercises/:id", h.getExercise)
	router.Post("/submissions", limiter, h.submit)
	router.Post("/hints", limiter, h.hint)
	router.Get("/attempts", middleware.WithAuth(h.listAttempts, middleware.AuthOptions{Access: middleware.AccessAnyUser}))
	router.Get("/attempts/class/:period", middleware.WithAuth(h.classAttempts, middleware.AuthOptions{Access: middleware.AccessStaff}))
}

func (h *ChallengeHandler) listExercises(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "exercises retrieved", h.challenges.Exercises())
}

func (h *ChallengeHandler) getExercise(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err == nil {
		if exercise, ok := h.challenges.Exercise(id); ok {
			return utils.SendSuccess(c, "exercise retrieved", exercise)
		}
	}

	return c.Redirect(defaultExercisePath(), fiber.StatusFound)
}

func (h *ChallengeHandler) submit(c *fiber.Ctx) error {
	var payload dto.ChallengeSubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	userID := middleware.UserIDFromCtx(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	result, err := h.challenges.Submit(requestContext(c), userID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	message := "submission graded"
	if result.Passed {
		message = "submission passed"
	}
	return utils.SendSuccess(c, message, result)
}

func (h *ChallengeHandler) hint(c *fiber.Ctx) error {
	if h.hints == nil {
		return h.handleError(c, service.ErrCoachUnavailable)
	}

	var payload dto.ChallengeHintRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	hint, err := h.hints.Hint(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "hint generated", hint)
}

func (h *ChallengeHandler) listAttempts(c *fiber.Ctx) error {
	limit, offset, err := parsePagination(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	attempts, err := h.challenges.ListAttempts(requestContext(c), middleware.UserIDFromCtx(c), limit, offset)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, attempts, "attempts retrieved", dto.PaginationMeta{Limit: limit, Offset: offset, Total: attempts.Total})
}

func (h *ChallengeHandler) classAttempts(c *fiber.Ctx) error {
	limit, offset, err := parsePagination(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	exerciseID, err := parseQueryInt(c, "exercise_id")
	if err != nil || exerciseID < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid exercise_id")
	}

	period := strings.TrimSpace(c.Params("period"))
	attempts, err := h.challenges.ClassAttempts(requestContext(c), period, exerciseID, limit, offset)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, attempts, "class attempts retrieved", dto.PaginationMeta{Limit: limit, Offset: offset, Total: attempts.Total})
}

func (h *ChallengeHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(validationErrors))
	case errors.Is(err, service.ErrInvalidStudentName), errors.Is(err, service.ErrInvalidClassPeriod):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrHintNotNeeded):
		return utils.SendError(c, fiber.StatusConflict, "submission already passes")
	case errors.Is(err, service.ErrGraderUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "grader unavailable")
	case errors.Is(err, service.ErrAttemptLogUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "attempt history unavailable")
	case errors.Is(err, service.ErrCoachUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "hints are not enabled")
	case errors.Is(err, service.ErrCoachFailed):
		return utils.SendError(c, fiber.StatusBadGateway, "coach request failed")
	default:
		h.logger.Error().Err(err).Str("correlation_id", middleware.GetCorrelationID(c)).Msg("challenge operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[fieldErr.Field()] = fieldErr.Tag()
	}
	return details
}

func defaultExercisePath() string {
	return middleware.ChallengeRoutePrefix + "/exercises/" + strconv.Itoa(grader.DefaultExerciseID)
}
