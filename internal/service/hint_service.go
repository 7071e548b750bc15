package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/scorestream-api/internal/dto"
	"github.com/noah-isme/scorestream-api/internal/observability"
	"github.com/noah-isme/scorestream-api/pkg/ai"
)

var (
	// ErrCoachUnavailable indicates no AI provider is configured.
	ErrCoachUnavailable = errors.New("coach unavailable")
	// ErrCoachFailed indicates the AI provider returned an error.
	ErrCoachFailed = errors.New("coach request failed")
	// ErrHintNotNeeded indicates the submission already passes.
	ErrHintNotNeeded = errors.New("submission already passes")
)

// HintService produces AI coaching hints for failing submissions.
type HintService interface {
	Hint(ctx context.Context, req dto.ChallengeHintRequest) (dto.ChallengeHintResponse, error)
}

type hintService struct {
	grader    SubmissionGrader
	coach     ai.Coach
	provider  string
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewHintService constructs a hint service. A nil coach disables hints.
func NewHintService(g SubmissionGrader, coach ai.Coach, provider string, validate *validator.Validate, logger zerolog.Logger) HintService {
	return &hintService{
		grader:    g,
		coach:     coach,
		provider:  provider,
		validator: validate,
		logger:    logger.With().Str("component", "hint_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/scorestream-api/internal/service/hint"),
	}
}

func (s *hintService) Hint(ctx context.Context, req dto.ChallengeHintRequest) (dto.ChallengeHintResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ChallengeHintResponse{}, err
	}

	if s.coach == nil {
		observability.Hints().WithLabelValues("none", "unavailable").Inc()
		return dto.ChallengeHintResponse{}, ErrCoachUnavailable
	}

	exercise := s.grader.Catalogue().Resolve(req.ExerciseID)

	ctx, span := s.tracer.Start(ctx, "challenges.hint", trace.WithAttributes(
		attribute.Int("challenge.exercise_id", exercise.ID),
		attribute.String("ai.provider", s.provider),
	))
	defer span.End()

	result, err := s.grader.Grade(ctx, exercise.ID, req.Code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading failed")
		return dto.ChallengeHintResponse{}, fmt.Errorf("%w: %v", ErrGraderUnavailable, err)
	}

	if result.Passed {
		return dto.ChallengeHintResponse{}, ErrHintNotNeeded
	}

	hint, err := s.coach.Hint(ctx, ai.HintInput{
		ExerciseTitle: exercise.Title,
		Description:   exercise.Description,
		Code:          req.Code,
		Feedback:      result.Feedback,
		Output:        result.Output,
	})
	if err != nil {
		observability.Hints().WithLabelValues(s.provider, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "coach failed")
		s.logger.Error().Err(err).Int("exercise_id", exercise.ID).Msg("coach request failed")
		return dto.ChallengeHintResponse{}, fmt.Errorf("%w: %v", ErrCoachFailed, err)
	}

	observability.Hints().WithLabelValues(s.provider, "ok").Inc()

	return dto.ChallengeHintResponse{
		ExerciseID: exercise.ID,
		Hint:       hint.Hint,
		Feedback:   result.Feedback,
		Provider:   hint.Provider,
		Model:      hint.Model,
	}, nil
}
