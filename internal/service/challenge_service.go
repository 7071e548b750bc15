package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/scorestream-api/internal/dto"
	"github.com/noah-isme/scorestream-api/internal/grader"
	"github.com/noah-isme/scorestream-api/internal/middleware"
	"github.com/noah-isme/scorestream-api/internal/models"
	"github.com/noah-isme/scorestream-api/internal/observability"
	"github.com/noah-isme/scorestream-api/internal/repository"
)

var (
	// ErrGraderUnavailable indicates the sandbox backend could not run the submission.
	ErrGraderUnavailable = errors.New("grader unavailable")
	// ErrAttemptLogUnavailable indicates attempt history is not configured.
	ErrAttemptLogUnavailable = errors.New("attempt log unavailable")
	// ErrInvalidStudentName indicates a name was empty after sanitisation.
	ErrInvalidStudentName = errors.New("student name is empty after sanitization")
	// ErrInvalidClassPeriod indicates a class period outside 1-4.
	ErrInvalidClassPeriod = errors.New("invalid class period")
)

const gradeCachePrefix = "challenge:grade:v1"

// SubmissionGrader grades code against the exercise catalogue.
type SubmissionGrader interface {
	Grade(ctx context.Context, exerciseID int, code string) (grader.Result, error)
	Catalogue() *grader.Catalogue
}

// ChallengeConfig tunes the challenge service.
type ChallengeConfig struct {
	Engine   string
	CacheTTL time.Duration
}

// ChallengeService exposes the exercise catalogue and the grading workflow.
type ChallengeService interface {
	Exercises() []dto.ExerciseResponse
	Exercise(id int) (dto.ExerciseResponse, bool)
	Submit(ctx context.Context, userID string, req dto.ChallengeSubmissionRequest) (dto.ChallengeResultResponse, error)
	ListAttempts(ctx context.Context, userID string, limit, offset int) (dto.ChallengeAttemptListResponse, error)
	ClassAttempts(ctx context.Context, classPeriod string, exerciseID, limit, offset int) (dto.ChallengeAttemptListResponse, error)
}

type challengeService struct {
	grader    SubmissionGrader
	attempts  repository.ChallengeAttemptRepository
	cache     *redis.Client
	feed      AttemptFeedService
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	config    ChallengeConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
}

type cachedGrade struct {
	ExerciseID int      `json:"exercise_id"`
	Passed     bool     `json:"passed"`
	Feedback   []string `json:"feedback"`
	Output     string   `json:"output"`
	DurationMs int64    `json:"duration_ms"`
}

// NewChallengeService constructs the challenge service. The attempt repository,
// cache and feed are optional.
func NewChallengeService(g SubmissionGrader, attempts repository.ChallengeAttemptRepository, cache *redis.Client, feed AttemptFeedService, validate *validator.Validate, logger zerolog.Logger, cfg ChallengeConfig) ChallengeService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.Engine == "" {
		cfg.Engine = "starlark"
	}

	return &challengeService{
		grader:    g,
		attempts:  attempts,
		cache:     cache,
		feed:      feed,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		config:    cfg,
		logger:    logger.With().Str("component", "challenge_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/scorestream-api/internal/service/challenge"),
	}
}

func (s *challengeService) Exercises() []dto.ExerciseResponse {
	catalogue := s.grader.Catalogue()
	exercises := catalogue.All()
	items := make([]dto.ExerciseResponse, 0, len(exercises))
	for _, exercise := range exercises {
		items = append(items, dto.NewExerciseResponse(exercise, catalogue, false))
	}
	return items
}

func (s *challengeService) Exercise(id int) (dto.ExerciseResponse, bool) {
	catalogue := s.grader.Catalogue()
	exercise, ok := catalogue.Lookup(id)
	if !ok {
		return dto.ExerciseResponse{}, false
	}
	return dto.NewExerciseResponse(exercise, catalogue, true), true
}

func (s *challengeService) Submit(ctx context.Context, userID string, req dto.ChallengeSubmissionRequest) (dto.ChallengeResultResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ChallengeResultResponse{}, err
	}

	firstName := strings.TrimSpace(s.sanitizer.Sanitize(req.FirstName))
	lastName := strings.TrimSpace(s.sanitizer.Sanitize(req.LastName))
	if firstName == "" || lastName == "" {
		return dto.ChallengeResultResponse{}, ErrInvalidStudentName
	}

	catalogue := s.grader.Catalogue()
	exercise := catalogue.Resolve(req.ExerciseID)
	checksum := codeChecksum(req.Code)
	logger := s.logger.With().Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).Logger()

	ctx, span := s.tracer.Start(ctx, "challenges.submit", trace.WithAttributes(
		attribute.Int("challenge.exercise_id", exercise.ID),
		attribute.Int("challenge.requested_exercise_id", req.ExerciseID),
		attribute.String("challenge.class_period", req.ClassPeriod),
		attribute.String("challenge.engine", s.config.Engine),
	))
	defer span.End()

	cacheKey := s.cacheKey(exercise.ID, checksum)
	result, cacheHit := s.lookupGrade(ctx, cacheKey)
	if !cacheHit {
		start := time.Now()
		graded, err := s.grader.Grade(ctx, exercise.ID, req.Code)
		observability.GradingDuration().WithLabelValues(s.config.Engine).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "grading failed")
			logger.Error().Err(err).Int("exercise_id", exercise.ID).Msg("grading failed")
			return dto.ChallengeResultResponse{}, fmt.Errorf("%w: %v", ErrGraderUnavailable, err)
		}
		result = graded
		if !result.TimedOut {
			s.storeGrade(ctx, cacheKey, result)
		}
	}

	outcome := "failed"
	switch {
	case result.TimedOut:
		outcome = "timeout"
	case result.Passed:
		outcome = "passed"
	}
	observability.Grades().WithLabelValues(strconv.Itoa(exercise.ID), outcome).Inc()
	span.SetAttributes(attribute.Bool("challenge.passed", result.Passed), attribute.Bool("challenge.cache_hit", cacheHit))

	response := dto.ChallengeResultResponse{
		Exercise:            dto.NewExerciseResponse(exercise, catalogue, false),
		RequestedExerciseID: req.ExerciseID,
		Passed:              result.Passed,
		Feedback:            result.Feedback,
		TimedOut:            result.TimedOut,
		Output:              result.Output,
		DurationMs:          result.Duration.Milliseconds(),
		CacheHit:            cacheHit,
	}

	attempt := models.ChallengeAttempt{
		ReferenceID:  uuid.NewString(),
		UserID:       userID,
		ExerciseID:   exercise.ID,
		FirstName:    firstName,
		LastName:     lastName,
		ClassPeriod:  req.ClassPeriod,
		CodeChecksum: checksum,
		Passed:       result.Passed,
		TimedOut:     result.TimedOut,
		DurationMs:   response.DurationMs,
		CacheHit:     cacheHit,
		CreatedAt:    time.Now().UTC(),
	}
	if feedback, err := json.Marshal(result.Feedback); err == nil {
		attempt.Feedback = datatypes.JSON(feedback)
	}

	if s.attempts != nil {
		if err := s.attempts.Create(ctx, &attempt); err != nil {
			span.RecordError(err)
			logger.Warn().Err(err).Int("exercise_id", exercise.ID).Msg("failed to record attempt")
		} else {
			response.AttemptID = attempt.ReferenceID
		}
	}

	if s.feed != nil {
		s.feed.Publish(ctx, dto.NewChallengeAttemptResponse(attempt))
	}

	logger.Info().
		Str("user_id", userID).
		Int("exercise_id", exercise.ID).
		Bool("passed", result.Passed).
		Bool("timed_out", result.TimedOut).
		Bool("cache_hit", cacheHit).
		Msg("submission graded")

	return response, nil
}

func (s *challengeService) ListAttempts(ctx context.Context, userID string, limit, offset int) (dto.ChallengeAttemptListResponse, error) {
	if s.attempts == nil {
		return dto.ChallengeAttemptListResponse{}, ErrAttemptLogUnavailable
	}

	attempts, total, err := s.attempts.List(ctx, repository.ChallengeAttemptFilter{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return dto.ChallengeAttemptListResponse{}, err
	}

	return dto.ChallengeAttemptListResponse{
		Items: dto.NewChallengeAttemptResponseSlice(attempts),
		Total: total,
	}, nil
}

func (s *challengeService) ClassAttempts(ctx context.Context, classPeriod string, exerciseID, limit, offset int) (dto.ChallengeAttemptListResponse, error) {
	if s.attempts == nil {
		return dto.ChallengeAttemptListResponse{}, ErrAttemptLogUnavailable
	}
	if !validClassPeriod(classPeriod) {
		return dto.ChallengeAttemptListResponse{}, ErrInvalidClassPeriod
	}

	ctx, span := s.tracer.Start(ctx, "challenges.class_attempts", trace.WithAttributes(
		attribute.String("challenge.class_period", classPeriod),
	))
	defer span.End()

	attempts, total, err := s.attempts.List(ctx, repository.ChallengeAttemptFilter{
		ClassPeriod: classPeriod,
		ExerciseID:  exerciseID,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		span.RecordError(err)
		return dto.ChallengeAttemptListResponse{}, err
	}

	summary, err := s.attempts.SummaryByExercise(ctx, classPeriod)
	if err != nil {
		span.RecordError(err)
		return dto.ChallengeAttemptListResponse{}, err
	}

	return dto.ChallengeAttemptListResponse{
		Items:   dto.NewChallengeAttemptResponseSlice(attempts),
		Total:   total,
		Summary: summary,
	}, nil
}

func (s *challengeService) cacheKey(exerciseID int, checksum string) string {
	return fmt.Sprintf("%s:%s:%d:%s", gradeCachePrefix, s.config.Engine, exerciseID, checksum)
}

func (s *challengeService) lookupGrade(ctx context.Context, key string) (grader.Result, bool) {
	if s.cache == nil {
		return grader.Result{}, false
	}

	payload, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("grade cache lookup failed")
		}
		observability.GradeCache().WithLabelValues("miss").Inc()
		return grader.Result{}, false
	}

	var cached cachedGrade
	if err := json.Unmarshal(payload, &cached); err != nil {
		s.logger.Warn().Err(err).Msg("invalid cached grade")
		observability.GradeCache().WithLabelValues("miss").Inc()
		return grader.Result{}, false
	}

	observability.GradeCache().WithLabelValues("hit").Inc()
	return grader.Result{
		ExerciseID: cached.ExerciseID,
		Passed:     cached.Passed,
		Feedback:   cached.Feedback,
		Output:     cached.Output,
		Duration:   time.Duration(cached.DurationMs) * time.Millisecond,
	}, true
}

func (s *challengeService) storeGrade(ctx context.Context, key string, result grader.Result) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(cachedGrade{
		ExerciseID: result.ExerciseID,
		Passed:     result.Passed,
		Feedback:   result.Feedback,
		Output:     result.Output,
		DurationMs: result.Duration.Milliseconds(),
	})
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, key, payload, s.config.CacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache grade")
	}
}

func codeChecksum(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func validClassPeriod(period string) bool {
	switch period {
	case "1", "2", "3", "4":
		return true
	default:
		return false
	}
}
