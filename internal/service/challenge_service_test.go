package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/scorestream-api/internal/dto"
	"github.com/noah-isme/scorestream-api/internal/grader"
	"github.com/noah-isme/scorestream-api/internal/models"
	"github.com/noah-isme/scorestream-api/internal/repository"
	"github.com/noah-isme/scorestream-api/pkg/sandbox"
)

const findMaxSolution = `def find_max(values):
    best = values[0]
    for v in values:
        if v > best:
            best = v
    return best

max_val = find_max([10, 5, 20, 3])
`

type countingGrader struct {
	*grader.Grader
	calls atomic.Int32
}

func (g *countingGrader) Grade(ctx context.Context, exerciseID int, code string) (grader.Result, error) {
	g.calls.Add(1)
	return g.Grader.Grade(ctx, exerciseID, code)
}

type brokenGrader struct{}

func (brokenGrader) Grade(context.Context, int, string) (grader.Result, error) {
	return grader.Result{}, errors.New("docker daemon unreachable")
}

func (brokenGrader) Catalogue() *grader.Catalogue { return grader.DefaultCatalogue() }

func newCountingGrader(timeout time.Duration) *countingGrader {
	limits := sandbox.Limits{Timeout: timeout, MaxSteps: 5_000_000}
	return &countingGrader{Grader: grader.New(grader.DefaultCatalogue(), sandbox.NewStarlarkRunner(zerolog.Nop()), limits, zerolog.Nop())}
}

func setupAttemptRepo(t *testing.T) repository.ChallengeAttemptRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ChallengeAttempt{}))
	return repository.NewChallengeAttemptRepository(db)
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func submission(exerciseID int, code string) dto.ChallengeSubmissionRequest {
	return dto.ChallengeSubmissionRequest{
		ExerciseID:  exerciseID,
		Code:        code,
		FirstName:   "Ada",
		LastName:    "Lovelace",
		ClassPeriod: "2",
	}
}

func TestChallengeServiceSubmitGradesAndRecordsAttempt(t *testing.T) {
	repo := setupAttemptRepo(t)
	service := NewChallengeService(newCountingGrader(2*time.Second), repo, nil, nil, validator.New(), zerolog.Nop(), ChallengeConfig{})

	result, err := service.Submit(context.Background(), "42", submission(2, findMaxSolution))
	require.NoError(t, err)
	require.True(t, result.Passed)
	require.Len(t, result.Feedback, 1)
	require.Equal(t, 2, result.Exercise.ID)
	require.NotNil(t, result.Exercise.NextExerciseID)
	require.Equal(t, 3, *result.Exercise.NextExerciseID)
	require.NotEmpty(t, result.AttemptID)
	require.False(t, result.CacheHit)

	history, err := service.ListAttempts(context.Background(), "42", 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), history.Total)
	require.Equal(t, result.AttemptID, history.Items[0].ReferenceID)
	require.Equal(t, result.Feedback, history.Items[0].Feedback)
	require.Equal(t, "Ada", history.Items[0].FirstName)
}

func TestChallengeServiceCachesGrades(t *testing.T) {
	g := newCountingGrader(2 * time.Second)
	service := NewChallengeService(g, nil, setupRedis(t), nil, validator.New(), zerolog.Nop(), ChallengeConfig{CacheTTL: time.Minute})

	code := "def find_max(values):\n    return 20\n\nmax_val = 20\n"
	first, err := service.Submit(context.Background(), "1", submission(2, code))
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := service.Submit(context.Background(), "1", submission(2, code))
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, first.Passed, second.Passed)
	require.Equal(t, first.Feedback, second.Feedback)
	require.Equal(t, int32(1), g.calls.Load())

	_, err = service.Submit(context.Background(), "1", submission(3, code))
	require.NoError(t, err)
	require.Equal(t, int32(2), g.calls.Load(), "cache key must include the exercise")
}

func TestChallengeServiceDoesNotCacheTimeouts(t *testing.T) {
	g := newCountingGrader(50 * time.Millisecond)
	service := NewChallengeService(g, nil, setupRedis(t), nil, validator.New(), zerolog.Nop(), ChallengeConfig{})

	code := "numbers = [1]\nwhile True:\n    pass\n"
	for i := 0; i < 2; i++ {
		result, err := service.Submit(context.Background(), "1", submission(1, code))
		require.NoError(t, err)
		require.True(t, result.TimedOut)
		require.False(t, result.Passed)
		require.False(t, result.CacheHit)
	}
	require.Equal(t, int32(2), g.calls.Load())
}

func TestChallengeServiceUnknownExerciseFallsBackToDefault(t *testing.T) {
	service := NewChallengeService(newCountingGrader(2*time.Second), nil, nil, nil, validator.New(), zerolog.Nop(), ChallengeConfig{})

	result, err := service.Submit(context.Background(), "1", submission(42, "numbers = [1, 2]\ntotal_sum = 3\n"))
	require.NoError(t, err)
	require.Equal(t, grader.DefaultExerciseID, result.Exercise.ID)
	require.Equal(t, 42, result.RequestedExerciseID)
	require.True(t, result.Passed)
	require.Equal(t, grader.LoopAdvisory, result.Feedback[0])
	require.Empty(t, result.AttemptID)
}

func TestChallengeServiceValidatesSubmission(t *testing.T) {
	service := NewChallengeService(newCountingGrader(time.Second), nil, nil, nil, validator.New(), zerolog.Nop(), ChallengeConfig{})

	req := submission(1, "x = 1")
	req.ClassPeriod = "5"
	_, err := service.Submit(context.Background(), "1", req)
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)

	req = submission(1, "")
	_, err = service.Submit(context.Background(), "1", req)
	require.ErrorAs(t, err, &validationErrs)

	req = submission(1, "x = 1")
	req.FirstName = "<b></b>"
	_, err = service.Submit(context.Background(), "1", req)
	require.ErrorIs(t, err, ErrInvalidStudentName)
}

func TestChallengeServiceSanitizesNames(t *testing.T) {
	repo := setupAttemptRepo(t)
	service := NewChallengeService(newCountingGrader(time.Second), repo, nil, nil, validator.New(), zerolog.Nop(), ChallengeConfig{})

	req := submission(1, "numbers = [1]\ntotal_sum = 1\n")
	req.FirstName = "<script>alert(1)</script>Grace"
	_, err := service.Submit(context.Background(), "7", req)
	require.NoError(t, err)

	history, err := service.ListAttempts(context.Background(), "7", 10, 0)
	require.NoError(t, err)
	require.Equal(t, "Grace", history.Items[0].FirstName)
}

func TestChallengeServiceWrapsGraderFailures(t *testing.T) {
	service := NewChallengeService(brokenGrader{}, nil, nil, nil, validator.New(), zerolog.Nop(), ChallengeConfig{})

	_, err := service.Submit(context.Background(), "1", submission(1, "x = 1"))
	require.ErrorIs(t, err, ErrGraderUnavailable)
}

func TestChallengeServicePublishesToFeed(t *testing.T) {
	feed := NewAttemptFeedService(nil, nil, "", zerolog.Nop())
	service := NewChallengeService(newCountingGrader(time.Second), nil, nil, feed, validator.New(), zerolog.Nop(), ChallengeConfig{})

	events, cancel := feed.Subscribe("2")
	defer cancel()

	_, err := service.Submit(context.Background(), "9", submission(2, findMaxSolution))
	require.NoError(t, err)

	select {
	case event := <-events:
		require.Equal(t, "9", event.UserID)
		require.Equal(t, 2, event.ExerciseID)
		require.True(t, event.Passed)
	case <-time.After(time.Second):
		t.Fatal("expected attempt event")
	}
}

func TestChallengeServiceClassAttempts(t *testing.T) {
	repo := setupAttemptRepo(t)
	service := NewChallengeService(newCountingGrader(time.Second), repo, nil, nil, validator.New(), zerolog.Nop(), ChallengeConfig{})

	_, err := service.Submit(context.Background(), "1", submission(2, findMaxSolution))
	require.NoError(t, err)
	_, err = service.Submit(context.Background(), "2", submission(2, "max_val = 20\n"))
	require.NoError(t, err)

	list, err := service.ClassAttempts(context.Background(), "2", 0, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), list.Total)
	require.Equal(t, []models.ExerciseSummary{{ExerciseID: 2, Attempts: 2, Passed: 1}}, list.Summary)

	_, err = service.ClassAttempts(context.Background(), "9", 0, 10, 0)
	require.ErrorIs(t, err, ErrInvalidClassPeriod)

	withoutRepo := NewChallengeService(newCountingGrader(time.Second), nil, nil, nil, validator.New(), zerolog.Nop(), ChallengeConfig{})
	_, err = withoutRepo.ClassAttempts(context.Background(), "2", 0, 10, 0)
	require.ErrorIs(t, err, ErrAttemptLogUnavailable)
}

func TestChallengeServiceExercises(t *testing.T) {
	service := NewChallengeService(newCountingGrader(time.Second), nil, nil, nil, validator.New(), zerolog.Nop(), ChallengeConfig{})

	exercises := service.Exercises()
	require.Len(t, exercises, 5)
	require.Empty(t, exercises[0].StarterCode)
	require.Nil(t, exercises[4].NextExerciseID)

	detail, ok := service.Exercise(3)
	require.True(t, ok)
	require.NotEmpty(t, detail.StarterCode)

	_, ok = service.Exercise(0)
	require.False(t, ok)
}
