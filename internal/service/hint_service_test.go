package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scorestream-api/internal/dto"
	"github.com/noah-isme/scorestream-api/pkg/ai"
)

type stubCoach struct {
	input ai.HintInput
	calls int
	err   error
}

func (c *stubCoach) Hint(_ context.Context, input ai.HintInput) (ai.HintResult, error) {
	c.calls++
	c.input = input
	if c.err != nil {
		return ai.HintResult{}, c.err
	}
	return ai.HintResult{Hint: "Compare each value with the best so far.", Provider: ai.ProviderOpenAI, Model: "gpt-4o-mini"}, nil
}

func TestHintServiceReturnsCoachHint(t *testing.T) {
	coach := &stubCoach{}
	service := NewHintService(newCountingGrader(time.Second), coach, ai.ProviderOpenAI, validator.New(), zerolog.Nop())

	code := "def find_max(values):\n    return 20\n\nmax_val = find_max([10, 5, 20, 3])\n"
	resp, err := service.Hint(context.Background(), dto.ChallengeHintRequest{ExerciseID: 2, Code: code})
	require.NoError(t, err)
	require.Equal(t, 2, resp.ExerciseID)
	require.Equal(t, "Compare each value with the best so far.", resp.Hint)
	require.Equal(t, ai.ProviderOpenAI, resp.Provider)
	require.NotEmpty(t, resp.Feedback)

	require.Equal(t, 1, coach.calls)
	require.Equal(t, "Find the Maximum", coach.input.ExerciseTitle)
	require.Equal(t, code, coach.input.Code)
	require.Equal(t, resp.Feedback, coach.input.Feedback)
}

func TestHintServiceSkipsPassingSubmissions(t *testing.T) {
	coach := &stubCoach{}
	service := NewHintService(newCountingGrader(time.Second), coach, ai.ProviderOpenAI, validator.New(), zerolog.Nop())

	_, err := service.Hint(context.Background(), dto.ChallengeHintRequest{ExerciseID: 2, Code: findMaxSolution})
	require.ErrorIs(t, err, ErrHintNotNeeded)
	require.Zero(t, coach.calls)
}

func TestHintServiceWithoutCoach(t *testing.T) {
	service := NewHintService(newCountingGrader(time.Second), nil, "", validator.New(), zerolog.Nop())

	_, err := service.Hint(context.Background(), dto.ChallengeHintRequest{ExerciseID: 1, Code: "x = 1"})
	require.ErrorIs(t, err, ErrCoachUnavailable)
}

func TestHintServiceCoachFailure(t *testing.T) {
	coach := &stubCoach{err: errors.New("rate limited")}
	service := NewHintService(newCountingGrader(time.Second), coach, ai.ProviderAnthropic, validator.New(), zerolog.Nop())

	_, err := service.Hint(context.Background(), dto.ChallengeHintRequest{ExerciseID: 1, Code: "x = 1"})
	require.ErrorIs(t, err, ErrCoachFailed)
}

func TestHintServiceValidatesRequest(t *testing.T) {
	service := NewHintService(newCountingGrader(time.Second), &stubCoach{}, ai.ProviderOpenAI, validator.New(), zerolog.Nop())

	_, err := service.Hint(context.Background(), dto.ChallengeHintRequest{ExerciseID: 1})
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)

	_, err = NewHintService(brokenGrader{}, &stubCoach{}, ai.ProviderOpenAI, validator.New(), zerolog.Nop()).
		Hint(context.Background(), dto.ChallengeHintRequest{ExerciseID: 1, Code: "x = 1"})
	require.ErrorIs(t, err, ErrGraderUnavailable)
}
