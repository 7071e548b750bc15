package grader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/scorestream-api/pkg/sandbox"
)

// ErrUnknownExercise is returned by Grade for ids outside the catalogue.
var ErrUnknownExercise = errors.New("unknown exercise")

const (
	errorFeedback   = "Coach: Your code caused an error: %s. Check your syntax."
	timeoutFeedback = "Coach: Your code ran for longer than %s and was stopped. Check for a loop that never ends."
)

// Result is the outcome of grading one submission.
type Result struct {
	ExerciseID int
	Passed     bool
	Feedback   []string
	TimedOut   bool
	Output     string
	Duration   time.Duration
}

// Grader runs submissions through a sandbox and applies the exercise rubric.
// It holds no per-submission state and is safe for concurrent use.
type Grader struct {
	catalogue *Catalogue
	runner    sandbox.Runner
	limits    sandbox.Limits
	logger    zerolog.Logger
}

// New constructs a Grader.
func New(catalogue *Catalogue, runner sandbox.Runner, limits sandbox.Limits, logger zerolog.Logger) *Grader {
	if catalogue == nil {
		catalogue = DefaultCatalogue()
	}
	return &Grader{
		catalogue: catalogue,
		runner:    runner,
		limits:    limits,
		logger:    logger.With().Str("component", "grader").Logger(),
	}
}

// Catalogue exposes the exercises the grader knows about.
func (g *Grader) Catalogue() *Catalogue {
	return g.catalogue
}

// Limits returns the execution limits applied to every submission.
func (g *Grader) Limits() sandbox.Limits {
	return g.limits
}

// Grade executes code against the rubric of exerciseID. Problems in the
// submitted code are reported as feedback; the error is reserved for unknown
// exercises and sandbox backend failures.
func (g *Grader) Grade(ctx context.Context, exerciseID int, code string) (Result, error) {
	exercise, ok := g.catalogue.Lookup(exerciseID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %d", ErrUnknownExercise, exerciseID)
	}

	result := Result{ExerciseID: exercise.ID, Feedback: []string{}}
	if exercise.RequiresLoop && !usesLoop(code) {
		result.Feedback = append(result.Feedback, LoopAdvisory)
	}

	execution, err := g.runner.Run(ctx, sandbox.Request{
		Source: code,
		Probes: exercise.Rubric.Probes(),
		Limits: g.limits,
	})
	if err != nil {
		return Result{}, fmt.Errorf("execute submission: %w", err)
	}

	result.Output = execution.Output
	result.Duration = execution.Duration

	switch {
	case execution.TimedOut:
		result.TimedOut = true
		result.Feedback = append(result.Feedback, fmt.Sprintf(timeoutFeedback, g.describeLimit()))
	case execution.Failure != "":
		result.Feedback = append(result.Feedback, fmt.Sprintf(errorFeedback, execution.Failure))
	default:
		passed, feedback := exercise.Rubric.Check(execution)
		result.Passed = passed
		result.Feedback = append(result.Feedback, feedback...)
	}

	g.logger.Debug().
		Int("exercise_id", exercise.ID).
		Bool("passed", result.Passed).
		Bool("timed_out", result.TimedOut).
		Dur("duration", result.Duration).
		Msg("submission graded")

	return result, nil
}

func (g *Grader) describeLimit() string {
	if g.limits.Timeout > 0 {
		return g.limits.Timeout.String()
	}
	if g.limits.MaxSteps > 0 {
		return fmt.Sprintf("%d steps", g.limits.MaxSteps)
	}
	return "the allowed time"
}
