package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider names accepted by NewCoach.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var (
	hintDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scorestream",
		Subsystem: "ai",
		Name:      "hint_duration_seconds",
		Help:      "Duration of AI hint requests",
	}, []string{"provider", "model"})

	hintFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scorestream",
		Subsystem: "ai",
		Name:      "hint_failures_total",
		Help:      "Number of AI hint failures",
	}, []string{"provider", "model"})
)

// ErrEmptyHint is returned when a model answers without a usable hint.
var ErrEmptyHint = errors.New("model returned an empty hint")

// HintInput contains what a coach needs to nudge a student toward a fix.
type HintInput struct {
	ExerciseTitle string
	Description   string
	Code          string
	Feedback      []string
	Output        string
}

// HintResult is the coaching hint returned by a model.
type HintResult struct {
	Hint     string `json:"hint"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Coach produces short hints for failing submissions without revealing the solution.
type Coach interface {
	Hint(ctx context.Context, input HintInput) (HintResult, error)
}

func coachSystemPrompt() string {
	return "You are a patient programming coach for high school students. Given an exercise, a student's Python " +
		"submission and the grader's feedback, reply with a JSON object {\"hint\": string}. The hint must be at most " +
		"three sentences, point at the next step to try, and never contain a complete solution."
}

func buildHintPrompt(input HintInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Exercise\n")
	builder.WriteString(input.ExerciseTitle)
	builder.WriteString("\n\n## Instructions\n")
	builder.WriteString(input.Description)
	builder.WriteString("\n\n## Submission\n```python\n")
	builder.WriteString(input.Code)
	builder.WriteString("\n```\n\n## Grader Feedback\n")
	for _, line := range input.Feedback {
		builder.WriteString("- ")
		builder.WriteString(line)
		builder.WriteString("\n")
	}
	if input.Output != "" {
		builder.WriteString("\n## Printed Output\n")
		builder.WriteString(input.Output)
		builder.WriteString("\n")
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

// parseHintResponse accepts the requested JSON object, tolerating code fences
// and falling back to plain text answers.
func parseHintResponse(content string) (string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "{") {
		var payload struct {
			Hint string `json:"hint"`
		}
		if err := json.Unmarshal([]byte(content), &payload); err != nil {
			return "", fmt.Errorf("parse hint json: %w", err)
		}
		content = strings.TrimSpace(payload.Hint)
	}

	if content == "" {
		return "", ErrEmptyHint
	}
	return content, nil
}
