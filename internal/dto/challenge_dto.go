package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/scorestream-api/internal/grader"
	"github.com/noah-isme/scorestream-api/internal/models"
)

// ChallengeSubmissionRequest is the payload for grading a submission.
// An exercise id of zero selects the default exercise.
type ChallengeSubmissionRequest struct {
	ExerciseID  int    `json:"exercise_id" validate:"gte=0"`
	Code        string `json:"code" validate:"required,max=20000"`
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	ClassPeriod string `json:"class_period" validate:"required,oneof=1 2 3 4"`
}

// ChallengeHintRequest asks for a coaching hint on a submission.
type ChallengeHintRequest struct {
	ExerciseID int    `json:"exercise_id" validate:"gte=0"`
	Code       string `json:"code" validate:"required,max=20000"`
}

// ExerciseResponse describes an exercise to API consumers.
type ExerciseResponse struct {
	ID             int    `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	StarterCode    string `json:"starter_code,omitempty"`
	NextExerciseID *int   `json:"next_exercise_id"`
}

// ChallengeResultResponse is returned after grading a submission.
type ChallengeResultResponse struct {
	Exercise            ExerciseResponse `json:"exercise"`
	RequestedExerciseID int              `json:"requested_exercise_id"`
	Passed              bool             `json:"passed"`
	Feedback            []string         `json:"feedback"`
	TimedOut            bool             `json:"timed_out"`
	Output              string           `json:"output,omitempty"`
	DurationMs          int64            `json:"duration_ms"`
	CacheHit            bool             `json:"cache_hit"`
	AttemptID           string           `json:"attempt_id,omitempty"`
}

// ChallengeAttemptResponse describes a stored attempt.
type ChallengeAttemptResponse struct {
	ReferenceID string    `json:"reference_id"`
	UserID      string    `json:"user_id"`
	ExerciseID  int       `json:"exercise_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	ClassPeriod string    `json:"class_period"`
	Passed      bool      `json:"passed"`
	Feedback    []string  `json:"feedback"`
	TimedOut    bool      `json:"timed_out"`
	DurationMs  int64     `json:"duration_ms"`
	CacheHit    bool      `json:"cache_hit"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChallengeAttemptListResponse wraps a page of attempts.
type ChallengeAttemptListResponse struct {
	Items   []ChallengeAttemptResponse `json:"items"`
	Total   int64                      `json:"total"`
	Summary []models.ExerciseSummary   `json:"summary,omitempty"`
}

// PaginationMeta carries paging information for list endpoints.
type PaginationMeta struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

// ChallengeHintResponse carries an AI generated hint.
type ChallengeHintResponse struct {
	ExerciseID int      `json:"exercise_id"`
	Hint       string   `json:"hint"`
	Feedback   []string `json:"feedback"`
	Provider   string   `json:"provider"`
	Model      string   `json:"model,omitempty"`
}

// NewExerciseResponse builds a response DTO from an exercise.
func NewExerciseResponse(exercise grader.Exercise, catalogue *grader.Catalogue, includeStarter bool) ExerciseResponse {
	response := ExerciseResponse{
		ID:          exercise.ID,
		Title:       exercise.Title,
		Description: exercise.Description,
	}
	if includeStarter {
		response.StarterCode = exercise.StarterCode
	}
	if next, ok := catalogue.Next(exercise.ID); ok {
		response.NextExerciseID = &next
	}
	return response
}

// NewChallengeAttemptResponse converts an attempt model into a DTO.
func NewChallengeAttemptResponse(attempt models.ChallengeAttempt) ChallengeAttemptResponse {
	feedback := []string{}
	if len(attempt.Feedback) > 0 {
		_ = json.Unmarshal(attempt.Feedback, &feedback)
	}

	return ChallengeAttemptResponse{
		ReferenceID: attempt.ReferenceID,
		UserID:      attempt.UserID,
		ExerciseID:  attempt.ExerciseID,
		FirstName:   attempt.FirstName,
		LastName:    attempt.LastName,
		ClassPeriod: attempt.ClassPeriod,
		Passed:      attempt.Passed,
		Feedback:    feedback,
		TimedOut:    attempt.TimedOut,
		DurationMs:  attempt.DurationMs,
		CacheHit:    attempt.CacheHit,
		CreatedAt:   attempt.CreatedAt,
	}
}

// NewChallengeAttemptResponseSlice converts a slice of attempts.
func NewChallengeAttemptResponseSlice(attempts []models.ChallengeAttempt) []ChallengeAttemptResponse {
	items := make([]ChallengeAttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		items = append(items, NewChallengeAttemptResponse(attempt))
	}
	return items
}
