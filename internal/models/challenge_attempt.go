package models

import (
	"time"

	"gorm.io/datatypes"
)

// ChallengeAttempt records one graded submission. The submitted source is not
// stored; CodeChecksum identifies identical submissions.
type ChallengeAttempt struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	ReferenceID  string         `gorm:"size:36;uniqueIndex;not null" json:"reference_id"`
	UserID       string         `gorm:"size:64;index;not null" json:"user_id"`
	ExerciseID   int            `gorm:"index;not null" json:"exercise_id"`
	FirstName    string         `gorm:"size:100" json:"first_name"`
	LastName     string         `gorm:"size:100" json:"last_name"`
	ClassPeriod  string         `gorm:"size:8;index" json:"class_period"`
	CodeChecksum string         `gorm:"size:64;not null" json:"code_checksum"`
	Passed       bool           `gorm:"not null;default:false" json:"passed"`
	Feedback     datatypes.JSON `gorm:"type:json" json:"feedback"`
	TimedOut     bool           `gorm:"not null;default:false" json:"timed_out"`
	DurationMs   int64          `gorm:"default:0" json:"duration_ms"`
	CacheHit     bool           `gorm:"not null;default:false" json:"cache_hit"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
}

// ExerciseSummary aggregates attempts for one exercise.
type ExerciseSummary struct {
	ExerciseID int   `json:"exercise_id"`
	Attempts   int64 `json:"attempts"`
	Passed     int64 `json:"passed"`
}
