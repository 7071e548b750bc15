package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/scorestream-api/internal/models"
)

// ChallengeAttemptFilter narrows attempt listings.
type ChallengeAttemptFilter struct {
	UserID      string
	ClassPeriod string
	ExerciseID  int
	Limit       int
	Offset      int
}

// ChallengeAttemptRepository persists graded challenge attempts.
type ChallengeAttemptRepository interface {
	Create(ctx context.Context, attempt *models.ChallengeAttempt) error
	List(ctx context.Context, filter ChallengeAttemptFilter) ([]models.ChallengeAttempt, int64, error)
	SummaryByExercise(ctx context.Context, classPeriod string) ([]models.ExerciseSummary, error)
}

type challengeAttemptRepository struct {
	db *gorm.DB
}

// NewChallengeAttemptRepository constructs a repository backed by GORM.
func NewChallengeAttemptRepository(db *gorm.DB) ChallengeAttemptRepository {
	return &challengeAttemptRepository{db: db}
}

func (r *challengeAttemptRepository) Create(ctx context.Context, attempt *models.ChallengeAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *challengeAttemptRepository) List(ctx context.Context, filter ChallengeAttemptFilter) ([]models.ChallengeAttempt, int64, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	query := r.db.WithContext(ctx).Model(&models.ChallengeAttempt{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.ClassPeriod != "" {
		query = query.Where("class_period = ?", filter.ClassPeriod)
	}
	if filter.ExerciseID > 0 {
		query = query.Where("exercise_id = ?", filter.ExerciseID)
	}

	var total int64
	countQuery := query.Session(&gorm.Session{})
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var attempts []models.ChallengeAttempt
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (r *challengeAttemptRepository) SummaryByExercise(ctx context.Context, classPeriod string) ([]models.ExerciseSummary, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ChallengeAttempt{}).
		Select("exercise_id, COUNT(*) AS attempts, SUM(CASE WHEN passed THEN 1 ELSE 0 END) AS passed")
	if classPeriod != "" {
		query = query.Where("class_period = ?", classPeriod)
	}

	var summaries []models.ExerciseSummary
	if err := query.Group("exercise_id").Order("exercise_id").Scan(&summaries).Error; err != nil {
		return nil, err
	}
	return summaries, nil
}
