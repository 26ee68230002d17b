package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/types"
)

type QuestionAttemptRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.QuestionAttempt) error
	// ListRecent returns the newest attempts for one lesson, newest first.
	ListRecent(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID, lessonIndex, limit int) ([]*types.QuestionAttempt, error)
}

type questionAttemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionAttemptRepo(db *gorm.DB, baseLog *logger.Logger) QuestionAttemptRepo {
	return &questionAttemptRepo{
		db:  db,
		log: baseLog.With("repo", "QuestionAttemptRepo"),
	}
}

func (r *questionAttemptRepo) Create(ctx context.Context, tx *gorm.DB, row *types.QuestionAttempt) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil || row.UserID == uuid.Nil || row.CourseID == uuid.Nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return transaction.WithContext(ctx).Create(row).Error
}

func (r *questionAttemptRepo) ListRecent(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID, lessonIndex, limit int) ([]*types.QuestionAttempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.QuestionAttempt
	if userID == uuid.Nil || courseID == uuid.Nil {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND lesson_index = ?", userID, courseID, lessonIndex).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
